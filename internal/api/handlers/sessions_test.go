package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinical-nlq/internal/conversation"
	"clinical-nlq/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSessionHandler_CreateThenGet(t *testing.T) {
	sessions := conversation.NewManager()
	handler := NewSessionHandler(sessions)

	body, _ := json.Marshal(map[string]string{"patient_id": "p1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data types.ConversationContext `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.SessionID)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+string(created.Data.SessionID), nil)
	getReq = withChiParam(getReq, "id", string(created.Data.SessionID))
	getRec := httptest.NewRecorder()

	handler.Get(getRec, getReq)

	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestSessionHandler_Get_UnknownSessionReturnsGone(t *testing.T) {
	sessions := conversation.NewManager()
	handler := NewSessionHandler(sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/does-not-exist", nil)
	req = withChiParam(req, "id", "does-not-exist")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	require.Equal(t, http.StatusGone, rec.Code)
}
