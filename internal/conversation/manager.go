// Package conversation manages bounded per-session state for follow-up query
// resolution (spec.md section 4.18).
package conversation

import (
	"regexp"
	"strings"
	"sync"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/types"

	"github.com/google/uuid"
)

// Manager owns the session map: single writer per session_id at a time via a
// replace-not-edit update, readers always observe a consistent context.
type Manager struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*types.ConversationContext
}

// NewManager creates an empty conversation manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[types.SessionID]*types.ConversationContext),
	}
}

// CreateSession opens a fresh ConversationContext for patientID.
func (m *Manager) CreateSession(patientID types.PatientID, now time.Time) (*types.ConversationContext, error) {
	if err := patientID.Validate(); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.CodeInvalidQuery, "invalid patient id").
			WithDetails(err.Error()).WithStage("conversation")
	}

	ctx := &types.ConversationContext{
		SessionID: types.SessionID(uuid.New().String()),
		PatientID: patientID,
		CreatedAt: now,
		ExpiresAt: now.Add(types.SessionExpiry),
	}

	m.mu.Lock()
	m.sessions[ctx.SessionID] = ctx
	m.mu.Unlock()

	return ctx, nil
}

// GetSession returns the session's current context, or SESSION_EXPIRED if it
// is missing or past its expiry.
func (m *Manager) GetSession(sessionID types.SessionID, now time.Time) (*types.ConversationContext, error) {
	m.mu.RLock()
	ctx, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok || now.After(ctx.ExpiresAt) {
		return nil, pipelineerrors.New(pipelineerrors.CodeSessionExpired, "session not found or expired").
			WithStage("conversation")
	}
	return ctx, nil
}

// UpdateContext appends a turn to sessionID's window, truncating to the most
// recent MaxTurnWindow turns, and refreshes last_entities/last_temporal_filter/
// last_intent from the new turn. Rejects expired sessions.
func (m *Manager) UpdateContext(sessionID types.SessionID, query string, sq types.StructuredQuery, now time.Time) (*types.ConversationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[sessionID]
	if !ok || now.After(existing.ExpiresAt) {
		return nil, pipelineerrors.New(pipelineerrors.CodeSessionExpired, "session not found or expired").
			WithStage("conversation")
	}

	turns := append(append([]types.ConversationTurn{}, existing.Turns...), types.ConversationTurn{
		Query:           query,
		StructuredQuery: sq,
		Timestamp:       now,
	})
	if len(turns) > types.MaxTurnWindow {
		turns = turns[len(turns)-types.MaxTurnWindow:]
	}

	updated := &types.ConversationContext{
		SessionID:          existing.SessionID,
		PatientID:          existing.PatientID,
		Turns:              turns,
		LastEntities:       sq.Entities,
		LastTemporalFilter: sq.TemporalFilter,
		LastIntent:         sq.Intent,
		CreatedAt:          existing.CreatedAt,
		ExpiresAt:          existing.ExpiresAt,
	}
	m.sessions[sessionID] = updated

	return updated, nil
}

// followUpPatterns anchor at the start of the (lowercased, trimmed) query.
var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what about`),
	regexp.MustCompile(`^and `),
	regexp.MustCompile(`^when did`),
	regexp.MustCompile(`^how about`),
	regexp.MustCompile(`^also`),
	regexp.MustCompile(`^additionally`),
	regexp.MustCompile(`^tell me more`),
}

// IsFollowUp reports whether query matches a follow-up phrase.
func IsFollowUp(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, p := range followUpPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// ResolveFollowUp inherits missing slots on sq from ctx's last turn when query
// is a follow-up and ctx has at least one prior turn: entities if none were
// extracted, temporal filter if none was parsed, intent if none was
// classified. sq is returned unmodified otherwise.
func ResolveFollowUp(query string, sq types.StructuredQuery, ctx *types.ConversationContext) types.StructuredQuery {
	if ctx == nil || len(ctx.Turns) < 1 || !IsFollowUp(query) {
		return sq
	}

	if len(sq.Entities) == 0 {
		sq.Entities = ctx.LastEntities
	}
	if sq.TemporalFilter == nil {
		sq.TemporalFilter = ctx.LastTemporalFilter
		sq.Filters.DateRange = ctx.LastTemporalFilter
	}
	if sq.Intent == types.IntentUnknown {
		sq.Intent = ctx.LastIntent
	}

	return sq
}

// CleanupExpiredSessions removes every session past its expiry as of now. It
// is idempotent and safe to call concurrently with reads and writes.
func (m *Manager) CleanupExpiredSessions(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, ctx := range m.sessions {
		if now.After(ctx.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of tracked sessions, expired or not.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
