package conversation

import (
	"time"

	"clinical-nlq/internal/logging"

	cronlib "github.com/robfig/cron/v3"
)

// StartCleanupScheduler registers a periodic cleanup_expired_sessions job and
// starts the cron runner. Callers keep the returned *cronlib.Cron to Stop()
// it during shutdown.
func StartCleanupScheduler(m *Manager, period time.Duration) (*cronlib.Cron, error) {
	c := cronlib.New()
	spec := "@every " + period.String()
	log := logging.GetComponentLogger("conversation")

	_, err := c.AddFunc(spec, func() {
		removed := m.CleanupExpiredSessions(time.Now())
		if removed > 0 {
			log.Info("cleaned up expired sessions", "removed", removed)
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
