package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger/templates"
)

// RecurringTemplatesJob posts every recurring journal template whose next run
// has come due. Each template goes through the standard balance validation;
// a template that fails validation is logged and skipped, not retried blindly.
type RecurringTemplatesJob struct {
	Templates *templates.Service
	Logger    *slog.Logger
}

// NewRecurringTemplatesJob initialises the recurring sweep handler.
func NewRecurringTemplatesJob(svc *templates.Service, logger *slog.Logger) *RecurringTemplatesJob {
	return &RecurringTemplatesJob{Templates: svc, Logger: logger}
}

// Handle executes the recurring sweep.
func (j *RecurringTemplatesJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Templates == nil {
		return errors.New("recurring templates: handler not configured")
	}
	var payload RecurringTemplatesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	now := time.Now().UTC()
	if payload.Now != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Now)
		if err != nil {
			return asynq.SkipRetry
		}
		now = parsed
	}

	start := time.Now()
	posted, err := j.Templates.RunDue(ctx, now)
	if err != nil {
		j.logger().Error("recurring template sweep failed",
			slog.Int("posted", posted),
			slog.Any("error", err),
		)
		return err
	}
	j.logger().Info("recurring template sweep completed",
		slog.Int("posted", posted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RecurringTemplatesJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
