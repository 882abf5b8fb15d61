package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// LedgerIntegrityJob recomputes the trial balance over posted lines and alerts
// when aggregate debits and credits drift apart. A non-zero drift means a
// posting bypassed validation or the line store was mutated out of band.
type LedgerIntegrityJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewLedgerIntegrityJob initialises the integrity check handler.
func NewLedgerIntegrityJob(ledgerSvc *ledger.Service, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Ledger: ledgerSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	var asOf *time.Time
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = &parsed
	}

	start := time.Now()
	tb, err := j.Ledger.TrialBalance(ctx, asOf)
	if err != nil {
		j.logger().Error("trial balance recompute failed", slog.Any("error", err))
		return err
	}

	drift := tb.TotalDebit.Sub(tb.TotalCredit)
	if j.Metrics != nil {
		j.Metrics.SetIntegrityDrift(drift.InexactFloat64())
	}
	if tb.Balanced() {
		j.logger().Info("ledger integrity check passed",
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
			slog.Int("accounts", len(tb.Rows)),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	}

	j.logger().Error("ledger integrity drift detected",
		slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
		slog.String("total_credit", tb.TotalCredit.StringFixed(2)),
		slog.String("drift", drift.StringFixed(2)),
	)
	return nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
