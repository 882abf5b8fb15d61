package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity recomputes the trial balance and alerts on drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskRecurringTemplates posts journal templates that have come due.
	TaskRecurringTemplates = "templates:recurring"
)

// LedgerIntegrityPayload parameterises the integrity sweep.
type LedgerIntegrityPayload struct {
	// AsOf limits the check to transactions dated on or before this day
	// (YYYY-MM-DD). Empty checks the full history.
	AsOf string `json:"as_of,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// RecurringTemplatesPayload parameterises the recurring-template sweep.
type RecurringTemplatesPayload struct {
	// Now overrides the due cutoff (RFC 3339). Empty means time.Now.
	Now string `json:"now,omitempty"`
}

// NewRecurringTemplatesTask constructs an Asynq task.
func NewRecurringTemplatesTask(payload RecurringTemplatesPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringTemplates, data), nil
}
