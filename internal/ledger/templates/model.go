package templates

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Frequency enumerates recurring execution cadences.
type Frequency string

const (
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyAnnual    Frequency = "ANNUAL"
)

// Advance returns the next run time after the given one.
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	case FrequencyAnnual:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Template is a reusable, strongly typed journal entry. Lines are stored
// relationally and validated through the same balance rules as manual
// postings, both when saved and again when applied.
type Template struct {
	ID          int64
	Name        string
	Description string
	Type        ledger.TransactionType
	Recurring   bool
	Frequency   *Frequency
	NextRunAt   *time.Time
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []TemplateLine
}

// TemplateLine mirrors a posting line draft.
type TemplateLine struct {
	ID         int64
	TemplateID int64
	AccountID  int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Memo       string
}

// SaveInput groups fields for creating or replacing a template.
type SaveInput struct {
	Name        string
	Description string
	Type        ledger.TransactionType
	Recurring   bool
	Frequency   *Frequency
	NextRunAt   *time.Time
	CreatedBy   int64
	Lines       []ledger.LineInput
}

// ApplyInput parameterises one execution of a template.
type ApplyInput struct {
	Date        time.Time
	Description string
	ActorID     int64
}

// lineInputs converts stored template lines back to posting drafts.
func lineInputs(lines []TemplateLine) []ledger.LineInput {
	out := make([]ledger.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.LineInput{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	return out
}
