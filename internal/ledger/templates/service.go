package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access for templates.
type RepositoryPort interface {
	Save(ctx context.Context, in SaveInput) (Template, error)
	Replace(ctx context.Context, id int64, in SaveInput) (Template, error)
	Get(ctx context.Context, id int64) (Template, error)
	List(ctx context.Context) ([]Template, error)
	Delete(ctx context.Context, id int64) error
	ListDue(ctx context.Context, now time.Time) ([]Template, error)
	AdvanceNextRun(ctx context.Context, id int64, next time.Time) error
}

// LedgerPort is the slice of the ledger service templates depend on.
type LedgerPort interface {
	PostTransaction(ctx context.Context, input ledger.PostingInput) (ledger.Transaction, error)
}

// AuditPort records template events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages journal templates and recurring execution.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the template service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) validate(in SaveInput) error {
	if in.Name == "" {
		return &ledger.Error{Code: ledger.CodeValidationFailed, Message: "template name required"}
	}
	if in.Recurring && in.Frequency == nil {
		return &ledger.Error{Code: ledger.CodeValidationFailed, Message: "recurring template requires a frequency"}
	}
	// Template lines obey the same shape and balance rules as a posting.
	_, err := ledger.PostingInput{Lines: in.Lines}.ValidateAndBalance()
	return err
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, in SaveInput) (Template, error) {
	if err := s.validate(in); err != nil {
		return Template{}, err
	}
	if in.Type == "" {
		in.Type = ledger.TransactionTypeJournal
	}
	tpl, err := s.repo.Save(ctx, in)
	if err != nil {
		return Template{}, err
	}
	s.record(ctx, in.CreatedBy, "template.create", tpl)
	return tpl, nil
}

// Update validates and replaces an existing template with its lines.
func (s *Service) Update(ctx context.Context, id int64, in SaveInput) (Template, error) {
	if err := s.validate(in); err != nil {
		return Template{}, err
	}
	tpl, err := s.repo.Replace(ctx, id, in)
	if err != nil {
		return Template{}, err
	}
	s.record(ctx, in.CreatedBy, "template.update", tpl)
	return tpl, nil
}

// Get loads one template with lines.
func (s *Service) Get(ctx context.Context, id int64) (Template, error) {
	return s.repo.Get(ctx, id)
}

// List returns all templates.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	return s.repo.List(ctx)
}

// Delete removes a template. Posted transactions created from it are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Apply executes a template as a posted transaction dated per the input.
func (s *Service) Apply(ctx context.Context, id int64, in ApplyInput) (ledger.Transaction, error) {
	tpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	description := in.Description
	if description == "" {
		description = tpl.Description
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	txn, err := s.ledger.PostTransaction(ctx, ledger.PostingInput{
		Date:        date,
		Description: description,
		Reference:   fmt.Sprintf("TPL-%d", tpl.ID),
		Type:        tpl.Type,
		CreatedBy:   in.ActorID,
		SourceRef:   uuid.New(),
		Lines:       lineInputs(tpl.Lines),
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.record(ctx, in.ActorID, "template.apply", tpl)
	return txn, nil
}

// RunDue executes every recurring template whose next run is at or before now
// and advances its schedule. Failures on one template do not block the rest;
// the first error is returned after the sweep.
func (s *Service) RunDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}
	applied := 0
	var firstErr error
	for _, tpl := range due {
		if _, err := s.Apply(ctx, tpl.ID, ApplyInput{Date: now, ActorID: tpl.CreatedBy}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied++
		if tpl.Frequency != nil {
			base := now
			if tpl.NextRunAt != nil {
				base = *tpl.NextRunAt
			}
			if err := s.repo.AdvanceNextRun(ctx, tpl.ID, tpl.Frequency.Advance(base)); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return applied, firstErr
}

func (s *Service) record(ctx context.Context, actorID int64, action string, tpl Template) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_template",
		EntityID: fmt.Sprintf("%d", tpl.ID),
		Meta:     map[string]any{"name": tpl.Name, "line_count": len(tpl.Lines)},
		At:       s.now(),
	})
}
