package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	ActionRunCreated        = "payroll.run.created"
	ActionRunExported       = "payroll.run.exported"
	ActionRegisterExported  = "payroll.register.exported"
	ActionPayslipDownloaded = "payroll.payslip.downloaded"
)

// Event is one recorded action against a payroll run.
type Event struct {
	ID        string          `json:"id"`
	Actor     string          `json:"actor"`
	Role      string          `json:"role"`
	Action    string          `json:"action"`
	RunID     string          `json:"runId"`
	Line      int             `json:"line,omitempty"`
	RequestID string          `json:"requestId"`
	IP        string          `json:"ip"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Filter struct {
	Action string
	RunID  string
	Actor  string
}

func (f Filter) matches(evt Event) bool {
	return (f.Action == "" || f.Action == evt.Action) &&
		(f.RunID == "" || f.RunID == evt.RunID) &&
		(f.Actor == "" || f.Actor == evt.Actor)
}

type Store interface {
	Insert(ctx context.Context, evt Event) error
	Count(ctx context.Context, filter Filter) (int, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// Record stores evt with details marshalled from the given value. Failures
// are logged and never returned to the caller.
func (s *Service) Record(ctx context.Context, evt Event, details any) {
	if s == nil || s.store == nil {
		return
	}
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			slog.Warn("audit details marshal failed", "action", evt.Action, "err", err)
		} else {
			evt.Details = payload
		}
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if err := s.store.Insert(ctx, evt); err != nil {
		slog.Warn("audit record failed", "action", evt.Action, "runId", evt.RunID, "err", err)
	}
}

// Export returns every event matching filter, newest first.
func (s *Service) Export(ctx context.Context, filter Filter) ([]Event, error) {
	return s.store.List(ctx, filter, 0, 0)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, int, error) {
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	events, err := s.store.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
