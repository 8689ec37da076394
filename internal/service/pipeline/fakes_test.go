package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/intake"
	"github.com/ticketfight/appeal-service/internal/service/maildispatch"
)

type memIntakes struct {
	mu    sync.Mutex
	items map[string]*domain.Intake
	stale []string
}

func newMemIntakes(in ...*domain.Intake) *memIntakes {
	m := &memIntakes{items: map[string]*domain.Intake{}}
	for _, i := range in {
		m.items[i.ID] = i
	}
	return m
}

func (m *memIntakes) Get(_ context.Context, id string) (*domain.Intake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok {
		return nil, intake.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (m *memIntakes) Transition(_ context.Context, id string, from, to domain.IntakeStatus, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok || in.Status != from {
		return false, nil
	}
	in.Status = to
	in.StageAttempts = 0
	if eventID != "" {
		in.PaymentEventID = eventID
	}
	return true, nil
}

func (m *memIntakes) Fail(_ context.Context, id string, from domain.IntakeStatus, kind domain.ErrorKind, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok || in.Status != from {
		return false, nil
	}
	in.Status = domain.IntakeFailed
	in.FailureKind = kind
	in.FailureReason = reason
	return true, nil
}

func (m *memIntakes) IncrementAttempts(_ context.Context, id string, status domain.IntakeStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok || in.Status != status {
		return 0, intake.ErrNotFound
	}
	in.StageAttempts++
	return in.StageAttempts, nil
}

func (m *memIntakes) ListStale(_ context.Context, _ time.Time, limit int) ([]string, error) {
	if len(m.stale) > limit {
		return m.stale[:limit], nil
	}
	return m.stale, nil
}

func (m *memIntakes) status(id string) domain.IntakeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

func (m *memIntakes) get(id string) domain.Intake {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

type memPayments struct {
	events map[string]*domain.PaymentEvent
}

func (m *memPayments) AcceptedForIntake(_ context.Context, id string) (*domain.PaymentEvent, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNoPayment
	}
	return ev, nil
}

type memRefinements struct {
	mu    sync.Mutex
	items map[string]*domain.RefinedStatement
}

func (m *memRefinements) Save(_ context.Context, rs *domain.RefinedStatement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[rs.IntakeID]; !ok {
		m.items[rs.IntakeID] = rs
	}
	return nil
}

func (m *memRefinements) Get(_ context.Context, id string) (*domain.RefinedStatement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.items[id]
	if !ok {
		return nil, ErrNoRefinement
	}
	return rs, nil
}

type memMail struct {
	mu    sync.Mutex
	items map[string]*domain.MailResult
}

func (m *memMail) Insert(_ context.Context, res *domain.MailResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[res.IntakeID]; ok {
		return false, nil
	}
	cp := *res
	m.items[res.IntakeID] = &cp
	return true, nil
}

func (m *memMail) Get(_ context.Context, id string) (*domain.MailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.items[id]
	if !ok {
		return nil, ErrNoMailResult
	}
	cp := *mr
	return &cp, nil
}

func (m *memMail) GetByTracking(_ context.Context, tid string) (*domain.MailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mr := range m.items {
		if mr.TrackingID == tid {
			cp := *mr
			return &cp, nil
		}
	}
	return nil, ErrNoMailResult
}

func (m *memMail) UpdateStatus(_ context.Context, tid string, status domain.MailStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mr := range m.items {
		if mr.TrackingID == tid && !mr.Status.Terminal() {
			mr.Status = status
			if reason != "" {
				mr.FailureReason = reason
			}
		}
	}
	return nil
}

func (m *memMail) ListInFlight(_ context.Context, _ int) ([]domain.MailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MailResult
	for _, mr := range m.items {
		if !mr.Status.Terminal() {
			out = append(out, *mr)
		}
	}
	return out, nil
}

func (m *memMail) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type fakeRefiner struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeRefiner) Refine(_ context.Context, in *domain.Intake, facts domain.CaseFacts) (*domain.RefinedStatement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.RefinedStatement{
		IntakeID:        in.ID,
		Text:            "Ticket " + facts.TicketNumber + " in " + facts.CityName + " should be dismissed.",
		PolicyCompliant: true,
		Provider:        "fake",
		Attempts:        1,
	}, nil
}

func (f *fakeRefiner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMailer struct {
	mu       sync.Mutex
	sends    []maildispatch.SendRequest
	sendErr  error
	tracked  domain.MailStatus
	trackErr error
}

func (f *fakeMailer) Send(_ context.Context, req maildispatch.SendRequest) (*domain.MailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &domain.MailResult{
		IntakeID:       req.IntakeID,
		TrackingID:     "ltr_" + req.IntakeID,
		Status:         domain.MailSubmitted,
		To:             req.To,
		From:           req.From,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

func (f *fakeMailer) Track(_ context.Context, _ string) (domain.MailStatus, string, error) {
	if f.trackErr != nil {
		return "", "", f.trackErr
	}
	return f.tracked, "", nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type staticCities map[string]domain.City

func (c staticCities) City(_ context.Context, id string) (domain.City, bool) {
	city, ok := c[id]
	return city, ok
}

type recordingNotifier struct {
	mu     sync.Mutex
	mailed []string
	failed []string
	alerts []string
}

func (r *recordingNotifier) Mailed(_ context.Context, in *domain.Intake, _ *domain.MailResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailed = append(r.mailed, in.ID)
}

func (r *recordingNotifier) Failed(_ context.Context, in *domain.Intake) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, in.ID)
}

func (r *recordingNotifier) Alert(_ context.Context, in *domain.Intake) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, string(in.FailureKind))
}
