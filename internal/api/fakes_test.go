package api

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/queue"
	"github.com/ticketfight/appeal-service/internal/service/intake"
	"github.com/ticketfight/appeal-service/internal/service/maildispatch"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

func quietLogger() *logger.Logger { return logger.New(io.Discard, logger.ERROR, true) }

// memIntakes serves both the intake service and the orchestrator.
type memIntakes struct {
	mu    sync.Mutex
	items map[string]*domain.Intake
}

func newMemIntakes() *memIntakes { return &memIntakes{items: map[string]*domain.Intake{}} }

func (m *memIntakes) Create(_ context.Context, in *domain.Intake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.items[in.ID] = &cp
	return nil
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
	in.Status, in.StageAttempts = to, 0
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
	in.Status, in.FailureKind, in.FailureReason = domain.IntakeFailed, kind, reason
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

func (m *memIntakes) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok {
		return intake.ErrNotFound
	}
	in.EmailVerified = true
	return nil
}

func (m *memIntakes) ListStale(context.Context, time.Time, int) ([]string, error) { return nil, nil }

func (m *memIntakes) status(id string) domain.IntakeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

// memEvents is the dedupe store and the orchestrator's payment lookup.
type memEvents struct {
	mu   sync.Mutex
	byID map[string]*domain.PaymentEvent
}

func newMemEvents() *memEvents { return &memEvents{byID: map[string]*domain.PaymentEvent{}} }

func (m *memEvents) InsertIfAbsent(_ context.Context, ev *domain.PaymentEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[ev.EventID]; ok {
		return false, nil
	}
	m.byID[ev.EventID] = ev
	return true, nil
}

func (m *memEvents) AcceptedForIntake(_ context.Context, id string) (*domain.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.byID {
		if ev.IntakeID == id {
			return ev, nil
		}
	}
	return nil, pipeline.ErrNoPayment
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
		return nil, pipeline.ErrNoRefinement
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
		return nil, pipeline.ErrNoMailResult
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
	return nil, pipeline.ErrNoMailResult
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

func (m *memMail) ListInFlight(context.Context, int) ([]domain.MailResult, error) { return nil, nil }

func (m *memMail) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type countingRefiner struct {
	mu    sync.Mutex
	calls int
}

func (f *countingRefiner) Refine(_ context.Context, in *domain.Intake, facts domain.CaseFacts) (*domain.RefinedStatement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &domain.RefinedStatement{
		IntakeID:        in.ID,
		Text:            "Ticket " + facts.TicketNumber + " was issued while the meter was out of order.",
		PolicyCompliant: true,
		Provider:        "fake",
		Attempts:        1,
	}, nil
}

type countingMailer struct {
	mu    sync.Mutex
	sends int
}

func (f *countingMailer) Send(_ context.Context, req maildispatch.SendRequest) (*domain.MailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return &domain.MailResult{
		IntakeID:       req.IntakeID,
		TrackingID:     "ltr_" + req.IntakeID,
		Status:         domain.MailSubmitted,
		To:             req.To,
		From:           req.From,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

func (f *countingMailer) Track(context.Context, string) (domain.MailStatus, string, error) {
	return domain.MailInTransit, "", nil
}

type nopNotifier struct{}

func (nopNotifier) Mailed(context.Context, *domain.Intake, *domain.MailResult) {}
func (nopNotifier) Failed(context.Context, *domain.Intake)                     {}
func (nopNotifier) Alert(context.Context, *domain.Intake)                      {}

// inlinePublisher runs jobs before Publish returns so tests can assert on
// the outcome of a single request.
type inlinePublisher struct {
	handler queue.Handler
	mu      sync.Mutex
	jobs    []queue.Job
	ctxErr  error
}

func (p *inlinePublisher) Publish(ctx context.Context, job queue.Job) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.ctxErr = ctx.Err()
	p.mu.Unlock()
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, job)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, queue.Job) error { return pipeline.ErrQueueFull }

type stubStats struct {
	byStatus map[domain.IntakeStatus]int
	events   int
	err      error
}

func (s stubStats) Counts(context.Context) (map[domain.IntakeStatus]int, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.byStatus, s.events, nil
}

var errDBDown = errors.New("pq: connection refused")
