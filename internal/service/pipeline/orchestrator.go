package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/service/maildispatch"
)

// Refiner produces the refined statement. Errors are *domain.RefinementError.
type Refiner interface {
	Refine(ctx context.Context, in *domain.Intake, facts domain.CaseFacts) (*domain.RefinedStatement, error)
}

// Mailer submits letters and reads their carrier status.
type Mailer interface {
	Send(ctx context.Context, req maildispatch.SendRequest) (*domain.MailResult, error)
	Track(ctx context.Context, trackingID string) (domain.MailStatus, string, error)
}

// Cities resolves a city id against the eligibility registry.
type Cities interface {
	City(ctx context.Context, cityID string) (domain.City, bool)
}

// Notifier is told about terminal outcomes. Implementations swallow their
// own errors.
type Notifier interface {
	Mailed(ctx context.Context, in *domain.Intake, mr *domain.MailResult)
	Failed(ctx context.Context, in *domain.Intake)
	Alert(ctx context.Context, in *domain.Intake)
}

// Observer records stage outcomes, normally into Prometheus.
type Observer interface {
	Stage(stage, outcome string)
}

type nopObserver struct{}

func (nopObserver) Stage(string, string) {}

// Deps groups the orchestrator's collaborators.
type Deps struct {
	Intakes     IntakeRepository
	Payments    PaymentRepository
	Refinements RefinementRepository
	Mail        MailResultRepository
	Refiner     Refiner
	Mailer      Mailer
	Cities      Cities
	Notifier    Notifier
	Observer    Observer
}

// Orchestrator advances intakes one stage at a time.
type Orchestrator struct {
	Deps
	stageAttempts int
	log           *logger.Logger
	inflight      sync.Map
}

// NewOrchestrator builds an orchestrator. stageAttempts bounds how many
// transient failures a single stage may absorb before the intake fails.
func NewOrchestrator(d Deps, stageAttempts int, log *logger.Logger) *Orchestrator {
	if stageAttempts <= 0 {
		stageAttempts = 5
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Orchestrator{Deps: d, stageAttempts: stageAttempts, log: log.With("component", "orchestrator")}
}

// Run advances intakeID as far as it can go now. It returns nil when the
// intake is terminal, waiting on payment, or waiting on the carrier. A
// transient stage failure is returned after being counted against the
// stage budget; the caller or the recovery sweep runs it again later.
func (o *Orchestrator) Run(ctx context.Context, intakeID string) error {
	if _, busy := o.inflight.LoadOrStore(intakeID, struct{}{}); busy {
		return ErrRunInProgress
	}
	defer o.inflight.Delete(intakeID)

	for {
		in, err := o.Intakes.Get(ctx, intakeID)
		if err != nil {
			return fmt.Errorf("load intake %s: %w", intakeID, err)
		}

		var again bool
		switch in.Status {
		case domain.IntakeCreated:
			again, err = o.admit(ctx, in)
		case domain.IntakePaid:
			again, err = o.refine(ctx, in)
		case domain.IntakeRefined:
			again, err = o.mail(ctx, in)
		default:
			return nil
		}
		if err != nil || !again {
			return err
		}
	}
}

// admit handles created -> paid.
func (o *Orchestrator) admit(ctx context.Context, in *domain.Intake) (bool, error) {
	ev, err := o.Payments.AcceptedForIntake(ctx, in.ID)
	if errors.Is(err, ErrNoPayment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	city, ok := o.Cities.City(ctx, in.CityID)
	if !ok || !city.Admissible() {
		o.Observer.Stage("payment", "ineligible")
		return o.fail(ctx, in, &domain.IneligibleCityError{CityID: in.CityID}, "")
	}

	moved, err := o.Intakes.Transition(ctx, in.ID, domain.IntakeCreated, domain.IntakePaid, ev.EventID)
	if err != nil {
		return false, err
	}
	if moved {
		o.Observer.Stage("payment", "ok")
		o.log.Info("intake paid", "intake_id", in.ID, "event_id", ev.EventID)
	}
	return true, nil
}

// refine handles paid -> refined.
func (o *Orchestrator) refine(ctx context.Context, in *domain.Intake) (bool, error) {
	_, err := o.Refinements.Get(ctx, in.ID)
	switch {
	case err == nil:
		// Saved by a run that died before its transition.
	case errors.Is(err, ErrNoRefinement):
		rs, rerr := o.Refiner.Refine(ctx, in, in.Facts(o.cityName(ctx, in.CityID)))
		if rerr != nil {
			return o.stageFailed(ctx, in, "refine", rerr)
		}
		rs.IntakeID = in.ID
		if err := o.Refinements.Save(ctx, rs); err != nil {
			return false, err
		}
	default:
		return false, err
	}

	moved, err := o.Intakes.Transition(ctx, in.ID, domain.IntakePaid, domain.IntakeRefined, "")
	if err != nil {
		return false, err
	}
	if moved {
		o.Observer.Stage("refine", "ok")
		o.log.Info("statement refined", "intake_id", in.ID)
	}
	return true, nil
}

// mail handles refined -> mailed. The letter is sent at most once per run
// and the carrier dedupes repeat sends by idempotency key.
func (o *Orchestrator) mail(ctx context.Context, in *domain.Intake) (bool, error) {
	mr, err := o.Mail.Get(ctx, in.ID)
	if errors.Is(err, ErrNoMailResult) {
		rs, rerr := o.Refinements.Get(ctx, in.ID)
		if rerr != nil {
			return false, fmt.Errorf("intake %s is refined: %w", in.ID, rerr)
		}
		sent, serr := o.Mailer.Send(ctx, maildispatch.SendRequest{
			IntakeID:       in.ID,
			TicketNumber:   in.TicketNumber,
			CityName:       o.cityName(ctx, in.CityID),
			Statement:      rs.Text,
			To:             in.IssuingAuthority,
			From:           in.ReturnAddress,
			IdempotencyKey: domain.MailIdempotencyKey(in.ID),
			PhotoKeys:      in.PhotoKeys,
		})
		if serr != nil {
			return o.stageFailed(ctx, in, "mail", serr)
		}
		inserted, ierr := o.Mail.Insert(ctx, sent)
		if ierr != nil {
			return false, ierr
		}
		if inserted {
			o.Observer.Stage("mail", "submitted")
			o.log.Info("letter submitted", "intake_id", in.ID, "tracking_id", sent.TrackingID)
			mr = sent
		} else if mr, err = o.Mail.Get(ctx, in.ID); err != nil {
			return false, err
		}
	} else if err != nil {
		return false, err
	}
	return o.settle(ctx, in, mr)
}

// settle applies a MailResult's carrier status to a refined intake.
func (o *Orchestrator) settle(ctx context.Context, in *domain.Intake, mr *domain.MailResult) (bool, error) {
	switch {
	case mr.Status.Succeeded():
		moved, err := o.Intakes.Transition(ctx, in.ID, domain.IntakeRefined, domain.IntakeMailed, "")
		if err != nil {
			return false, err
		}
		if !moved {
			return true, nil
		}
		in.Status = domain.IntakeMailed
		o.Observer.Stage("mail", "delivered")
		o.log.Info("letter delivered", "intake_id", in.ID, "tracking_id", mr.TrackingID)
		o.Notifier.Mailed(ctx, in, mr)
		return false, nil
	case mr.Status == domain.MailFailed:
		o.Observer.Stage("mail", "returned")
		reason := "carrier reported failure"
		if mr.FailureReason != "" {
			reason = mr.FailureReason
		}
		return o.fail(ctx, in, &domain.MailDispatchError{Permanent: true, Reason: reason}, "")
	default:
		return false, nil
	}
}

// stageFailed classifies a stage error. Unclassified errors (storage
// outages, cancelled contexts) are returned untouched so the intake is
// retried later. Transient errors consume one unit of the stage budget;
// the intake fails once the budget is spent.
func (o *Orchestrator) stageFailed(ctx context.Context, in *domain.Intake, stage string, err error) (bool, error) {
	var pe domain.PipelineError
	if !errors.As(err, &pe) {
		return false, err
	}
	if !pe.Transient() {
		o.Observer.Stage(stage, "failed")
		return o.fail(ctx, in, err, "")
	}

	n, ierr := o.Intakes.IncrementAttempts(ctx, in.ID, in.Status)
	if ierr != nil {
		return false, errors.Join(err, ierr)
	}
	if n < o.stageAttempts {
		o.Observer.Stage(stage, "retry")
		o.log.Warn("stage failed, will retry", "intake_id", in.ID, "stage", stage, "attempt", n, "error", err)
		return false, err
	}
	o.Observer.Stage(stage, "exhausted")
	return o.fail(ctx, in, err, fmt.Sprintf(" (%v after %d attempts)", ErrBudgetExhausted, n))
}

// fail moves in to failed and tells the user and operators.
func (o *Orchestrator) fail(ctx context.Context, in *domain.Intake, cause error, suffix string) (bool, error) {
	kind := domain.KindOf(cause)
	reason := cause.Error() + suffix
	moved, err := o.Intakes.Fail(ctx, in.ID, in.Status, kind, reason)
	if err != nil {
		return false, err
	}
	if !moved {
		return true, nil
	}
	in.Status = domain.IntakeFailed
	in.FailureKind = kind
	in.FailureReason = reason
	o.Notifier.Failed(ctx, in)
	o.Notifier.Alert(ctx, in)
	return false, nil
}

func (o *Orchestrator) cityName(ctx context.Context, cityID string) string {
	if c, ok := o.Cities.City(ctx, cityID); ok && c.Name != "" {
		return c.Name
	}
	return cityID
}

// RecordDelivery applies a carrier status update for trackingID. Terminal
// MailResult statuses never change. A delivered letter moves its intake to
// mailed; a failed one moves it to failed.
func (o *Orchestrator) RecordDelivery(ctx context.Context, trackingID string, status domain.MailStatus, reason string) error {
	mr, err := o.Mail.GetByTracking(ctx, trackingID)
	if err != nil {
		return err
	}
	if mr.Status.Terminal() || mr.Status == status {
		return nil
	}
	if err := o.Mail.UpdateStatus(ctx, trackingID, status, reason); err != nil {
		return err
	}
	o.log.Info("carrier status", "intake_id", mr.IntakeID, "tracking_id", trackingID, "from", string(mr.Status), "to", string(status))
	if !status.Terminal() {
		return nil
	}

	mr.Status = status
	if reason != "" {
		mr.FailureReason = reason
	}
	in, err := o.Intakes.Get(ctx, mr.IntakeID)
	if err != nil {
		return err
	}
	if in.Status != domain.IntakeRefined {
		return nil
	}
	_, err = o.settle(ctx, in, mr)
	return err
}
