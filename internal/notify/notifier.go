package notify

import (
	"context"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// Notifier turns pipeline outcomes into emails. Send failures are logged
// and never propagate: a lost notification must not undo a mailing.
type Notifier struct {
	sender Sender
	ops    string
	log    *logger.Logger
}

// NewNotifier creates a notifier. ops is the operator alert address; alerts
// are only logged when it is empty.
func NewNotifier(sender Sender, ops string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	return &Notifier{sender: sender, ops: ops, log: log.With("component", "notify")}
}

// Mailed tells the user their appeal was delivered.
func (n *Notifier) Mailed(ctx context.Context, in *domain.Intake, mr *domain.MailResult) {
	if !in.EmailVerified {
		return
	}
	n.send(ctx, Message{
		To:      in.Email,
		Subject: fmt.Sprintf("Your appeal for ticket %s was delivered", in.TicketNumber),
		Text: fmt.Sprintf("Your appeal letter for ticket %s was delivered to %s.\n\nTracking number: %s\n",
			in.TicketNumber, mr.To.Name, mr.TrackingID),
		Tags: map[string]string{"intake_id": in.ID, "kind": "mailed"},
	})
}

// Failed tells the user their appeal could not be completed.
func (n *Notifier) Failed(ctx context.Context, in *domain.Intake) {
	if !in.EmailVerified {
		return
	}
	n.send(ctx, Message{
		To:      in.Email,
		Subject: fmt.Sprintf("We could not complete your appeal for ticket %s", in.TicketNumber),
		Text: fmt.Sprintf("We were unable to complete your appeal for ticket %s (%s).\n\nReference: %s\n",
			in.TicketNumber, userReason(in.FailureKind), in.ID),
		Tags: map[string]string{"intake_id": in.ID, "kind": "failed"},
	})
}

// Alert notifies operators about a failed intake.
func (n *Notifier) Alert(ctx context.Context, in *domain.Intake) {
	n.log.Error("intake failed", "intake_id", in.ID, "kind", string(in.FailureKind), "reason", in.FailureReason)
	if n.ops == "" {
		return
	}
	n.send(ctx, Message{
		To:      n.ops,
		Subject: fmt.Sprintf("[appeal] intake %s failed: %s", in.ID, in.FailureKind),
		Text: fmt.Sprintf("intake: %s\ncity: %s\nkind: %s\nreason: %s\nstage attempts: %d\n",
			in.ID, in.CityID, in.FailureKind, in.FailureReason, in.StageAttempts),
		Tags: map[string]string{"intake_id": in.ID, "kind": "alert"},
	})
}

func (n *Notifier) send(ctx context.Context, msg Message) {
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Warn("notification failed", "to", msg.To, "subject", msg.Subject, "error", err)
	}
}

func userReason(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindIneligibleCity:
		return "we do not handle appeals for this city"
	case domain.KindRefinementPolicy:
		return "your statement could not be prepared within our content rules"
	case domain.KindMailPermanent:
		return "the mail carrier rejected the letter"
	case domain.KindStorage:
		return "one of your photos could not be used"
	default:
		return "a processing error"
	}
}
