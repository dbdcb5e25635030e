package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patrimon/patrimon/internal/workflow"
)

// RepositoryPort stores in-app notifications.
type RepositoryPort interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

// UserLookup resolves recipient contact details.
type UserLookup interface {
	ResolveUser(ctx context.Context, userID int64) (workflow.Approver, error)
}

// Mailer enqueues outbound email.
type Mailer interface {
	EnqueueEmail(ctx context.Context, to, subject, body string) error
}

// Dispatcher turns transition events into in-app notifications and queued
// emails. It is the terminal consumer of the event stream: every failure is
// logged and swallowed, because the transition that produced the event has
// already committed.
type Dispatcher struct {
	repo   RepositoryPort
	users  UserLookup
	mailer Mailer
	logger *slog.Logger
}

// NewDispatcher constructs a Dispatcher. mailer may be nil when outbound
// email is not configured.
func NewDispatcher(repo RepositoryPort, users UserLookup, mailer Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, users: users, mailer: mailer, logger: logger}
}

var _ workflow.EventSink = (*Dispatcher)(nil)

// Publish fans the event out. Events carrying resolved approvers notify the
// approvers that a decision is waiting; terminal events notify the actor who
// opened the pipeline about its outcome.
func (d *Dispatcher) Publish(ctx context.Context, event workflow.TransitionEvent) {
	if len(event.ResolvedApprovers) > 0 {
		title := "Approval required"
		body := fmt.Sprintf("%s %d is at %s, step %d, waiting for your decision",
			entityLabel(event.EntityType), event.EntityID, event.NewStatus, event.Step)
		for _, userID := range event.ResolvedApprovers {
			d.deliver(ctx, userID, title, body, event)
		}
		return
	}
	if event.ActorID != 0 {
		title := "Request settled"
		if event.EntityType == workflow.EntityAsset {
			title = "Asset updated"
		}
		body := fmt.Sprintf("%s %d moved from %s to %s",
			entityLabel(event.EntityType), event.EntityID, event.OldStatus, event.NewStatus)
		d.deliver(ctx, event.ActorID, title, body, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, userID int64, title, body string, event workflow.TransitionEvent) {
	if _, err := d.repo.Insert(ctx, Notification{
		UserID:   userID,
		Title:    title,
		Body:     body,
		Entity:   string(event.EntityType),
		EntityID: event.EntityID,
	}); err != nil {
		d.logger.Error("store notification",
			slog.Int64("user_id", userID),
			slog.String("event_id", event.EventID.String()),
			slog.Any("error", err))
	}
	if d.mailer == nil {
		return
	}
	user, err := d.users.ResolveUser(ctx, userID)
	if err != nil || user.Email == "" {
		d.logger.Warn("skip email, recipient unresolved",
			slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	if err := d.mailer.EnqueueEmail(ctx, user.Email, title, body); err != nil {
		d.logger.Error("enqueue email",
			slog.String("to", user.Email),
			slog.String("event_id", event.EventID.String()),
			slog.Any("error", err))
	}
}

func entityLabel(t workflow.EntityType) string {
	if t == workflow.EntityRequest {
		return "Request"
	}
	return "Asset"
}
