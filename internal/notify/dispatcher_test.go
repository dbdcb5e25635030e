package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
)

type memNotifications struct {
	seq       int64
	stored    []Notification
	insertErr error
}

func (m *memNotifications) Insert(_ context.Context, n Notification) (Notification, error) {
	if m.insertErr != nil {
		return Notification{}, m.insertErr
	}
	m.seq++
	n.ID = m.seq
	m.stored = append(m.stored, n)
	return n, nil
}

func (m *memNotifications) ListForUser(_ context.Context, userID int64, unreadOnly bool, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range m.stored {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memNotifications) UnreadCount(_ context.Context, userID int64) (int, error) {
	count := 0
	for _, n := range m.stored {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) MarkRead(_ context.Context, userID, id int64) error {
	for i, n := range m.stored {
		if n.ID == id && n.UserID == userID {
			m.stored[i].Read = true
		}
	}
	return nil
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID int64) error {
	for i, n := range m.stored {
		if n.UserID == userID {
			m.stored[i].Read = true
		}
	}
	return nil
}

type memUsers struct{ users map[int64]workflow.Approver }

func (m *memUsers) ResolveUser(_ context.Context, userID int64) (workflow.Approver, error) {
	user, ok := m.users[userID]
	if !ok {
		return workflow.Approver{}, shared.ErrNotFound
	}
	return user, nil
}

type memMailer struct {
	sent []string
	err  error
}

func (m *memMailer) EnqueueEmail(_ context.Context, to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func pendingEvent(approvers ...int64) workflow.TransitionEvent {
	return workflow.NewTransitionEvent(workflow.EntityAsset, 7, "", "PENDING", 1,
		approversFor(approvers), 300)
}

func approversFor(ids []int64) []workflow.Approver {
	out := make([]workflow.Approver, 0, len(ids))
	for _, id := range ids {
		out = append(out, workflow.Approver{ID: id})
	}
	return out
}

func TestPublishNotifiesApprovers(t *testing.T) {
	repo := &memNotifications{}
	users := &memUsers{users: map[int64]workflow.Approver{
		200: {ID: 200, Email: "approver@example.com"},
		201: {ID: 201, Email: "approver2@example.com"},
	}}
	mailer := &memMailer{}
	dispatcher := NewDispatcher(repo, users, mailer, slog.Default())

	dispatcher.Publish(context.Background(), pendingEvent(200, 201))

	require.Len(t, repo.stored, 2)
	require.Equal(t, int64(200), repo.stored[0].UserID)
	require.Equal(t, "Approval required", repo.stored[0].Title)
	require.Equal(t, "asset", repo.stored[0].Entity)
	require.ElementsMatch(t, []string{"approver@example.com", "approver2@example.com"}, mailer.sent)
}

func TestPublishNotifiesSubmitterOnOutcome(t *testing.T) {
	repo := &memNotifications{}
	users := &memUsers{users: map[int64]workflow.Approver{
		300: {ID: 300, Email: "operator@example.com"},
	}}
	mailer := &memMailer{}
	dispatcher := NewDispatcher(repo, users, mailer, slog.Default())

	event := workflow.NewTransitionEvent(workflow.EntityRequest, 4, "PENDING", "APPROVED", 2, nil, 300)
	dispatcher.Publish(context.Background(), event)

	require.Len(t, repo.stored, 1)
	require.Equal(t, int64(300), repo.stored[0].UserID)
	require.Contains(t, repo.stored[0].Body, "PENDING to APPROVED")
	require.Equal(t, []string{"operator@example.com"}, mailer.sent)
}

// Dispatch failures never propagate: Publish has no error to return and
// must not panic whatever breaks underneath.
func TestPublishSwallowsFailures(t *testing.T) {
	repo := &memNotifications{insertErr: errors.New("notifications table missing")}
	users := &memUsers{users: map[int64]workflow.Approver{}}
	mailer := &memMailer{err: errors.New("redis down")}
	dispatcher := NewDispatcher(repo, users, mailer, slog.Default())

	require.NotPanics(t, func() {
		dispatcher.Publish(context.Background(), pendingEvent(200))
	})
	require.Empty(t, repo.stored)
	require.Empty(t, mailer.sent)
}

func TestPublishWithoutMailerStillStores(t *testing.T) {
	repo := &memNotifications{}
	dispatcher := NewDispatcher(repo, &memUsers{}, nil, slog.Default())

	dispatcher.Publish(context.Background(), pendingEvent(200))
	require.Len(t, repo.stored, 1)
}
