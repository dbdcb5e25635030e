package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType discriminates the subject of a transition event.
type EntityType string

const (
	// EntityAsset marks events about a single asset.
	EntityAsset EntityType = "asset"
	// EntityRequest marks events about a batch request.
	EntityRequest EntityType = "request"
)

// TransitionEvent is emitted after every committed lifecycle transition.
// The field set is consumed by the notification dispatcher and must stay
// stable for downstream compatibility.
type TransitionEvent struct {
	EventID           uuid.UUID  `json:"event_id"`
	EntityID          int64      `json:"entity_id"`
	EntityType        EntityType `json:"entity_type"`
	OldStatus         string     `json:"old_status"`
	NewStatus         string     `json:"new_status"`
	Step              int        `json:"step"`
	ResolvedApprovers []int64    `json:"resolved_approvers"`
	ActorID           int64      `json:"actor_id"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

// NewTransitionEvent stamps identity and time onto an event.
func NewTransitionEvent(entityType EntityType, entityID int64, oldStatus, newStatus string, step int, approvers []Approver, actorID int64) TransitionEvent {
	ids := make([]int64, 0, len(approvers))
	for _, a := range approvers {
		ids = append(ids, a.ID)
	}
	return TransitionEvent{
		EventID:           uuid.New(),
		EntityID:          entityID,
		EntityType:        entityType,
		OldStatus:         oldStatus,
		NewStatus:         newStatus,
		Step:              step,
		ResolvedApprovers: ids,
		ActorID:           actorID,
		OccurredAt:        time.Now().UTC(),
	}
}

// EventSink consumes transition events. Dispatch is fire-and-forget: the
// transition is committed before Publish runs and publish failures never
// surface as transition failures.
type EventSink interface {
	Publish(ctx context.Context, event TransitionEvent)
}
