// Package eventlog is the append-only audit trail of session and participant
// transitions. Events are written inside the caller's transaction and
// handed to the live feed only after that transaction has committed.
package eventlog

import (
	"context"
	"log"
	"time"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/storage"

	"gorm.io/datatypes"
)

const maxEventTypeLength = 50

// Publisher forwards committed events to live subscribers.
type Publisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Log records and reads session events.
type Log struct {
	store     storage.Storage
	publisher Publisher
}

// NewLog creates an event log. publisher may be nil.
func NewLog(s storage.Storage, p Publisher) *Log {
	return &Log{store: s, publisher: p}
}

// Record appends an event through tx. actor is nil for system-initiated
// facts. The returned event carries its assigned id.
func (l *Log) Record(ctx context.Context, tx storage.Storage, sessionID string, actor *string, eventType string, payload map[string]any, at time.Time) (models.Event, error) {
	if eventType == "" || len(eventType) > maxEventTypeLength {
		return models.Event{}, lifecycle.Validationf("event type %q must be 1-%d characters", eventType, maxEventTypeLength)
	}

	event := models.Event{
		SessionID: sessionID,
		UserID:    actor,
		EventType: eventType,
		EventData: datatypes.JSONMap(payload),
		Timestamp: at.UTC(),
	}
	if err := tx.AppendEvent(ctx, &event); err != nil {
		return models.Event{}, err
	}
	return event, nil
}

// ListBySession returns the events of a session, oldest first.
func (l *Log) ListBySession(ctx context.Context, sessionID string) ([]models.Event, error) {
	return l.store.ListEvents(ctx, sessionID)
}

// Publish hands committed events to the live feed. The audit rows are
// already durable, so a publish failure is logged and does not fail the
// operation that produced them.
func (l *Log) Publish(ctx context.Context, events []models.Event) {
	if l.publisher == nil {
		return
	}
	for _, event := range events {
		if err := l.publisher.PublishEvent(ctx, event); err != nil {
			log.Printf("ERROR: Failed to publish %s event %d for session %s: %v", event.EventType, event.ID, event.SessionID, err)
		}
	}
}
