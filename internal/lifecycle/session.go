// Package lifecycle holds the session and participant state machines as pure
// functions: a record and a requested move go in, the new record and the
// event describing the move come out. Nothing here touches storage.
package lifecycle

import (
	"time"

	"tutorhub/backend/internal/models"
)

var sessionEdges = map[models.SessionStatus][]models.SessionStatus{
	models.SessionScheduled: {models.SessionActive, models.SessionEnded, models.SessionCancelled},
	models.SessionActive:    {models.SessionEnded, models.SessionCancelled},
}

var sessionEventTypes = map[models.SessionStatus]string{
	models.SessionActive:    models.EventSessionStarted,
	models.SessionEnded:     models.EventSessionEnded,
	models.SessionCancelled: models.EventSessionCancelled,
}

var sessionActions = map[models.SessionStatus]string{
	models.SessionScheduled: "reschedule",
	models.SessionActive:    "start",
	models.SessionEnded:     "end",
	models.SessionCancelled: "cancel",
}

// CanTransitionSession reports whether from → to is an edge of the session
// state machine.
func CanTransitionSession(from, to models.SessionStatus) bool {
	for _, next := range sessionEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AcceptsJoins reports whether participants may be admitted in status s.
func AcceptsJoins(s models.SessionStatus) bool {
	return s == models.SessionScheduled || s == models.SessionActive
}

// SessionChange is the outcome of a session transition.
type SessionChange struct {
	Session   models.Session
	From      models.SessionStatus
	To        models.SessionStatus
	EventType string
}

// Payload is the event body recorded for the change.
func (c SessionChange) Payload() map[string]any {
	return map[string]any{"from": string(c.From), "to": string(c.To)}
}

// Closes reports whether the change takes the session to a terminal status,
// which forces every joined participant out.
func (c SessionChange) Closes() bool {
	return c.To.Terminal()
}

// TransitionSession moves s to the requested status. actual_start is stamped
// on activation and ended_at on ending; s itself is not modified.
func TransitionSession(s models.Session, to models.SessionStatus, now time.Time) (SessionChange, error) {
	if !CanTransitionSession(s.Status, to) {
		action, ok := sessionActions[to]
		if !ok {
			action = "move to " + string(to)
		}
		return SessionChange{}, &TransitionError{Entity: "session", ID: s.ID, From: string(s.Status), Action: action}
	}

	next := s
	next.Status = to
	switch to {
	case models.SessionActive:
		next.ActualStart = &now
	case models.SessionEnded:
		next.EndedAt = &now
	}

	return SessionChange{
		Session:   next,
		From:      s.Status,
		To:        to,
		EventType: sessionEventTypes[to],
	}, nil
}
