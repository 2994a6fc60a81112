package lifecycle

import (
	"time"

	"tutorhub/backend/internal/models"
)

var participantEdges = map[models.ConnectionStatus][]models.ConnectionStatus{
	models.StatusInvited: {models.StatusJoined, models.StatusLeft, models.StatusKicked},
	models.StatusJoined:  {models.StatusLeft, models.StatusKicked},
}

var participantActions = map[models.ConnectionStatus]string{
	models.StatusInvited: "invite",
	models.StatusJoined:  "join",
	models.StatusLeft:    "leave",
	models.StatusKicked:  "kick",
}

// CanTransitionParticipant reports whether from → to is an edge of the
// participant state machine. joined → joined is accepted as a no-op.
func CanTransitionParticipant(from, to models.ConnectionStatus) bool {
	if from == models.StatusJoined && to == models.StatusJoined {
		return true
	}
	for _, next := range participantEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParticipantChange is the outcome of a participant transition. Noop is set
// for an idempotent re-join, in which case no event should be recorded.
type ParticipantChange struct {
	Participant models.Participant
	From        models.ConnectionStatus
	To          models.ConnectionStatus
	EventType   string
	Noop        bool
}

// Payload is the event body recorded for the change.
func (c ParticipantChange) Payload() map[string]any {
	return map[string]any{
		"participant_id": c.Participant.ID,
		"user_id":        c.Participant.UserID,
		"role":           string(c.Participant.Role),
		"from":           string(c.From),
		"to":             string(c.To),
	}
}

// TransitionParticipant moves p to the requested connection status.
// joined_at is stamped on the first join only; left_at on departure.
func TransitionParticipant(p models.Participant, to models.ConnectionStatus, now time.Time) (ParticipantChange, error) {
	from := p.ConnectionStatus
	if !CanTransitionParticipant(from, to) {
		return ParticipantChange{}, &TransitionError{Entity: "participant", ID: p.ID, From: string(from), Action: participantActions[to]}
	}
	if from == to {
		return ParticipantChange{Participant: p, From: from, To: to, Noop: true}, nil
	}

	next := p
	next.ConnectionStatus = to
	var eventType string
	switch to {
	case models.StatusJoined:
		if next.JoinedAt == nil {
			next.JoinedAt = &now
		}
		eventType = models.EventParticipantJoined
	case models.StatusLeft:
		next.LeftAt = &now
		eventType = models.EventParticipantLeft
		if from == models.StatusInvited {
			eventType = models.EventParticipantDeclined
		}
	case models.StatusKicked:
		next.LeftAt = &now
		eventType = models.EventParticipantKicked
	}

	return ParticipantChange{Participant: next, From: from, To: to, EventType: eventType}, nil
}
