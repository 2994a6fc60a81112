// Package participant implements admission to sessions by room code and the
// moves participants make afterwards: leaving, declining, being kicked or
// being invited by the owner.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tutorhub/backend/internal/eventlog"
	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/roomcode"
	"tutorhub/backend/internal/roomprovider"
	"tutorhub/backend/internal/storage"
)

// JoinResult is what a successful join hands back to the caller.
type JoinResult struct {
	Session       models.Session
	Participant   models.Participant
	Credential    roomprovider.Credential
	AlreadyJoined bool
}

// Manager owns participant state. Every operation locks the session row
// first, so all decisions about one session's participants are serialized.
type Manager struct {
	store  storage.Storage
	codes  *roomcode.Registry
	rooms  roomprovider.Provider
	events *eventlog.Log

	Now func() time.Time
}

func NewManager(s storage.Storage, codes *roomcode.Registry, rooms roomprovider.Provider, events *eventlog.Log) *Manager {
	return &Manager{
		store:  s,
		codes:  codes,
		rooms:  rooms,
		events: events,
		Now:    time.Now,
	}
}

func (m *Manager) now() time.Time {
	return m.Now().UTC()
}

// JoinByCode admits userID to the session holding code. The capacity check
// and the admission happen under the session row lock, so concurrent joins
// can never push the joined count past max_participants. Joining again
// while joined changes nothing but returns a fresh credential.
func (m *Manager) JoinByCode(ctx context.Context, code, userID string) (*JoinResult, error) {
	sessionID, err := m.codes.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	var result JoinResult
	var recorded []models.Event
	err = m.store.Transaction(ctx, func(tx storage.Storage) error {
		s, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !lifecycle.AcceptsJoins(s.Status) {
			return &lifecycle.TransitionError{Entity: "session", ID: s.ID, From: string(s.Status), Action: "admit participants"}
		}

		p, err := m.findOrInvite(ctx, tx, s, userID)
		if err != nil {
			return err
		}

		now := m.now()
		change, err := lifecycle.TransitionParticipant(*p, models.StatusJoined, now)
		if err != nil {
			return err
		}

		if !change.Noop {
			joined, err := tx.CountParticipantsByStatus(ctx, s.ID, models.StatusJoined)
			if err != nil {
				return fmt.Errorf("count joined participants: %w", err)
			}
			if joined >= int64(s.MaxParticipants) {
				return fmt.Errorf("%w: session %s has %d of %d seats taken", lifecycle.ErrSessionFull, s.ID, joined, s.MaxParticipants)
			}
			if err := tx.SaveParticipant(ctx, &change.Participant); err != nil {
				return fmt.Errorf("save participant: %w", err)
			}

			event, err := m.events.Record(ctx, tx, s.ID, &userID, change.EventType, change.Payload(), now)
			if err != nil {
				return err
			}
			recorded = append(recorded, event)
		}

		credential, err := m.rooms.MintJoinToken(ctx, roomprovider.RoomHandle{Name: s.RoomName, URL: s.RoomURL}, userID, change.Participant.Role)
		if err != nil {
			return fmt.Errorf("mint join token: %w", err)
		}

		result = JoinResult{
			Session:       *s,
			Participant:   change.Participant,
			Credential:    credential,
			AlreadyJoined: change.Noop,
		}
		return nil
	})
	if err != nil {
		log.Printf("WARNING: Join of %s to session %s refused: %v", userID, sessionID, err)
		return nil, err
	}

	m.events.Publish(ctx, recorded)
	if !result.AlreadyJoined {
		log.Printf("INFO: User %s joined session %s as %s", userID, sessionID, result.Participant.Role)
	}
	return &result, nil
}

// findOrInvite returns the participant row of userID, creating an invited
// one when the user has none. The role is teacher only for the owner.
func (m *Manager) findOrInvite(ctx context.Context, tx storage.Storage, s *models.Session, userID string) (*models.Participant, error) {
	p, err := tx.GetParticipant(ctx, s.ID, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, lifecycle.ErrNotFound) {
		return nil, err
	}

	role := models.RoleStudent
	if userID == s.TeacherID {
		role = models.RoleTeacher
	}
	p = &models.Participant{
		SessionID:        s.ID,
		UserID:           userID,
		Role:             role,
		ConnectionStatus: models.StatusInvited,
		CreatedAt:        m.now(),
	}
	if err := tx.CreateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

// Kick removes a joined participant on the owner's behalf.
func (m *Manager) Kick(ctx context.Context, sessionID, actorID, targetID string) (*models.Participant, error) {
	return m.depart(ctx, sessionID, actorID, targetID, models.StatusKicked, func(s *models.Session, p *models.Participant) error {
		if s.TeacherID != actorID {
			return lifecycle.Forbiddenf("user %s does not own session %s", actorID, sessionID)
		}
		if targetID == s.TeacherID {
			return lifecycle.Validationf("the owner of session %s cannot be kicked", sessionID)
		}
		if p == nil {
			return nil
		}
		if p.ConnectionStatus != models.StatusJoined {
			return &lifecycle.TransitionError{Entity: "participant", ID: p.ID, From: string(p.ConnectionStatus), Action: "kick"}
		}
		return nil
	})
}

// Leave lets a joined participant leave the session.
func (m *Manager) Leave(ctx context.Context, sessionID, userID string) (*models.Participant, error) {
	return m.depart(ctx, sessionID, userID, userID, models.StatusLeft, func(_ *models.Session, p *models.Participant) error {
		if p != nil && p.ConnectionStatus != models.StatusJoined {
			return &lifecycle.TransitionError{Entity: "participant", ID: p.ID, From: string(p.ConnectionStatus), Action: "leave"}
		}
		return nil
	})
}

// Decline lets an invited user turn the invitation down.
func (m *Manager) Decline(ctx context.Context, sessionID, userID string) (*models.Participant, error) {
	return m.depart(ctx, sessionID, userID, userID, models.StatusLeft, func(_ *models.Session, p *models.Participant) error {
		if p != nil && p.ConnectionStatus != models.StatusInvited {
			return &lifecycle.TransitionError{Entity: "participant", ID: p.ID, From: string(p.ConnectionStatus), Action: "decline"}
		}
		return nil
	})
}

// depart moves targetID's row to a departed status. check runs twice under
// the session lock: once before the row is read with p nil, so ownership
// failures win over a missing row, and once with the row.
func (m *Manager) depart(ctx context.Context, sessionID, actorID, targetID string, to models.ConnectionStatus, check func(*models.Session, *models.Participant) error) (*models.Participant, error) {
	var updated models.Participant
	var recorded []models.Event
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		s, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := check(s, nil); err != nil {
			return err
		}

		p, err := tx.GetParticipant(ctx, sessionID, targetID)
		if err != nil {
			return err
		}
		if err := check(s, p); err != nil {
			return err
		}

		now := m.now()
		change, err := lifecycle.TransitionParticipant(*p, to, now)
		if err != nil {
			return err
		}
		updated = change.Participant
		if err := tx.SaveParticipant(ctx, &updated); err != nil {
			return fmt.Errorf("save participant: %w", err)
		}

		event, err := m.events.Record(ctx, tx, sessionID, &actorID, change.EventType, change.Payload(), now)
		if err != nil {
			return err
		}
		recorded = append(recorded, event)
		return nil
	})
	if err != nil {
		log.Printf("WARNING: Session %s: %s of %s by %s refused: %v", sessionID, to, targetID, actorID, err)
		return nil, err
	}

	m.events.Publish(ctx, recorded)
	log.Printf("INFO: Session %s: participant %s is now %s", sessionID, targetID, to)
	return &updated, nil
}

// Invite creates invited student rows for the given users. Users that
// already hold a row are skipped; unknown users fail the whole call.
func (m *Manager) Invite(ctx context.Context, sessionID, actorID string, userIDs []string) ([]models.Participant, error) {
	if len(userIDs) == 0 {
		return nil, lifecycle.Validationf("no users to invite")
	}

	var invited []models.Participant
	var recorded []models.Event
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		s, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.TeacherID != actorID {
			return lifecycle.Forbiddenf("user %s does not own session %s", actorID, sessionID)
		}
		if s.Status.Terminal() {
			return &lifecycle.TransitionError{Entity: "session", ID: s.ID, From: string(s.Status), Action: "invite participants"}
		}

		missing, err := tx.MissingUsers(ctx, userIDs)
		if err != nil {
			return fmt.Errorf("look up users: %w", err)
		}
		if len(missing) > 0 {
			return lifecycle.NotFoundf("users %v", missing)
		}

		now := m.now()
		seen := make(map[string]bool, len(userIDs))
		for _, userID := range userIDs {
			if seen[userID] || userID == s.TeacherID {
				continue
			}
			seen[userID] = true

			_, err := tx.GetParticipant(ctx, sessionID, userID)
			if err == nil {
				continue
			}
			if !errors.Is(err, lifecycle.ErrNotFound) {
				return err
			}

			p := models.Participant{
				SessionID:        sessionID,
				UserID:           userID,
				Role:             models.RoleStudent,
				ConnectionStatus: models.StatusInvited,
				CreatedAt:        now,
			}
			if err := tx.CreateParticipant(ctx, &p); err != nil {
				return fmt.Errorf("create participant: %w", err)
			}
			invited = append(invited, p)

			event, err := m.events.Record(ctx, tx, sessionID, &actorID, models.EventParticipantInvited, map[string]any{
				"participant_id": p.ID,
				"user_id":        userID,
				"role":           string(p.Role),
				"from":           nil,
				"to":             string(models.StatusInvited),
			}, now)
			if err != nil {
				return err
			}
			recorded = append(recorded, event)
		}
		return nil
	})
	if err != nil {
		log.Printf("WARNING: Session %s: invitations by %s refused: %v", sessionID, actorID, err)
		return nil, err
	}

	m.events.Publish(ctx, recorded)
	log.Printf("INFO: Session %s: %d users invited by %s", sessionID, len(invited), actorID)
	return invited, nil
}
