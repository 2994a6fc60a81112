// Package session implements the session lifecycle: creation with a
// provisioned room and a fresh room code, the owner-driven status moves,
// settings updates and the read views used by the API.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tutorhub/backend/internal/config"
	"tutorhub/backend/internal/eventlog"
	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/roomcode"
	"tutorhub/backend/internal/roomprovider"
	"tutorhub/backend/internal/storage"

	"github.com/google/uuid"
)

// CreateInput carries the settings of a new session. Nil MaxParticipants
// selects the default; nil EnableChat means chat on.
type CreateInput struct {
	Title           string
	Description     *string
	ScheduledStart  *time.Time
	MaxParticipants *int
	EnableRecording bool
	EnableChat      *bool
	Topics          []string
}

// SettingsPatch is a partial update. Nil fields are left untouched.
type SettingsPatch struct {
	Title           *string
	Description     *string
	ScheduledStart  *time.Time
	MaxParticipants *int
	EnableRecording *bool
	EnableChat      *bool
	Topics          *[]string
	Status          *models.SessionStatus
}

// Detail is a session with its participants and its ordered event log.
type Detail struct {
	Session      models.Session
	Participants []models.Participant
	Events       []models.Event
}

// ListFilter selects a page of sessions. Zero Limit selects the default
// page size.
type ListFilter struct {
	Status models.SessionStatus
	Offset int
	Limit  int
}

// Page is one page of a session listing.
type Page struct {
	Sessions []models.Session
	Total    int64
	Offset   int
	Limit    int
}

// Manager owns session state. All mutations run in one store transaction
// and publish their events only after it commits.
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

// Create provisions a room, reserves a room code and stores the session in
// status scheduled together with the owner's participant row.
func (m *Manager) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Session, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	maxParticipants := config.DefaultMaxParticipants
	if in.MaxParticipants != nil {
		maxParticipants = *in.MaxParticipants
	}
	if err := validateCapacity(maxParticipants); err != nil {
		return nil, err
	}
	enableChat := true
	if in.EnableChat != nil {
		enableChat = *in.EnableChat
	}

	sessionID := uuid.New().String()
	room, err := m.rooms.ProvisionRoom(ctx, roomprovider.RoomRequest{
		SessionID:       sessionID,
		Title:           title,
		MaxParticipants: maxParticipants,
		EnableRecording: in.EnableRecording,
		EnableChat:      enableChat,
		NotBefore:       in.ScheduledStart,
	})
	if err != nil {
		log.Printf("ERROR: Failed to provision room for session %s: %v", sessionID, err)
		return nil, fmt.Errorf("provision room: %w", err)
	}

	var created models.Session
	var recorded []models.Event
	err = m.store.Transaction(ctx, func(tx storage.Storage) error {
		code, err := m.codes.Generate(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		now := m.now()
		created = models.Session{
			ID:              sessionID,
			TeacherID:       ownerID,
			Title:           title,
			Description:     in.Description,
			Status:          models.SessionScheduled,
			RoomName:        room.Name,
			RoomURL:         room.URL,
			RoomCode:        code,
			ScheduledStart:  in.ScheduledStart,
			MaxParticipants: maxParticipants,
			EnableRecording: in.EnableRecording,
			EnableChat:      enableChat,
			Topics:          models.Topics(in.Topics),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateSession(ctx, &created); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		owner := models.Participant{
			SessionID:        sessionID,
			UserID:           ownerID,
			Role:             models.RoleTeacher,
			ConnectionStatus: models.StatusInvited,
			CreatedAt:        now,
		}
		if err := tx.CreateParticipant(ctx, &owner); err != nil {
			return fmt.Errorf("create owner participant: %w", err)
		}

		event, err := m.events.Record(ctx, tx, sessionID, &ownerID, models.EventSessionCreated, map[string]any{
			"from":             nil,
			"to":               string(models.SessionScheduled),
			"room_code":        code,
			"max_participants": maxParticipants,
		}, now)
		if err != nil {
			return err
		}
		recorded = append(recorded, event)
		return nil
	})
	if err != nil {
		log.Printf("ERROR: Failed to create session for teacher %s: %v", ownerID, err)
		return nil, err
	}

	m.codes.Remember(ctx, created.RoomCode, created.ID)
	m.events.Publish(ctx, recorded)
	log.Printf("INFO: Session %s created by %s with room code %s", created.ID, ownerID, created.RoomCode)
	return &created, nil
}

// Start moves a scheduled session to active.
func (m *Manager) Start(ctx context.Context, sessionID, actorID string) (*models.Session, error) {
	return m.transition(ctx, sessionID, actorID, models.SessionActive)
}

// End moves an active session, or a scheduled one nobody started, to ended
// and forces every joined participant out.
func (m *Manager) End(ctx context.Context, sessionID, actorID string) (*models.Session, error) {
	return m.transition(ctx, sessionID, actorID, models.SessionEnded)
}

// Cancel moves a scheduled or active session to cancelled and forces every
// joined participant out.
func (m *Manager) Cancel(ctx context.Context, sessionID, actorID string) (*models.Session, error) {
	return m.transition(ctx, sessionID, actorID, models.SessionCancelled)
}

func (m *Manager) transition(ctx context.Context, sessionID, actorID string, to models.SessionStatus) (*models.Session, error) {
	var updated models.Session
	var recorded []models.Event
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		current, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.TeacherID != actorID {
			return lifecycle.Forbiddenf("user %s does not own session %s", actorID, sessionID)
		}

		now := m.now()
		change, err := lifecycle.TransitionSession(*current, to, now)
		if err != nil {
			return err
		}
		updated = change.Session
		updated.UpdatedAt = now
		if err := tx.SaveSession(ctx, &updated); err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		event, err := m.events.Record(ctx, tx, sessionID, &actorID, change.EventType, change.Payload(), now)
		if err != nil {
			return err
		}
		recorded = append(recorded, event)

		cascaded, err := m.cascade(ctx, tx, change, actorID, now)
		recorded = append(recorded, cascaded...)
		return err
	})
	if err != nil {
		log.Printf("WARNING: Session %s: %s by %s refused: %v", sessionID, to, actorID, err)
		return nil, err
	}

	m.events.Publish(ctx, recorded)
	log.Printf("INFO: Session %s moved to %s by %s", sessionID, to, actorID)
	return &updated, nil
}

// cascade forces every joined participant to left when change closes the
// session. It runs inside the transaction of the session transition.
func (m *Manager) cascade(ctx context.Context, tx storage.Storage, change lifecycle.SessionChange, actorID string, now time.Time) ([]models.Event, error) {
	if !change.Closes() {
		return nil, nil
	}

	joined, err := tx.ListParticipantsByStatus(ctx, change.Session.ID, models.StatusJoined)
	if err != nil {
		return nil, fmt.Errorf("list joined participants: %w", err)
	}

	reason := "session_ended"
	if change.To == models.SessionCancelled {
		reason = "session_cancelled"
	}

	var recorded []models.Event
	for _, p := range joined {
		pc, err := lifecycle.TransitionParticipant(p, models.StatusLeft, now)
		if err != nil {
			return recorded, err
		}
		if err := tx.SaveParticipant(ctx, &pc.Participant); err != nil {
			return recorded, fmt.Errorf("save participant %s: %w", p.ID, err)
		}

		payload := pc.Payload()
		payload["reason"] = reason
		event, err := m.events.Record(ctx, tx, change.Session.ID, &actorID, pc.EventType, payload, now)
		if err != nil {
			return recorded, err
		}
		recorded = append(recorded, event)
	}

	if len(joined) > 0 {
		log.Printf("INFO: Session %s: %d participants forced out (%s)", change.Session.ID, len(joined), reason)
	}
	return recorded, nil
}

// UpdateSettings applies patch to the session. A status in the patch is an
// administrative override and must still be a legal edge; closing the
// session that way forces joined participants out as End and Cancel do.
// A patch that changes nothing records no event.
func (m *Manager) UpdateSettings(ctx context.Context, sessionID, actorID string, patch SettingsPatch) (*models.Session, error) {
	var updated models.Session
	var recorded []models.Event
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		current, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.TeacherID != actorID {
			return lifecycle.Forbiddenf("user %s does not own session %s", actorID, sessionID)
		}

		next := *current
		changes := map[string]any{}

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if err := validateTitle(title); err != nil {
				return err
			}
			if title != next.Title {
				next.Title = title
				changes["title"] = title
			}
		}
		if patch.Description != nil && !equalStringPtr(next.Description, patch.Description) {
			description := *patch.Description
			next.Description = &description
			changes["description"] = description
		}
		if patch.ScheduledStart != nil && !equalTimePtr(next.ScheduledStart, patch.ScheduledStart) {
			start := patch.ScheduledStart.UTC()
			next.ScheduledStart = &start
			changes["scheduled_start"] = start
		}
		if patch.MaxParticipants != nil {
			if err := validateCapacity(*patch.MaxParticipants); err != nil {
				return err
			}
			if *patch.MaxParticipants != next.MaxParticipants {
				joined, err := tx.CountParticipantsByStatus(ctx, sessionID, models.StatusJoined)
				if err != nil {
					return fmt.Errorf("count joined participants: %w", err)
				}
				if int64(*patch.MaxParticipants) < joined {
					return lifecycle.Validationf("max_participants %d is below the %d participants currently joined", *patch.MaxParticipants, joined)
				}
				next.MaxParticipants = *patch.MaxParticipants
				changes["max_participants"] = next.MaxParticipants
			}
		}
		if patch.EnableRecording != nil && *patch.EnableRecording != next.EnableRecording {
			next.EnableRecording = *patch.EnableRecording
			changes["enable_recording"] = next.EnableRecording
		}
		if patch.EnableChat != nil && *patch.EnableChat != next.EnableChat {
			next.EnableChat = *patch.EnableChat
			changes["enable_chat"] = next.EnableChat
		}
		if patch.Topics != nil && !equalTopics(next.Topics, *patch.Topics) {
			next.Topics = models.Topics(*patch.Topics)
			changes["topics"] = *patch.Topics
		}

		if len(changes) > 0 && current.Status.Terminal() {
			return &lifecycle.TransitionError{Entity: "session", ID: sessionID, From: string(current.Status), Action: "update settings"}
		}

		now := m.now()
		var change *lifecycle.SessionChange
		if patch.Status != nil && *patch.Status != current.Status {
			if !patch.Status.Valid() {
				return lifecycle.Validationf("unknown session status %q", *patch.Status)
			}
			sc, err := lifecycle.TransitionSession(next, *patch.Status, now)
			if err != nil {
				return err
			}
			next = sc.Session
			change = &sc
		}

		if len(changes) == 0 && change == nil {
			updated = *current
			return nil
		}

		next.UpdatedAt = now
		if err := tx.SaveSession(ctx, &next); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		updated = next

		if len(changes) > 0 {
			event, err := m.events.Record(ctx, tx, sessionID, &actorID, models.EventSessionUpdated, map[string]any{
				"from":    string(current.Status),
				"to":      string(current.Status),
				"changes": changes,
			}, now)
			if err != nil {
				return err
			}
			recorded = append(recorded, event)
		}
		if change == nil {
			return nil
		}

		event, err := m.events.Record(ctx, tx, sessionID, &actorID, change.EventType, change.Payload(), now)
		if err != nil {
			return err
		}
		recorded = append(recorded, event)

		cascaded, err := m.cascade(ctx, tx, *change, actorID, now)
		recorded = append(recorded, cascaded...)
		return err
	})
	if err != nil {
		log.Printf("WARNING: Session %s: settings update by %s refused: %v", sessionID, actorID, err)
		return nil, err
	}

	if len(recorded) > 0 {
		m.events.Publish(ctx, recorded)
		log.Printf("INFO: Session %s settings updated by %s", sessionID, actorID)
	}
	return &updated, nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// Detail returns the session with its participants and events. Only the
// owner and users holding a participant row may see it.
func (m *Manager) Detail(ctx context.Context, sessionID, viewerID string) (*Detail, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	participants, err := m.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if s.TeacherID != viewerID && !holdsRow(participants, viewerID) {
		return nil, lifecycle.Forbiddenf("user %s is not part of session %s", viewerID, sessionID)
	}

	events, err := m.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return &Detail{Session: *s, Participants: participants, Events: events}, nil
}

// List returns the sessions viewerID owns or participates in, newest first.
func (m *Manager) List(ctx context.Context, viewerID string, filter ListFilter) (*Page, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = config.DefaultPageSize
	}
	if limit < 0 || limit > config.MaxPageSize {
		return nil, lifecycle.Validationf("limit must be between 1 and %d", config.MaxPageSize)
	}
	if filter.Offset < 0 {
		return nil, lifecycle.Validationf("offset must not be negative")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, lifecycle.Validationf("unknown session status %q", filter.Status)
	}

	sessions, total, err := m.store.ListSessions(ctx, storage.SessionQuery{
		UserID: viewerID,
		Status: filter.Status,
		Offset: filter.Offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Sessions: sessions, Total: total, Offset: filter.Offset, Limit: limit}, nil
}

// Purge deletes a session with its participants and events. The room code
// stays reserved so it can never point at another session.
func (m *Manager) Purge(ctx context.Context, sessionID string) error {
	var code string
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		s, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		code = s.RoomCode
		return tx.DeleteSession(ctx, sessionID)
	})
	if err != nil {
		if !errors.Is(err, lifecycle.ErrNotFound) {
			log.Printf("ERROR: Failed to purge session %s: %v", sessionID, err)
		}
		return err
	}

	m.codes.Forget(ctx, code)
	log.Printf("INFO: Session %s purged, room code %s retired", sessionID, code)
	return nil
}

func validateTitle(title string) error {
	if title == "" || len([]rune(title)) > config.MaxTitleLength {
		return lifecycle.Validationf("title must be 1-%d characters", config.MaxTitleLength)
	}
	return nil
}

func validateCapacity(n int) error {
	if n < config.MinParticipants || n > config.MaxParticipants {
		return lifecycle.Validationf("max_participants %d must be between %d and %d", n, config.MinParticipants, config.MaxParticipants)
	}
	return nil
}

func holdsRow(participants []models.Participant, userID string) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalTopics(a models.Topics, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
