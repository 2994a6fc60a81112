package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateUser stores a user.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Create(user).Error
}

func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		log.Printf("ERROR: Failed to look up user %s: %v", userID, err)
		return false, err
	}
	return count > 0, nil
}

// MissingUsers returns the ids from userIDs that have no user row.
func (s *Service) MissingUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var found []string
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id IN ?", userIDs).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	var missing []string
	for _, id := range userIDs {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ReserveRoomCode inserts the code if no row holds it yet. It reports false,
// without aborting the surrounding transaction, when the code is taken.
func (s *Service) ReserveRoomCode(ctx context.Context, code, sessionID string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoomCode{Code: code, SessionID: sessionID, IssuedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) FindRoomCode(ctx context.Context, code string) (*models.RoomCode, error) {
	var rc models.RoomCode
	err := s.DB.WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.NotFoundf("room code %s", code)
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (s *Service) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return s.DB.WithContext(ctx).Create(p).Error
}

func (s *Service) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return s.DB.WithContext(ctx).Save(p).Error
}

// GetParticipant returns the membership row of userID in sessionID.
func (s *Service) GetParticipant(ctx context.Context, sessionID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.WithContext(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.NotFoundf("participant %s in session %s", userID, sessionID)
	}
	if err != nil {
		log.Printf("ERROR: Failed to get participant %s in session %s: %v", userID, sessionID, err)
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at asc").Order("id").Find(&participants).Error
	return participants, err
}

func (s *Service) ListParticipantsByStatus(ctx context.Context, sessionID string, status models.ConnectionStatus) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.DB.WithContext(ctx).
		Where("session_id = ? AND connection_status = ?", sessionID, status).
		Order("created_at asc").Order("id").
		Find(&participants).Error
	return participants, err
}

func (s *Service) CountParticipantsByStatus(ctx context.Context, sessionID string, status models.ConnectionStatus) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("session_id = ? AND connection_status = ?", sessionID, status).
		Count(&count).Error
	return count, err
}

// AppendEvent inserts an audit event. There is deliberately no update or
// delete counterpart.
func (s *Service) AppendEvent(ctx context.Context, event *models.Event) error {
	if err := s.DB.WithContext(ctx).Create(event).Error; err != nil {
		log.Printf("ERROR: Failed to save %s event for session %s: %v", event.EventType, event.SessionID, err)
		return err
	}
	return nil
}

// ListEvents returns the session's event log ordered by time.
func (s *Service) ListEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	var events []models.Event
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&events).Error
	if err != nil {
		log.Printf("ERROR: Failed to get events for session %s: %v", sessionID, err)
		return nil, err
	}
	return events, nil
}
