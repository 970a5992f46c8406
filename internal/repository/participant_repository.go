package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/survey"
)

// ParticipantRepository persists one user's lifecycle in one survey.
// Implements the session engine's Lifecycle interface.
type ParticipantRepository interface {
	GetOrCreate(ctx context.Context, userID, surveyID uint) (survey.ParticipantState, error)
	Advance(ctx context.Context, participantID uint, newIndex int) error
	Complete(ctx context.Context, participantID uint, finalIndex int) (time.Time, error)
	GetBySessionID(sessionID string) (*model.Participant, error)
	GetByID(id uint) (*model.Participant, error)
}

type participantRepository struct{}

func NewParticipantRepository() ParticipantRepository {
	return &participantRepository{}
}

func toState(p *model.Participant) survey.ParticipantState {
	return survey.ParticipantState{
		ID:                   p.ID,
		SessionID:            p.SessionID,
		Status:               p.Status,
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		StartedAt:            p.StartedAt,
		CompletedAt:          p.CompletedAt,
	}
}

// GetOrCreate returns the existing row untouched or creates a fresh
// in_progress one. "not_started" never hits storage; it is just the
// state of having no row yet.
func (r *participantRepository) GetOrCreate(ctx context.Context, userID, surveyID uint) (survey.ParticipantState, error) {
	conn := db.GetDB().WithContext(ctx)

	var p model.Participant
	err := conn.Where("user_id = ? AND survey_id = ?", userID, surveyID).First(&p).Error
	if err == nil {
		return toState(&p), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return survey.ParticipantState{}, err
	}

	p = model.Participant{
		SessionID:            uuid.New().String(),
		UserID:               userID,
		SurveyID:             surveyID,
		Status:               model.StatusInProgress,
		CurrentQuestionIndex: 0,
		StartedAt:            time.Now(),
	}
	if err := conn.Create(&p).Error; err != nil {
		// Lost a create race on the (user, survey) unique index; the
		// winner's row is the participant.
		var existing model.Participant
		if ferr := conn.Where("user_id = ? AND survey_id = ?", userID, surveyID).First(&existing).Error; ferr == nil {
			return toState(&existing), nil
		}
		return survey.ParticipantState{}, err
	}
	return toState(&p), nil
}

// Advance moves the position pointer. Guarded so a completed
// participant is never mutated; rewriting the same index is a no-op
// that succeeds.
func (r *participantRepository) Advance(ctx context.Context, participantID uint, newIndex int) error {
	res := db.GetDB().WithContext(ctx).
		Model(&model.Participant{}).
		Where("id = ? AND status <> ?", participantID, model.StatusCompleted).
		Update("current_question_index", newIndex)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var p model.Participant
		if err := db.GetDB().WithContext(ctx).First(&p, participantID).Error; err != nil {
			return fmt.Errorf("participant %d not found: %w", participantID, err)
		}
		if p.Status == model.StatusCompleted {
			return survey.ErrAlreadyCompleted
		}
	}
	return nil
}

// Complete is the one atomic check-and-set in the subsystem: the
// guarded UPDATE ensures a doubled finish click can never stamp two
// different completion times.
func (r *participantRepository) Complete(ctx context.Context, participantID uint, finalIndex int) (time.Time, error) {
	now := time.Now()
	res := db.GetDB().WithContext(ctx).
		Model(&model.Participant{}).
		Where("id = ? AND status <> ?", participantID, model.StatusCompleted).
		Updates(map[string]interface{}{
			"status":                 model.StatusCompleted,
			"completed_at":           now,
			"current_question_index": finalIndex,
		})
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected > 0 {
		return now, nil
	}

	// Someone else completed first; report their timestamp, do not
	// re-stamp.
	var p model.Participant
	if err := db.GetDB().WithContext(ctx).First(&p, participantID).Error; err != nil {
		return time.Time{}, fmt.Errorf("participant %d not found: %w", participantID, err)
	}
	if p.Status == model.StatusCompleted && p.CompletedAt != nil {
		return *p.CompletedAt, nil
	}
	return time.Time{}, fmt.Errorf("participant %d could not be completed", participantID)
}

func (r *participantRepository) GetBySessionID(sessionID string) (*model.Participant, error) {
	var p model.Participant
	err := db.GetDB().Where("session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, errors.New("participant not found")
	}
	return &p, nil
}

func (r *participantRepository) GetByID(id uint) (*model.Participant, error) {
	var p model.Participant
	if err := db.GetDB().First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
