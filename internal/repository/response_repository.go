package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/survey"
)

// ResponseRepository is the durable answer store. The composite unique
// index on (participant_id, question_code) plus ON CONFLICT upsert
// makes writes idempotent: repeating a write is harmless and the last
// submitted value always wins.
type ResponseRepository interface {
	Upsert(ctx context.Context, participantID uint, questionCode string, v survey.Value) error
	GetAll(ctx context.Context, participantID uint) (map[string]survey.Value, error)
	GetRows(participantID uint) ([]model.Response, error)
}

type responseRepository struct{}

func NewResponseRepository() ResponseRepository {
	return &responseRepository{}
}

func (r *responseRepository) Upsert(ctx context.Context, participantID uint, questionCode string, v survey.Value) error {
	kind, payload, err := v.Encode()
	if err != nil {
		return err
	}
	row := model.Response{
		ParticipantID: participantID,
		QuestionCode:  questionCode,
		ValueType:     kind,
		ValueJSON:     payload,
		UpdatedAt:     time.Now(),
	}
	return db.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}, {Name: "question_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"value_type", "value_json", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *responseRepository) GetAll(ctx context.Context, participantID uint) (map[string]survey.Value, error) {
	var rows []model.Response
	err := db.GetDB().WithContext(ctx).
		Where("participant_id = ?", participantID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]survey.Value, len(rows))
	for _, row := range rows {
		// Undecodable rows come back as the zero Value; the session
		// treats them as unanswered instead of failing the resume.
		out[row.QuestionCode] = survey.DecodeValue(row.ValueType, row.ValueJSON)
	}
	return out, nil
}

func (r *responseRepository) GetRows(participantID uint) ([]model.Response, error) {
	var rows []model.Response
	err := db.GetDB().
		Where("participant_id = ?", participantID).
		Find(&rows).Error
	return rows, err
}
