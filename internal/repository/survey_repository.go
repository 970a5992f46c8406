package repository

import (
	"context"
	"errors"

	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/survey"
)

type SurveyRepository interface {
	GetSurveys() ([]model.Survey, error)
	GetSurveyBySlug(slug string) (*model.Survey, error)
	ListQuestions(surveyID uint) ([]model.Question, error)
}

type surveyRepository struct{}

func NewSurveyRepository() SurveyRepository {
	return &surveyRepository{}
}

func (r *surveyRepository) GetSurveys() ([]model.Survey, error) {
	var surveys []model.Survey
	err := db.GetDB().Find(&surveys).Error
	return surveys, err
}

func (r *surveyRepository) GetSurveyBySlug(slug string) (*model.Survey, error) {
	var s model.Survey
	err := db.GetDB().Where("slug = ?", slug).First(&s).Error
	if err != nil {
		return nil, errors.New("survey not found")
	}
	return &s, nil
}

func (r *surveyRepository) ListQuestions(surveyID uint) ([]model.Question, error) {
	var questions []model.Question
	err := db.GetDB().
		Where("survey_id = ?", surveyID).
		Order("order_index asc").
		Find(&questions).Error
	return questions, err
}

// CatalogLoader adapts the repository to the session engine's loader
// interface.
type CatalogLoader struct {
	repo SurveyRepository
}

func NewCatalogLoader(repo SurveyRepository) *CatalogLoader {
	return &CatalogLoader{repo: repo}
}

func (l *CatalogLoader) Load(_ context.Context, surveyID uint) (*survey.Catalog, error) {
	rows, err := l.repo.ListQuestions(surveyID)
	if err != nil {
		return nil, err
	}
	return survey.CatalogFromModels(rows)
}
