package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"diagnostica-backend/internal/repository"
	"diagnostica-backend/internal/survey"
)

type SurveyController struct {
	SurveyRepo repository.SurveyRepository
}

func NewSurveyController(surveyRepo repository.SurveyRepository) *SurveyController {
	return &SurveyController{SurveyRepo: surveyRepo}
}

// GetSurveys handles GET /surveys
func (sc *SurveyController) GetSurveys(c *gin.Context) {
	surveys, err := sc.SurveyRepo.GetSurveys()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, surveys)
}

// GetSurvey handles GET /surveys/:slug, returning the survey with its
// decoded, ordered question list.
func (sc *SurveyController) GetSurvey(c *gin.Context) {
	sv, err := sc.SurveyRepo.GetSurveyBySlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Survey not found"})
		return
	}
	rows, err := sc.SurveyRepo.ListQuestions(sv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	catalog, err := survey.CatalogFromModels(rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"survey":    sv,
		"questions": catalog.Questions(),
	})
}
