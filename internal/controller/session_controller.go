package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"diagnostica-backend/internal/service"
	"diagnostica-backend/internal/survey"
)

type SessionController struct {
	SessionService service.SessionService
}

func NewSessionController(sessionService service.SessionService) *SessionController {
	return &SessionController{SessionService: sessionService}
}

// currentUserID pulls the authenticated user out of the gin context.
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	uid, ok := v.(uint)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return uid, true
}

// respondSessionError maps the session taxonomy onto status codes.
// Validation gating is not a server fault; save and completion
// failures are surfaced as retryable.
func respondSessionError(c *gin.Context, snap survey.Snapshot, err error) {
	var saveErr *survey.SaveError
	var compErr *survey.CompletionError
	var loadErr *survey.LoadError

	switch {
	case errors.Is(err, survey.ErrValidationBlocked):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "current question requires a valid answer",
			"validation": true,
			"session":    snap,
		})
	case errors.Is(err, survey.ErrNoNextQuestion),
		errors.Is(err, survey.ErrNoPreviousQuestion),
		errors.Is(err, survey.ErrNotAtEnd),
		errors.Is(err, survey.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "session": snap})
	case errors.Is(err, survey.ErrCatalogEmpty):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.As(err, &compErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true, "session": snap})
	case errors.As(err, &saveErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true, "session": snap})
	case errors.As(err, &loadErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true, "session": snap})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionOwnership):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// StartSession handles POST /sessions/start
func (sc *SessionController) StartSession(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		SurveySlug string `json:"survey_slug" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: survey_slug is required"})
		return
	}
	snap, err := sc.SessionService.StartSession(c.Request.Context(), uid, req.SurveySlug)
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSession handles GET /sessions/:session_id
func (sc *SessionController) GetSession(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := sc.SessionService.Snapshot(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SubmitAnswer handles POST /sessions/:session_id/answer. The edit is
// applied optimistically and persisted on the debounce, so this
// returns quickly even when the database is slow.
func (sc *SessionController) SubmitAnswer(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Value survey.Value `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answer payload"})
		return
	}
	snap, err := sc.SessionService.UpdateResponse(c.Request.Context(), uid, c.Param("session_id"), req.Value)
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GoNext handles POST /sessions/:session_id/next
func (sc *SessionController) GoNext(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := sc.SessionService.GoNext(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GoPrevious handles POST /sessions/:session_id/previous
func (sc *SessionController) GoPrevious(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := sc.SessionService.GoPrevious(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// FinishSurvey handles POST /sessions/:session_id/finish. Finishing an
// already completed session responds 200 without a second write.
func (sc *SessionController) FinishSurvey(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := sc.SessionService.Finish(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// RetryLoad handles POST /sessions/:session_id/retry
func (sc *SessionController) RetryLoad(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := sc.SessionService.RetryLoad(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		respondSessionError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
