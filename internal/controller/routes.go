package controller

import (
	"github.com/gin-gonic/gin"

	"diagnostica-backend/internal/repository"
	"diagnostica-backend/internal/service"
)

func RegisterRoutes(
	r *gin.Engine,
	authService service.AuthService,
	userService service.UserService,
	sessionService service.SessionService,
	reportService service.ReportService,
	surveyRepo repository.SurveyRepository,
	loginLimiter gin.HandlerFunc,
) {
	// Auth routes.
	authCtrl := NewAuthController(authService)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authCtrl.Register)
		authRoutes.POST("/login", loginLimiter, authCtrl.Login)
		authRoutes.POST("/refresh", authCtrl.Refresh)
	}

	// User routes.
	userCtrl := NewUserController(userService)
	userRoutes := r.Group("/user")
	{
		userRoutes.GET("", userCtrl.GetAllUsers)
		userRoutes.GET("/me", userCtrl.GetProfile)
	}

	// Survey catalog routes.
	surveyCtrl := NewSurveyController(surveyRepo)
	surveyRoutes := r.Group("/surveys")
	{
		surveyRoutes.GET("", surveyCtrl.GetSurveys)
		surveyRoutes.GET("/:slug", surveyCtrl.GetSurvey)
	}

	// Session routes.
	sessionCtrl := NewSessionController(sessionService)
	sessionRoutes := r.Group("/sessions")
	{
		sessionRoutes.POST("/start", sessionCtrl.StartSession)
		sessionRoutes.GET("/:session_id", sessionCtrl.GetSession)
		sessionRoutes.POST("/:session_id/answer", sessionCtrl.SubmitAnswer)
		sessionRoutes.POST("/:session_id/next", sessionCtrl.GoNext)
		sessionRoutes.POST("/:session_id/previous", sessionCtrl.GoPrevious)
		sessionRoutes.POST("/:session_id/finish", sessionCtrl.FinishSurvey)
		sessionRoutes.POST("/:session_id/retry", sessionCtrl.RetryLoad)
	}

	// Report routes.
	reportCtrl := NewReportController(reportService)
	reportRoutes := r.Group("/reports")
	{
		reportRoutes.GET("/:session_id", reportCtrl.GetReport)
		reportRoutes.GET("/:session_id/download", reportCtrl.DownloadReport)
	}
}
