package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	"diagnostica-backend/internal/config"
	"diagnostica-backend/internal/controller"
	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/repository"
	"diagnostica-backend/internal/service"
	"diagnostica-backend/internal/survey"
	"diagnostica-backend/pkg/middleware"
	"diagnostica-backend/utilities"
)

func main() {
	printStartUpBanner()

	// .env carries secrets (DB password, JWT keys); missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.xml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logDir := cfg.Context.LogDir
	if logDir == "" {
		logDir = "logs"
	}
	utilities.SetupLogging(logDir, cfg.RequestDump)

	// Initialize DB using the loaded config and run migrations.
	db.InitDBFromConfig(cfg)
	if err := db.GetDB().AutoMigrate(
		&model.User{}, &model.Survey{}, &model.Question{},
		&model.Participant{}, &model.Response{},
	); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if cfg.DB.Initialize {
		if err := seedDatabase(); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
	}

	// Create repositories.
	userRepo := repository.NewUserRepository()
	surveyRepo := repository.NewSurveyRepository()
	participantRepo := repository.NewParticipantRepository()
	responseRepo := repository.NewResponseRepository()
	executor := db.NewQueryExecutor(db.GetDB())

	// Create services.
	authService := service.NewAuthService(userRepo)
	userService := service.NewUserService(userRepo)
	debounce := time.Duration(cfg.Session.AutosaveDebounceMS) * time.Millisecond
	sessionService := service.NewSessionService(
		surveyRepo, participantRepo, responseRepo, debounce, utilities.GlobalEventBus,
	)
	reportService := service.NewReportService(
		surveyRepo, participantRepo, responseRepo, userRepo, executor,
	)

	utilities.GlobalEventBus.Subscribe(utilities.EventSessionCompleted, func(data interface{}) {
		if snap, ok := data.(survey.Snapshot); ok {
			utilities.Info("session %s completed at %v", snap.SessionID, snap.CompletedAt)
		}
	})

	// Initialize Gin router.
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if cfg.RequestDump {
		r.Use(middleware.RequestDumpMiddleware())
	}
	r.Use(utilities.AuthMiddleware())

	loginLimiter := middleware.RateLimitMiddleware(
		cfg.Authentication.LoginRatePerMinute, cfg.Authentication.LoginBurst,
	)
	controller.RegisterRoutes(
		r, authService, userService, sessionService, reportService, surveyRepo, loginLimiter,
	)

	// Periodically flush and evict idle sessions.
	idle := time.Duration(cfg.Session.IdleEvictionMin) * time.Minute
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(idle / 2)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			sessionService.EvictIdle(ctx, idle)
			cancel()
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Context.Host, cfg.Context.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", addr, err)
	}
	if cfg.Context.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.Context.MaxConnections)
	}

	srv := &http.Server{Handler: r}
	go func() {
		utilities.Info("DIAGNOSTICA API listening on %s", addr)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Flush live sessions before going down; pending autosaves must
	// not be lost to a deploy.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utilities.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sessionService.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		utilities.Error("forced shutdown: %v", err)
	}
}

func printStartUpBanner() {
	myFigure := figure.NewFigure("DIAGNOSTICA", "", true)
	myFigure.Print()

	fmt.Println("======================================================")
	fmt.Printf("DIAGNOSTICA API (v%s)\n\n", "1.0.0")
}
