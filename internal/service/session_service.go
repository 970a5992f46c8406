package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"diagnostica-backend/internal/repository"
	"diagnostica-backend/internal/survey"
	"diagnostica-backend/utilities"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionOwnership = errors.New("session belongs to another user")
)

// SessionService is the registry of live survey sessions. One
// controller per participant; a second tab or device does not get its
// own session, it shares (and last-writer-wins on) this one.
type SessionService interface {
	StartSession(ctx context.Context, userID uint, surveySlug string) (survey.Snapshot, error)
	Snapshot(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error)
	UpdateResponse(ctx context.Context, userID uint, sessionID string, v survey.Value) (survey.Snapshot, error)
	GoNext(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error)
	GoPrevious(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error)
	Finish(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error)
	RetryLoad(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error)
	EvictIdle(ctx context.Context, maxIdle time.Duration)
	Shutdown(ctx context.Context)
}

type sessionEntry struct {
	ctrl     *survey.Controller
	userID   uint
	lastUsed time.Time
}

type sessionService struct {
	mu              sync.Mutex
	sessions        map[string]*sessionEntry
	surveyRepo      repository.SurveyRepository
	participantRepo repository.ParticipantRepository
	responseRepo    repository.ResponseRepository
	loader          survey.CatalogLoader
	debounce        time.Duration
	bus             *utilities.EventBus
}

func NewSessionService(
	surveyRepo repository.SurveyRepository,
	participantRepo repository.ParticipantRepository,
	responseRepo repository.ResponseRepository,
	debounce time.Duration,
	bus *utilities.EventBus,
) SessionService {
	return &sessionService{
		sessions:        make(map[string]*sessionEntry),
		surveyRepo:      surveyRepo,
		participantRepo: participantRepo,
		responseRepo:    responseRepo,
		loader:          repository.NewCatalogLoader(surveyRepo),
		debounce:        debounce,
		bus:             bus,
	}
}

func (s *sessionService) newController() *survey.Controller {
	ctrl := survey.NewController(s.loader, s.responseRepo, s.participantRepo)
	if s.debounce > 0 {
		ctrl.SetDebounce(s.debounce)
	}
	return ctrl
}

// register stores a freshly initialized controller, preferring an
// already registered one when two requests raced.
func (s *sessionService) register(sessionID string, userID uint, ctrl *survey.Controller) *survey.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		existing.lastUsed = time.Now()
		go ctrl.Teardown(context.Background())
		return existing.ctrl
	}
	s.sessions[sessionID] = &sessionEntry{ctrl: ctrl, userID: userID, lastUsed: time.Now()}
	return ctrl
}

func (s *sessionService) StartSession(ctx context.Context, userID uint, surveySlug string) (survey.Snapshot, error) {
	sv, err := s.surveyRepo.GetSurveyBySlug(surveySlug)
	if err != nil {
		return survey.Snapshot{}, err
	}

	ctrl := s.newController()
	initErr := ctrl.Initialize(ctx, userID, sv.ID)
	sessionID := ctrl.Participant().SessionID
	if sessionID == "" {
		// Load never got as far as a participant row; nothing to
		// register or retry against.
		return survey.Snapshot{}, initErr
	}
	ctrl = s.register(sessionID, userID, ctrl)
	if s.bus != nil && initErr == nil {
		s.bus.Publish(utilities.EventSessionStarted, ctrl.Snapshot())
	}
	return ctrl.Snapshot(), initErr
}

// lookup finds the live controller for a session, rebuilding it from
// storage after a server restart. The resume scan re-derives the
// position either way.
func (s *sessionService) lookup(ctx context.Context, userID uint, sessionID string) (*survey.Controller, error) {
	s.mu.Lock()
	if e, ok := s.sessions[sessionID]; ok {
		if e.userID != userID {
			s.mu.Unlock()
			return nil, ErrSessionOwnership
		}
		e.lastUsed = time.Now()
		ctrl := e.ctrl
		s.mu.Unlock()
		return ctrl, nil
	}
	s.mu.Unlock()

	p, err := s.participantRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if p.UserID != userID {
		return nil, ErrSessionOwnership
	}
	ctrl := s.newController()
	if err := ctrl.Initialize(ctx, p.UserID, p.SurveyID); err != nil {
		return nil, err
	}
	return s.register(sessionID, userID, ctrl), nil
}

func (s *sessionService) Snapshot(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

func (s *sessionService) UpdateResponse(ctx context.Context, userID uint, sessionID string, v survey.Value) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	if err := ctrl.UpdateResponse(v); err != nil {
		return ctrl.Snapshot(), err
	}
	return ctrl.Snapshot(), nil
}

func (s *sessionService) GoNext(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	if err := ctrl.GoNext(ctx); err != nil {
		return ctrl.Snapshot(), err
	}
	return ctrl.Snapshot(), nil
}

func (s *sessionService) GoPrevious(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	if err := ctrl.GoPrevious(ctx); err != nil {
		return ctrl.Snapshot(), err
	}
	return ctrl.Snapshot(), nil
}

func (s *sessionService) Finish(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	completedNow, err := ctrl.FinishSurvey(ctx)
	if err != nil {
		return ctrl.Snapshot(), err
	}
	if s.bus != nil && completedNow {
		s.bus.Publish(utilities.EventSessionCompleted, ctrl.Snapshot())
	}
	return ctrl.Snapshot(), nil
}

func (s *sessionService) RetryLoad(ctx context.Context, userID uint, sessionID string) (survey.Snapshot, error) {
	ctrl, err := s.lookup(ctx, userID, sessionID)
	if err != nil {
		return survey.Snapshot{}, err
	}
	if err := ctrl.RetryLoad(ctx); err != nil {
		return ctrl.Snapshot(), err
	}
	return ctrl.Snapshot(), nil
}

// EvictIdle flushes and drops sessions idle longer than maxIdle, run
// periodically from main.
func (s *sessionService) EvictIdle(ctx context.Context, maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	var stale []*sessionEntry
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range stale {
		if err := e.ctrl.Teardown(ctx); err != nil {
			utilities.Warn("flush on session eviction failed: %v", err)
		}
	}
}

// Shutdown flushes every live session, used on server stop.
func (s *sessionService) Shutdown(ctx context.Context) {
	s.EvictIdle(ctx, 0)
}
