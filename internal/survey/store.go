package survey

import (
	"context"
	"time"
)

// ResponseStore is the durable answer store. Upsert is idempotent per
// (participant, question): repeating the same call changes nothing and
// a later call with a different value always wins.
type ResponseStore interface {
	Upsert(ctx context.Context, participantID uint, questionCode string, v Value) error
	GetAll(ctx context.Context, participantID uint) (map[string]Value, error)
}

// ParticipantState is the lifecycle snapshot the session works with.
type ParticipantState struct {
	ID                   uint
	SessionID            string
	Status               string
	CurrentQuestionIndex int
	StartedAt            time.Time
	CompletedAt          *time.Time
}

// Lifecycle persists a participant's status and position pointer.
type Lifecycle interface {
	// GetOrCreate returns the existing participant row unchanged, or
	// creates one as in_progress at index 0.
	GetOrCreate(ctx context.Context, userID, surveyID uint) (ParticipantState, error)
	// Advance moves the position pointer. Calling it twice with the
	// same index is a no-op; calling it after completion fails with
	// ErrAlreadyCompleted and mutates nothing.
	Advance(ctx context.Context, participantID uint, newIndex int) error
	// Complete transitions to completed exactly once. A repeat call is
	// a no-op that returns the original completion time.
	Complete(ctx context.Context, participantID uint, finalIndex int) (time.Time, error)
}

// CatalogLoader fetches the ordered question list for a survey.
type CatalogLoader interface {
	Load(ctx context.Context, surveyID uint) (*Catalog, error)
}
