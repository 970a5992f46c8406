package survey

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationBlocked gates forward navigation: the current
	// required question has no valid answer. Not a persistence error.
	ErrValidationBlocked = errors.New("current question requires a valid answer")
	// ErrNotReady is returned when an operation needs a Ready session.
	ErrNotReady = errors.New("session is not ready")
	// ErrAlreadyCompleted guards lifecycle writes after completion.
	ErrAlreadyCompleted = errors.New("participant already completed")
	// ErrNoNextQuestion is returned by GoNext on the last question.
	ErrNoNextQuestion = errors.New("already on the last question")
	// ErrNoPreviousQuestion is returned by GoPrevious on the first question.
	ErrNoPreviousQuestion = errors.New("already on the first question")
)

// LoadError wraps an initialization failure after retries ran out.
// It is surfaced with a manual retry action.
type LoadError struct {
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("session load failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError wraps a flush failure during navigation. Navigation does
// not proceed; the caller may retry the same action.
type SaveError struct {
	QuestionCode string
	Err          error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("saving answer for %s failed: %v", e.QuestionCode, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// CompletionError wraps a failed finish. The participant stays
// in_progress and FinishSurvey may be retried safely.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("survey completion failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
