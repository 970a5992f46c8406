package survey

import (
	"context"
	"errors"
	"sync"
	"time"

	"diagnostica-backend/internal/model"
	"diagnostica-backend/utilities"
)

// State is the session controller's lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

const (
	loadAttempts = 3
	loadBackoff  = 500 * time.Millisecond
)

// ErrNotAtEnd is returned by FinishSurvey before the final question.
var ErrNotAtEnd = errors.New("not on the final question")

// Controller drives one participant's pass through one survey. It owns
// the in-memory mirror of the session: the position pointer and the
// local edit buffer. The durable copies live behind the injected
// ResponseStore and Lifecycle.
type Controller struct {
	mu sync.Mutex

	loader    CatalogLoader
	store     ResponseStore
	lifecycle Lifecycle
	debounce  time.Duration
	sleep     func(time.Duration)

	state       State
	userID      uint
	surveyID    uint
	catalog     *Catalog
	participant ParticipantState
	index       int
	local       map[string]Value
	sched       *Scheduler
	loadErr     error
}

func NewController(loader CatalogLoader, store ResponseStore, lifecycle Lifecycle) *Controller {
	return &Controller{
		loader:    loader,
		store:     store,
		lifecycle: lifecycle,
		debounce:  DefaultDebounce,
		sleep:     time.Sleep,
		state:     StateLoading,
		local:     make(map[string]Value),
	}
}

// SetDebounce overrides the autosave debounce window. Must be called
// before Initialize.
func (c *Controller) SetDebounce(d time.Duration) { c.debounce = d }

// Initialize loads the catalog, the participant row (creating it on
// first contact) and all existing responses, then derives the resume
// position. Transient fetch failures retry with backoff before the
// session settles into the error state; an empty catalog fails fast.
func (c *Controller) Initialize(ctx context.Context, userID, surveyID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.surveyID = surveyID
	return c.loadLocked(ctx)
}

// RetryLoad re-runs initialization after a load failure.
func (c *Controller) RetryLoad(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateError {
		return nil
	}
	return c.loadLocked(ctx)
}

func (c *Controller) loadLocked(ctx context.Context) error {
	c.state = StateLoading
	c.loadErr = nil

	var lastErr error
	for attempt := 1; attempt <= loadAttempts; attempt++ {
		err := c.loadOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCatalogEmpty) || errors.Is(err, ErrCatalogOrder) {
			// Fatal catalog problems are not transient; surface now.
			c.state = StateError
			c.loadErr = err
			return err
		}
		lastErr = err
		utilities.Warn("session load attempt %d/%d failed: %v", attempt, loadAttempts, err)
		if attempt < loadAttempts {
			c.sleep(loadBackoff * time.Duration(attempt))
		}
	}
	c.state = StateError
	c.loadErr = &LoadError{Attempts: loadAttempts, Err: lastErr}
	return c.loadErr
}

func (c *Controller) loadOnce(ctx context.Context) error {
	catalog, err := c.loader.Load(ctx, c.surveyID)
	if err != nil {
		return err
	}
	participant, err := c.lifecycle.GetOrCreate(ctx, c.userID, c.surveyID)
	if err != nil {
		return err
	}
	stored, err := c.store.GetAll(ctx, participant.ID)
	if err != nil {
		return err
	}

	if c.sched != nil {
		c.sched.Dispose()
	}
	c.catalog = catalog
	c.participant = participant
	c.local = make(map[string]Value, len(stored))
	c.sched = NewScheduler(c.debounce, func(ctx context.Context, code string, v Value) error {
		return c.store.Upsert(ctx, participant.ID, code, v)
	})

	// Re-derive the resume position from the response set instead of
	// trusting the stored pointer; the two can diverge when an answer
	// write lands after a failed position update. A stored value whose
	// tag no longer fits the current question definition counts as
	// absent and forces a re-answer.
	resume := catalog.Len() - 1
	found := false
	for i, q := range catalog.Questions() {
		v, ok := stored[q.Code]
		if ok && !v.IsZero() && Accepts(q, v) {
			c.local[q.Code] = v
			c.sched.MarkSaved(q.Code, v)
			continue
		}
		if !found {
			resume = i
			found = true
		}
	}
	c.index = resume

	if participant.Status == model.StatusCompleted {
		c.index = catalog.Len() - 1
		c.state = StateCompleted
	} else {
		c.state = StateReady
	}
	return nil
}

// StateName returns the current controller state.
func (c *Controller) StateName() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LoadErr returns the surfaced initialization error, if any.
func (c *Controller) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Participant returns the lifecycle snapshot for this session.
func (c *Controller) Participant() ParticipantState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participant
}

// CurrentQuestion returns the displayed question.
func (c *Controller) CurrentQuestion() (Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil || c.index < 0 || c.index >= c.catalog.Len() {
		return Question{}, false
	}
	return c.catalog.At(c.index), true
}

// CurrentValue returns the local buffer's value for the displayed
// question; the zero Value when unanswered.
func (c *Controller) CurrentValue() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil {
		return Value{}
	}
	return c.local[c.catalog.At(c.index).Code]
}

// CanAdvance reports whether the displayed question's answer passes
// required-field validation.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAdvanceLocked()
}

func (c *Controller) canAdvanceLocked() bool {
	if c.state != StateReady || c.catalog == nil {
		return false
	}
	q := c.catalog.At(c.index)
	return IsAnswerValid(q, c.local[q.Code])
}

// ProgressPercentage reports position through the questionnaire.
func (c *Controller) ProgressPercentage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil || c.catalog.Len() == 0 {
		return 0
	}
	if c.state == StateCompleted {
		return 100
	}
	return float64(c.index) / float64(c.catalog.Len()) * 100
}

// UpdateResponse records an edit for the displayed question. The local
// buffer updates immediately; persistence is debounced.
func (c *Controller) UpdateResponse(v Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	code := c.catalog.At(c.index).Code
	c.local[code] = v
	c.sched.OnEdit(code, v)
	return nil
}

// GoNext flushes the displayed question's pending edit, persists the
// new position, and only then moves forward. A failed flush or
// position write leaves the displayed question unchanged so the
// session never advances past an unconfirmed write.
func (c *Controller) GoNext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	if c.index >= c.catalog.Len()-1 {
		return ErrNoNextQuestion
	}
	if !c.canAdvanceLocked() {
		return ErrValidationBlocked
	}
	code := c.catalog.At(c.index).Code
	if err := c.sched.Flush(ctx, code); err != nil {
		return &SaveError{QuestionCode: code, Err: err}
	}
	if err := c.lifecycle.Advance(ctx, c.participant.ID, c.index+1); err != nil {
		return &SaveError{QuestionCode: code, Err: err}
	}
	c.index++
	c.participant.CurrentQuestionIndex = c.index
	return nil
}

// GoPrevious moves backward. No validity check and no flush: the
// pending debounce keeps running and nothing forward is lost.
func (c *Controller) GoPrevious(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	if c.index <= 0 {
		return ErrNoPreviousQuestion
	}
	if err := c.lifecycle.Advance(ctx, c.participant.ID, c.index-1); err != nil {
		utilities.Warn("position update on back navigation failed: %v", err)
	}
	c.index--
	c.participant.CurrentQuestionIndex = c.index
	return nil
}

// FinishSurvey flushes the final answer and transitions the
// participant to completed, exactly once. The bool reports whether
// this call performed the transition; a repeat call on a completed
// session is a successful no-op. On failure the session stays Ready on
// the final question and the call may be retried.
func (c *Controller) FinishSurvey(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCompleted {
		return false, nil
	}
	if c.state != StateReady {
		return false, ErrNotReady
	}
	if c.index != c.catalog.Len()-1 {
		return false, ErrNotAtEnd
	}
	if !c.canAdvanceLocked() {
		return false, ErrValidationBlocked
	}
	c.state = StateCompleting
	code := c.catalog.At(c.index).Code
	if err := c.sched.Flush(ctx, code); err != nil {
		c.state = StateReady
		return false, &CompletionError{Err: err}
	}
	completedAt, err := c.lifecycle.Complete(ctx, c.participant.ID, c.catalog.Len())
	if err != nil {
		c.state = StateReady
		return false, &CompletionError{Err: err}
	}
	c.participant.Status = model.StatusCompleted
	c.participant.CompletedAt = &completedAt
	c.participant.CurrentQuestionIndex = c.catalog.Len()
	c.state = StateCompleted
	return true, nil
}

// Teardown flushes every pending edit and releases the timers. Used
// when a session is evicted from the registry.
func (c *Controller) Teardown(ctx context.Context) error {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched == nil {
		return nil
	}
	err := sched.FlushAll(ctx)
	sched.Dispose()
	return err
}

// Snapshot is the render-ready view of the session handed to the HTTP
// layer.
type Snapshot struct {
	State         State      `json:"state"`
	SessionID     string     `json:"session_id"`
	Status        string     `json:"status"`
	QuestionCount int        `json:"question_count"`
	CurrentIndex  int        `json:"current_question_index"`
	Question      *Question  `json:"question,omitempty"`
	Value         Value      `json:"value"`
	CanAdvance    bool       `json:"can_advance"`
	Progress      float64    `json:"progress_percentage"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:       c.state,
		SessionID:   c.participant.SessionID,
		Status:      c.participant.Status,
		StartedAt:   c.participant.StartedAt,
		CompletedAt: c.participant.CompletedAt,
	}
	if c.loadErr != nil {
		snap.Error = c.loadErr.Error()
	}
	if c.catalog == nil {
		return snap
	}
	snap.QuestionCount = c.catalog.Len()
	snap.CurrentIndex = c.index
	q := c.catalog.At(c.index)
	snap.Question = &q
	snap.Value = c.local[q.Code]
	snap.CanAdvance = c.canAdvanceLocked()
	if c.state == StateCompleted {
		snap.Progress = 100
		snap.CurrentIndex = c.catalog.Len()
	} else {
		snap.Progress = float64(c.index) / float64(c.catalog.Len()) * 100
	}
	return snap
}
