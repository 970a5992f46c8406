package survey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnostica-backend/internal/model"
)

type fakeLoader struct {
	mu       sync.Mutex
	qs       []Question
	err      error
	failures int
	calls    int
}

func (l *fakeLoader) Load(_ context.Context, _ uint) (*Catalog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failures > 0 {
		l.failures--
		return nil, l.err
	}
	return NewCatalog(l.qs)
}

type fakeStore struct {
	mu        sync.Mutex
	data      map[string]Value
	upserts   int
	upsertErr error
	getAllErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]Value)}
}

func (s *fakeStore) Upsert(_ context.Context, _ uint, code string, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.data[code] = v
	s.upserts++
	return nil
}

func (s *fakeStore) GetAll(_ context.Context, _ uint) (map[string]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	out := make(map[string]Value, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) setUpsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertErr = err
}

type fakeLifecycle struct {
	mu            sync.Mutex
	p             ParticipantState
	created       bool
	advanceErr    error
	completeErr   error
	completeCalls int
}

func (f *fakeLifecycle) GetOrCreate(_ context.Context, userID, _ uint) (ParticipantState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created {
		f.p = ParticipantState{
			ID:        1,
			SessionID: "sess-1",
			Status:    model.StatusInProgress,
			StartedAt: time.Now(),
		}
		f.created = true
	}
	return f.p, nil
}

func (f *fakeLifecycle) Advance(_ context.Context, _ uint, newIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advanceErr != nil {
		return f.advanceErr
	}
	if f.p.Status == model.StatusCompleted {
		return ErrAlreadyCompleted
	}
	f.p.CurrentQuestionIndex = newIndex
	return nil
}

func (f *fakeLifecycle) Complete(_ context.Context, _ uint, finalIndex int) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return time.Time{}, f.completeErr
	}
	if f.p.Status == model.StatusCompleted {
		return *f.p.CompletedAt, nil
	}
	now := time.Now()
	f.p.Status = model.StatusCompleted
	f.p.CompletedAt = &now
	f.p.CurrentQuestionIndex = finalIndex
	return now, nil
}

func (f *fakeLifecycle) snapshot() ParticipantState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p
}

func diagnosticQuestions() []Question {
	return []Question{
		{Code: "Q1", OrderIndex: 1, Type: model.QuestionText, Required: true},
		{Code: "Q2", OrderIndex: 2, Type: model.QuestionSingleChoice, Required: true, Options: []string{"Yes", "No"}},
		{Code: "Q3", OrderIndex: 3, Type: model.QuestionNumeric, Required: false},
		{Code: "Q4", OrderIndex: 4, Type: model.QuestionSingleChoice, Required: true, Options: []string{"Yes", "No", "Unsure"}},
	}
}

func newTestController(loader *fakeLoader, store *fakeStore, lc *fakeLifecycle) *Controller {
	c := NewController(loader, store, lc)
	c.SetDebounce(time.Hour) // persists only on flush
	c.sleep = func(time.Duration) {}
	return c
}

func TestFullSessionWalkthrough(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{qs: diagnosticQuestions()}
	store := newFakeStore()
	lc := &fakeLifecycle{}
	c := newTestController(loader, store, lc)

	require.NoError(t, c.Initialize(ctx, 10, 1))
	assert.Equal(t, StateReady, c.StateName())
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, model.StatusInProgress, snap.Status)

	// Q1: required text.
	assert.False(t, c.CanAdvance())
	require.NoError(t, c.UpdateResponse(TextValue("5")))
	assert.True(t, c.CanAdvance())
	require.NoError(t, c.GoNext(ctx))
	assert.Equal(t, 1, c.Snapshot().CurrentIndex)

	// Q2: blocked without a selection.
	err := c.GoNext(ctx)
	assert.ErrorIs(t, err, ErrValidationBlocked)
	assert.Equal(t, 1, c.Snapshot().CurrentIndex)

	require.NoError(t, c.UpdateResponse(TextValue("Yes")))
	require.NoError(t, c.GoNext(ctx))
	assert.Equal(t, 2, c.Snapshot().CurrentIndex)

	// Q3 is optional, may be skipped blank.
	assert.True(t, c.CanAdvance())
	require.NoError(t, c.GoNext(ctx))
	assert.Equal(t, 3, c.Snapshot().CurrentIndex)

	// Q4: finish gated on validity.
	_, err = c.FinishSurvey(ctx)
	assert.ErrorIs(t, err, ErrValidationBlocked)
	require.NoError(t, c.UpdateResponse(TextValue("Unsure")))
	done, err := c.FinishSurvey(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	assert.Equal(t, StateCompleted, c.StateName())
	p := lc.snapshot()
	assert.Equal(t, model.StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	firstStamp := *p.CompletedAt

	// A duplicated finish click changes nothing and reports no
	// transition.
	done, err = c.FinishSurvey(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, firstStamp, *lc.snapshot().CompletedAt)
	assert.InDelta(t, 100, c.ProgressPercentage(), 0.01)

	// Answers for Q1, Q2, Q4 were flushed; Q3 was never edited.
	got, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.True(t, TextValue("Unsure").Equal(got["Q4"]))
}

func TestResumePositionScan(t *testing.T) {
	ctx := context.Background()
	qs := []Question{
		{Code: "A", OrderIndex: 1, Type: model.QuestionText, Required: true},
		{Code: "B", OrderIndex: 2, Type: model.QuestionText, Required: true},
		{Code: "C", OrderIndex: 3, Type: model.QuestionText, Required: true},
	}

	store := newFakeStore()
	store.data["A"] = TextValue("answered")
	store.data["C"] = TextValue("answered")

	c := newTestController(&fakeLoader{qs: qs}, store, &fakeLifecycle{})
	require.NoError(t, c.Initialize(ctx, 10, 1))
	assert.Equal(t, 1, c.Snapshot().CurrentIndex, "resume at first unanswered question")

	// All answered: resume at the last question, never past the end.
	store2 := newFakeStore()
	for _, code := range []string{"A", "B", "C"} {
		store2.data[code] = TextValue("answered")
	}
	c2 := newTestController(&fakeLoader{qs: qs}, store2, &fakeLifecycle{})
	require.NoError(t, c2.Initialize(ctx, 10, 1))
	assert.Equal(t, 2, c2.Snapshot().CurrentIndex)
}

func TestResumeReloadMidSurvey(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{qs: diagnosticQuestions()}
	store := newFakeStore()
	lc := &fakeLifecycle{}

	c := newTestController(loader, store, lc)
	require.NoError(t, c.Initialize(ctx, 10, 1))
	require.NoError(t, c.UpdateResponse(TextValue("answer one")))
	require.NoError(t, c.GoNext(ctx))
	require.NoError(t, c.UpdateResponse(TextValue("Yes")))
	require.NoError(t, c.GoNext(ctx))
	require.NoError(t, c.Teardown(ctx))

	// Fresh controller over the same stores, as after a reload.
	c2 := newTestController(loader, store, lc)
	require.NoError(t, c2.Initialize(ctx, 10, 1))
	snap := c2.Snapshot()
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, "Q3", snap.Question.Code)
	assert.True(t, TextValue("Yes").Equal(c2.local["Q2"]))
}

func TestResumeTreatsMismatchedTagAsAbsent(t *testing.T) {
	ctx := context.Background()
	qs := []Question{
		{Code: "Q1", OrderIndex: 1, Type: model.QuestionText, Required: true},
		{Code: "Q2", OrderIndex: 2, Type: model.QuestionText, Required: true},
	}
	store := newFakeStore()
	// Catalog changed after this was recorded: tag no longer fits.
	store.data["Q1"] = NumberValue(3)
	store.data["Q2"] = TextValue("fine")

	c := newTestController(&fakeLoader{qs: qs}, store, &fakeLifecycle{})
	require.NoError(t, c.Initialize(ctx, 10, 1))
	assert.Equal(t, 0, c.Snapshot().CurrentIndex, "mismatched value forces re-answer")
	assert.True(t, c.CurrentValue().IsZero())
	assert.False(t, c.CanAdvance())
}

func TestNoSkipAheadOnFailedAdvance(t *testing.T) {
	ctx := context.Background()
	lc := &fakeLifecycle{}
	c := newTestController(&fakeLoader{qs: diagnosticQuestions()}, newFakeStore(), lc)
	require.NoError(t, c.Initialize(ctx, 10, 1))
	require.NoError(t, c.UpdateResponse(TextValue("answer")))

	lc.mu.Lock()
	lc.advanceErr = errors.New("backend unreachable")
	lc.mu.Unlock()

	err := c.GoNext(ctx)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, 0, c.Snapshot().CurrentIndex, "position must not advance past an unconfirmed write")
	q, ok := c.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "Q1", q.Code)

	lc.mu.Lock()
	lc.advanceErr = nil
	lc.mu.Unlock()
	require.NoError(t, c.GoNext(ctx))
	assert.Equal(t, 1, c.Snapshot().CurrentIndex)
}

func TestGoNextFlushFailureBlocksNavigation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := newTestController(&fakeLoader{qs: diagnosticQuestions()}, store, &fakeLifecycle{})
	require.NoError(t, c.Initialize(ctx, 10, 1))
	require.NoError(t, c.UpdateResponse(TextValue("answer")))

	store.setUpsertErr(errors.New("write failed"))
	var saveErr *SaveError
	require.ErrorAs(t, c.GoNext(ctx), &saveErr)
	assert.Equal(t, 0, c.Snapshot().CurrentIndex)

	// The pending value survived; retrying the navigation saves it.
	store.setUpsertErr(nil)
	require.NoError(t, c.GoNext(ctx))
	got, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.True(t, TextValue("answer").Equal(got["Q1"]))
}

func TestGoPreviousNeedsNoValidAnswer(t *testing.T) {
	ctx := context.Background()
	c := newTestController(&fakeLoader{qs: diagnosticQuestions()}, newFakeStore(), &fakeLifecycle{})
	require.NoError(t, c.Initialize(ctx, 10, 1))
	require.NoError(t, c.UpdateResponse(TextValue("one")))
	require.NoError(t, c.GoNext(ctx))

	assert.False(t, c.CanAdvance(), "Q2 unanswered")
	require.NoError(t, c.GoPrevious(ctx))
	assert.Equal(t, 0, c.Snapshot().CurrentIndex)
	assert.ErrorIs(t, c.GoPrevious(ctx), ErrNoPreviousQuestion)
}

func TestInitializeRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{qs: diagnosticQuestions(), err: errors.New("network down"), failures: 2}
	c := newTestController(loader, newFakeStore(), &fakeLifecycle{})
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.NoError(t, c.Initialize(ctx, 10, 1))
	assert.Equal(t, StateReady, c.StateName())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, slept)
	assert.Equal(t, 3, loader.calls)
}

func TestInitializeGivesUpAfterThreeAttempts(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{qs: diagnosticQuestions(), err: errors.New("network down"), failures: 5}
	c := newTestController(loader, newFakeStore(), &fakeLifecycle{})

	err := c.Initialize(ctx, 10, 1)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 3, loadErr.Attempts)
	assert.Equal(t, StateError, c.StateName())
	assert.Equal(t, 3, loader.calls)

	// Manual retry succeeds once the backend is back.
	require.NoError(t, c.RetryLoad(ctx))
	assert.Equal(t, StateReady, c.StateName())
}

func TestEmptyCatalogIsFatalNotRetried(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{qs: nil}
	c := newTestController(loader, newFakeStore(), &fakeLifecycle{})

	err := c.Initialize(ctx, 10, 1)
	assert.ErrorIs(t, err, ErrCatalogEmpty)
	assert.Equal(t, StateError, c.StateName())
	assert.Equal(t, 1, loader.calls, "an empty catalog must not be retried")
}

func TestCompletionFailureStaysReadyAndRetries(t *testing.T) {
	ctx := context.Background()
	qs := []Question{{Code: "Q1", OrderIndex: 1, Type: model.QuestionText, Required: true}}
	lc := &fakeLifecycle{}
	c := newTestController(&fakeLoader{qs: qs}, newFakeStore(), lc)
	require.NoError(t, c.Initialize(ctx, 10, 1))
	require.NoError(t, c.UpdateResponse(TextValue("done")))

	lc.mu.Lock()
	lc.completeErr = errors.New("backend unreachable")
	lc.mu.Unlock()

	var compErr *CompletionError
	_, err := c.FinishSurvey(ctx)
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, StateReady, c.StateName())
	assert.Equal(t, model.StatusInProgress, lc.snapshot().Status)

	lc.mu.Lock()
	lc.completeErr = nil
	lc.mu.Unlock()
	done, err := c.FinishSurvey(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, model.StatusCompleted, lc.snapshot().Status)
}

func TestSingleQuestionSurvey(t *testing.T) {
	ctx := context.Background()
	qs := []Question{{Code: "ONLY", OrderIndex: 1, Type: model.QuestionText, Required: true}}
	c := newTestController(&fakeLoader{qs: qs}, newFakeStore(), &fakeLifecycle{})
	require.NoError(t, c.Initialize(ctx, 10, 1))

	assert.Equal(t, 0, c.Snapshot().CurrentIndex)
	require.NoError(t, c.UpdateResponse(TextValue("answer")))
	assert.ErrorIs(t, c.GoNext(ctx), ErrNoNextQuestion)
	done, err := c.FinishSurvey(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, StateCompleted, c.StateName())
}

func TestResumeCompletedParticipantIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	lc := &fakeLifecycle{}
	done := time.Now().Add(-time.Hour)
	lc.created = true
	lc.p = ParticipantState{ID: 1, SessionID: "sess-1", Status: model.StatusCompleted, CompletedAt: &done, CurrentQuestionIndex: 4}

	c := newTestController(&fakeLoader{qs: diagnosticQuestions()}, newFakeStore(), lc)
	require.NoError(t, c.Initialize(ctx, 10, 1))
	assert.Equal(t, StateCompleted, c.StateName())
	assert.InDelta(t, 100, c.ProgressPercentage(), 0.01)

	// Nothing mutates a completed participant.
	assert.ErrorIs(t, c.UpdateResponse(TextValue("late edit")), ErrNotReady)
	assert.ErrorIs(t, c.GoNext(ctx), ErrNotReady)
	finished, err := c.FinishSurvey(ctx)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, done, *lc.snapshot().CompletedAt)
}
