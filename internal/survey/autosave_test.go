package survey

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type persistRecorder struct {
	mu     sync.Mutex
	writes []struct {
		code string
		v    Value
	}
	err error
}

func (p *persistRecorder) persist(_ context.Context, code string, v Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, struct {
		code string
		v    Value
	}{code, v})
	return nil
}

func (p *persistRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *persistRecorder) last() (string, Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.writes[len(p.writes)-1]
	return w.code, w.v
}

func (p *persistRecorder) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestSchedulerCoalescesBurstToLatestValue(t *testing.T) {
	rec := &persistRecorder{}
	s := NewScheduler(30*time.Millisecond, rec.persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("v1"))
	s.OnEdit("Q1", TextValue("v2"))
	s.OnEdit("Q1", TextValue("v3"))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	code, v := rec.last()
	assert.Equal(t, "Q1", code)
	assert.True(t, TextValue("v3").Equal(v))

	// No straggler write from the superseded timers.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestSchedulerFlushPersistsImmediately(t *testing.T) {
	rec := &persistRecorder{}
	s := NewScheduler(time.Hour, rec.persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("draft"))
	require.NoError(t, s.Flush(context.Background(), "Q1"))
	assert.Equal(t, 1, rec.count())
}

func TestSchedulerFlushSkipsUnchangedValue(t *testing.T) {
	rec := &persistRecorder{}
	s := NewScheduler(time.Hour, rec.persist)
	defer s.Dispose()

	s.MarkSaved("Q1", TextValue("same"))
	s.OnEdit("Q1", TextValue("same"))
	require.NoError(t, s.Flush(context.Background(), "Q1"))
	assert.Equal(t, 0, rec.count(), "flush should skip a value already persisted")

	require.NoError(t, s.Flush(context.Background(), "Q1"))
	assert.Equal(t, 0, rec.count(), "flush with nothing pending is a no-op")
}

func TestSchedulerDebouncedFailureRetriesOnFlush(t *testing.T) {
	rec := &persistRecorder{}
	rec.setErr(errors.New("backend down"))
	s := NewScheduler(20*time.Millisecond, rec.persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("keep me"))
	time.Sleep(60 * time.Millisecond) // timer fires, write fails quietly
	assert.Equal(t, 0, rec.count())

	rec.setErr(nil)
	require.NoError(t, s.Flush(context.Background(), "Q1"))
	require.Equal(t, 1, rec.count())
	_, v := rec.last()
	assert.True(t, TextValue("keep me").Equal(v))
}

func TestSchedulerFlushFailureIsReturned(t *testing.T) {
	rec := &persistRecorder{}
	rec.setErr(errors.New("backend down"))
	s := NewScheduler(time.Hour, rec.persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("final answer"))
	err := s.Flush(context.Background(), "Q1")
	require.Error(t, err)

	// Value stays pending so a retry still has it.
	rec.setErr(nil)
	require.NoError(t, s.Flush(context.Background(), "Q1"))
	assert.Equal(t, 1, rec.count())
}

func TestSchedulerSlowTimerWriteNeverOutlivesFlushedEdit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	persist := func(_ context.Context, _ string, v Value) error {
		if v.Text == "v1" {
			entered <- struct{}{}
			<-release
		}
		mu.Lock()
		order = append(order, v.Text)
		mu.Unlock()
		return nil
	}
	s := NewScheduler(10*time.Millisecond, persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("v1"))
	<-entered // the debounced write for v1 is now stalled mid-flight

	s.OnEdit("Q1", TextValue("v2"))
	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background(), "Q1") }()

	// The flush must wait for the stalled write, not race past it.
	select {
	case err := <-flushed:
		t.Fatalf("flush returned %v while an older write was still in flight", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-flushed)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"v1", "v2"}, order)
}

func TestSchedulerFlushRetriesWriteThatFailedMidFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	persist := func(_ context.Context, _ string, _ Value) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			entered <- struct{}{}
			<-release
			return errors.New("backend down")
		}
		return nil
	}
	s := NewScheduler(10*time.Millisecond, persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("keep me"))
	<-entered

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background(), "Q1") }()
	close(release)

	// The timer write fails and re-queues its value; the waiting flush
	// picks it up instead of returning an empty success.
	require.NoError(t, <-flushed)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSchedulerFlushAll(t *testing.T) {
	rec := &persistRecorder{}
	s := NewScheduler(time.Hour, rec.persist)
	defer s.Dispose()

	s.OnEdit("Q1", TextValue("a"))
	s.OnEdit("Q2", NumberValue(7))
	require.NoError(t, s.FlushAll(context.Background()))
	assert.Equal(t, 2, rec.count())
}

func TestSchedulerDisposeCancelsTimers(t *testing.T) {
	rec := &persistRecorder{}
	s := NewScheduler(20*time.Millisecond, rec.persist)

	s.OnEdit("Q1", TextValue("never"))
	s.Dispose()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	s.OnEdit("Q2", TextValue("ignored after dispose"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
