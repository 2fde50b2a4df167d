package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

// manualTicker fires only when the test sends on ch.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *manualClock) last(t *testing.T) *manualTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.tickers)
	return c.tickers[len(c.tickers)-1]
}

// tick delivers one tick; it blocks until the loop is ready to receive it.
func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("poller did not accept tick")
	}
}

// stubAuthority approves every id once approveAt queries have been made.
type stubAuthority struct {
	mu        sync.Mutex
	calls     int
	approveAt int
	err       error
}

func (s *stubAuthority) QueryStatus(_ context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ApprovalStatus, 0, len(ids))
	for i, id := range ids {
		st := models.ApprovalStatus{ID: id}
		if s.approveAt > 0 && s.calls >= s.approveAt {
			st.IsApproved = true
			st.PassID = "PASS-" + string(rune('A'+i))
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *stubAuthority) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestPoller(auth Authority) (*Poller, *manualClock) {
	clock := &manualClock{}
	p := NewPoller(auth, Config{Interval: 5 * time.Second, MaxTicks: 12}, nil, WithTicker(clock.NewTicker))
	return p, clock
}

func collect() (func(*Run, Result), <-chan Result) {
	ch := make(chan Result, 1)
	return func(_ *Run, r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatal("run did not exit")
	}
}

func TestPollerSucceedsOnThirdTick(t *testing.T) {
	auth := &stubAuthority{approveAt: 3}
	p, clock := newTestPoller(auth)
	onResult, results := collect()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	run, err := p.Start(ids, onResult)
	require.NoError(t, err)
	tk := clock.last(t)

	tk.tick(t)
	tk.tick(t)
	tk.tick(t)

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Ticks)
	require.Len(t, res.Approved, 3)
	for i, s := range res.Approved {
		assert.Equal(t, ids[i], s.ID)
		assert.NotEmpty(t, s.PassID)
	}

	waitDone(t, run)
	assert.Equal(t, 3, auth.Calls(), "no fourth query after success")
	select {
	case tk.ch <- time.Now():
		t.Fatal("loop still consuming ticks after success")
	default:
	}
}

func TestPollerTimesOutAfterBudget(t *testing.T) {
	auth := &stubAuthority{}
	p, clock := newTestPoller(auth)
	onResult, results := collect()

	run, err := p.Start([]uuid.UUID{uuid.New(), uuid.New()}, onResult)
	require.NoError(t, err)
	tk := clock.last(t)
	for i := 0; i < 12; i++ {
		tk.tick(t)
	}

	res := waitResult(t, results)
	assert.ErrorIs(t, res.Err, apperr.ErrTimeout)
	assert.NotErrorIs(t, res.Err, apperr.ErrCollaborator)
	assert.Equal(t, 12, res.Ticks)
	waitDone(t, run)
	assert.Equal(t, 12, auth.Calls())
}

func TestPollerStopsOnQueryError(t *testing.T) {
	auth := &stubAuthority{err: errors.New("authority unavailable")}
	p, clock := newTestPoller(auth)
	onResult, results := collect()

	run, err := p.Start([]uuid.UUID{uuid.New()}, onResult)
	require.NoError(t, err)
	clock.last(t).tick(t)

	res := waitResult(t, results)
	assert.ErrorIs(t, res.Err, apperr.ErrCollaborator)
	assert.Equal(t, 1, res.Ticks)
	waitDone(t, run)
	assert.Equal(t, 1, auth.Calls())
}

func TestPollerPartialApprovalKeepsPolling(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	var calls int
	auth := authorityFunc(func(_ context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error) {
		calls++
		out := []models.ApprovalStatus{{ID: first, IsApproved: true, PassID: "P1"}, {ID: second, IsApproved: calls >= 2, PassID: "P2"}}
		// statuses for ids outside the batch are ignored
		out = append(out, models.ApprovalStatus{ID: uuid.New(), IsApproved: true})
		return out, nil
	})
	p, clock := newTestPoller(auth)
	onResult, results := collect()

	_, err := p.Start([]uuid.UUID{first, second}, onResult)
	require.NoError(t, err)
	tk := clock.last(t)
	tk.tick(t)
	tk.tick(t)

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Ticks)
	assert.Equal(t, []models.ApprovalStatus{{ID: first, IsApproved: true, PassID: "P1"}, {ID: second, IsApproved: true, PassID: "P2"}}, res.Approved)
}

func TestPollerCancelPreventsFurtherTicks(t *testing.T) {
	auth := &stubAuthority{}
	p, clock := newTestPoller(auth)
	called := make(chan Result, 1)

	run, err := p.Start([]uuid.UUID{uuid.New()}, func(_ *Run, r Result) { called <- r })
	require.NoError(t, err)
	tk := clock.last(t)
	tk.tick(t)
	require.Eventually(t, func() bool { return auth.Calls() == 1 }, time.Second, time.Millisecond)

	run.Cancel()
	waitDone(t, run)

	select {
	case tk.ch <- time.Now():
		t.Fatal("cancelled loop accepted a tick")
	default:
	}
	assert.Equal(t, 1, auth.Calls())
	assert.Empty(t, called)
	<-tk.stopped
}

func TestPollerCancelDuringQueryDropsResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	auth := authorityFunc(func(_ context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error) {
		close(entered)
		<-release
		return []models.ApprovalStatus{{ID: ids[0], IsApproved: true, PassID: "P"}}, nil
	})
	p, clock := newTestPoller(auth)
	called := make(chan Result, 1)

	run, err := p.Start([]uuid.UUID{uuid.New()}, func(_ *Run, r Result) { called <- r })
	require.NoError(t, err)
	clock.last(t).tick(t)
	<-entered
	run.Cancel()
	close(release)

	waitDone(t, run)
	assert.Empty(t, called, "result of a cancelled run must not be applied")
}

func TestPollerStartCancelsPreviousRun(t *testing.T) {
	auth := &stubAuthority{approveAt: 1}
	p, clock := newTestPoller(auth)
	onResult, results := collect()

	first, err := p.Start([]uuid.UUID{uuid.New()}, onResult)
	require.NoError(t, err)
	firstTicker := clock.last(t)

	second, err := p.Start([]uuid.UUID{uuid.New()}, onResult)
	require.NoError(t, err)
	waitDone(t, first)
	<-firstTicker.stopped

	clock.last(t).tick(t)
	res := waitResult(t, results)
	require.NoError(t, res.Err)
	waitDone(t, second)
	assert.Equal(t, 1, auth.Calls())
}

func TestPollerRejectsEmptyBatch(t *testing.T) {
	p, _ := newTestPoller(&stubAuthority{})
	_, err := p.Start(nil, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPollerDedupesIDs(t *testing.T) {
	id := uuid.New()
	p, _ := newTestPoller(&stubAuthority{})
	run, err := p.Start([]uuid.UUID{id, id}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, run.IDs())
	p.Stop()
	waitDone(t, run)
}

func TestPollerDefaults(t *testing.T) {
	p := NewPoller(&stubAuthority{}, Config{}, nil)
	assert.Equal(t, DefaultInterval, p.Config().Interval)
	assert.Equal(t, DefaultMaxTicks, p.Config().MaxTicks)
}

type authorityFunc func(ctx context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error)

func (f authorityFunc) QueryStatus(ctx context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error) {
	return f(ctx, ids)
}
