// Package approval polls the external approval authority until a batch of participants is approved.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

const (
	// DefaultInterval is the delay between two authority queries.
	DefaultInterval = 5 * time.Second
	// DefaultMaxTicks is the number of queries before a batch times out.
	DefaultMaxTicks = 12
)

// Authority reports the approval state of participants.
type Authority interface {
	QueryStatus(ctx context.Context, ids []uuid.UUID) ([]models.ApprovalStatus, error)
}

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Config controls tick interval and retry budget.
type Config struct {
	Interval time.Duration
	MaxTicks int
}

// Result is delivered once per run unless the run is cancelled first.
// Err is nil on success, apperr.ErrTimeout when the budget ran out, or wraps apperr.ErrCollaborator.
type Result struct {
	Approved []models.ApprovalStatus
	Ticks    int
	Err      error
}

// Poller runs at most one polling loop at a time. Starting a new run cancels the previous one.
type Poller struct {
	authority Authority
	cfg       Config
	newTicker TickerFunc
	logger    *zap.Logger

	mu      sync.Mutex
	current *Run
}

// Option customises a Poller.
type Option func(*Poller)

// WithTicker replaces the ticker factory (tests drive ticks by hand).
func WithTicker(fn TickerFunc) Option {
	return func(p *Poller) { p.newTicker = fn }
}

// NewPoller creates a poller. Zero config values fall back to the defaults.
func NewPoller(authority Authority, cfg Config, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultMaxTicks
	}
	p := &Poller{authority: authority, cfg: cfg, newTicker: NewRealTicker, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Poller) Config() Config { return p.cfg }

// Run is the handle of one polling loop.
type Run struct {
	ids    []uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the loop before its next query. It does not wait; use Done for that.
func (r *Run) Cancel() { r.cancel() }

// Done is closed when the loop has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// IDs returns the batch being polled.
func (r *Run) IDs() []uuid.UUID { return r.ids }

// Start begins polling ids in the background and returns immediately. onResult is called from
// the polling goroutine at most once, and never after the run was cancelled.
func (p *Poller) Start(ids []uuid.UUID, onResult func(*Run, Result)) (*Run, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("no participants to poll")
	}
	batch := dedupe(ids)

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{ids: batch, cancel: cancel, done: make(chan struct{})}
	ticker := p.newTicker(p.cfg.Interval)

	p.mu.Lock()
	prev := p.current
	p.current = run
	p.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	go p.loop(ctx, run, ticker, onResult)
	p.logger.Info("approval polling started",
		zap.Int("participants", len(batch)), zap.Duration("interval", p.cfg.Interval), zap.Int("max_ticks", p.cfg.MaxTicks))
	return run, nil
}

// Stop cancels the active run, if any, and waits for it to exit. Must not be called from onResult.
func (p *Poller) Stop() {
	p.mu.Lock()
	run := p.current
	p.current = nil
	p.mu.Unlock()
	if run == nil {
		return
	}
	run.Cancel()
	<-run.done
}

func (p *Poller) loop(ctx context.Context, run *Run, ticker Ticker, onResult func(*Run, Result)) {
	defer close(run.done)
	defer ticker.Stop()
	defer p.clear(run)

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			return
		}

		queryCtx, cancel := context.WithTimeout(ctx, p.cfg.Interval)
		statuses, err := p.authority.QueryStatus(queryCtx, run.ids)
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("approval query failed", zap.Int("tick", tick), zap.Error(err))
			p.deliver(ctx, run, onResult, Result{Ticks: tick, Err: apperr.Collaborator("query approval status", err)})
			return
		}

		approved := matchApproved(run.ids, statuses)
		if len(approved) == len(run.ids) {
			p.logger.Info("approval batch complete", zap.Int("tick", tick), zap.Int("participants", len(approved)))
			p.deliver(ctx, run, onResult, Result{Approved: approved, Ticks: tick})
			return
		}
		if tick >= p.cfg.MaxTicks {
			p.logger.Warn("approval polling timed out", zap.Int("ticks", tick), zap.Int("approved", len(approved)), zap.Int("participants", len(run.ids)))
			p.deliver(ctx, run, onResult, Result{Approved: approved, Ticks: tick, Err: apperr.ErrTimeout})
			return
		}
		p.logger.Debug("approval pending", zap.Int("tick", tick), zap.Int("approved", len(approved)), zap.Int("participants", len(run.ids)))
	}
}

func (p *Poller) deliver(ctx context.Context, run *Run, onResult func(*Run, Result), res Result) {
	if ctx.Err() != nil || onResult == nil {
		return
	}
	onResult(run, res)
}

func (p *Poller) clear(run *Run) {
	p.mu.Lock()
	if p.current == run {
		p.current = nil
	}
	p.mu.Unlock()
}

// matchApproved returns the approved statuses for ids, in ids order. Statuses for other ids are ignored.
func matchApproved(ids []uuid.UUID, statuses []models.ApprovalStatus) []models.ApprovalStatus {
	byID := make(map[uuid.UUID]models.ApprovalStatus, len(statuses))
	for _, s := range statuses {
		if s.IsApproved {
			byID[s.ID] = s
		}
	}
	out := make([]models.ApprovalStatus, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
