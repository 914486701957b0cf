// Package poller watches jobs in the store until they reach a terminal state,
// refreshing the local mirror and notifying subscribers on every read.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carousel/internal/domain"
	"carousel/internal/events"
	"carousel/internal/mirror"
)

// Reader is the store read used on each tick.
type Reader interface {
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
}

// ChangeFeed delivers a wake-up signal whenever a job row changes. ok is false
// when the feed is unavailable; a closed channel means the feed dropped.
type ChangeFeed interface {
	Subscribe(jobID string) (signals <-chan struct{}, cancel func(), ok bool)
}

// Config bounds a watch.
type Config struct {
	// Interval between reads when no change feed is available.
	Interval time.Duration
	// MaxDuration caps the lifetime of a watch. There is no resume after it
	// elapses.
	MaxDuration time.Duration
	// FallbackInterval is the safety poll used while the change feed is up.
	FallbackInterval time.Duration
}

// DefaultConfig polls every 2s for at most 30 minutes.
func DefaultConfig() Config {
	return Config{
		Interval:         2 * time.Second,
		MaxDuration:      30 * time.Minute,
		FallbackInterval: 15 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = def.MaxDuration
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = c.Interval
	}
	return c
}

// Poller owns every active watch. At most one watch runs per job id.
type Poller struct {
	reader    Reader
	mirror    mirror.Store
	publisher events.Publisher
	feed      ChangeFeed
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[string]*Watch
	wg      sync.WaitGroup
}

// Option customises a Poller.
type Option func(*Poller)

// WithChangeFeed enables push-driven reads.
func WithChangeFeed(feed ChangeFeed) Option {
	return func(p *Poller) {
		p.feed = feed
	}
}

func New(reader Reader, store mirror.Store, publisher events.Publisher, cfg Config, logger zerolog.Logger, opts ...Option) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		reader:    reader,
		mirror:    store,
		publisher: publisher,
		cfg:       cfg.normalized(),
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		watches:   make(map[string]*Watch),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch starts watching jobID, or returns the watch already running for it.
func (p *Poller) Watch(jobID string) *Watch {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.watches[jobID]; ok {
		return w
	}
	ctx, cancel := context.WithCancel(p.ctx)
	w := &Watch{
		JobID:   jobID,
		Started: p.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if p.ctx.Err() != nil {
		cancel()
		w.finish(OutcomeStopped)
		return w
	}
	p.watches[jobID] = w
	p.wg.Add(1)
	go p.run(ctx, w)
	return w
}

// Active reports whether a watch is running for jobID.
func (p *Poller) Active(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watches[jobID]
	return ok
}

// Stop cancels the watch for jobID, if any.
func (p *Poller) Stop(jobID string) {
	p.mu.Lock()
	w := p.watches[jobID]
	p.mu.Unlock()
	if w != nil {
		w.Stop()
		<-w.Done()
	}
}

// Close cancels every watch and waits for them to exit.
func (p *Poller) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, w *Watch) {
	outcome := OutcomeStopped
	defer func() {
		p.mu.Lock()
		if p.watches[w.JobID] == w {
			delete(p.watches, w.JobID)
		}
		p.mu.Unlock()
		w.finish(outcome)
		p.wg.Done()
	}()

	logger := p.logger.With().Str("job_id", w.JobID).Logger()
	interval := p.cfg.Interval
	var signals <-chan struct{}
	if p.feed != nil {
		if ch, cancel, ok := p.feed.Subscribe(w.JobID); ok {
			defer cancel()
			signals = ch
			interval = p.cfg.FallbackInterval
		}
	}

	deadline := time.NewTimer(p.cfg.MaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Debug().Dur("interval", interval).Bool("push", signals != nil).Msg("poller: watch started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			outcome = OutcomeExpired
			logger.Warn().Dur("max_duration", p.cfg.MaxDuration).Msg("poller: watch expired before job finished")
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				ticker.Reset(p.cfg.Interval)
				logger.Info().Msg("poller: change feed dropped, polling")
				continue
			}
		case <-ticker.C:
		}

		if p.now().Sub(w.Started) >= p.cfg.MaxDuration {
			outcome = OutcomeExpired
			logger.Warn().Dur("max_duration", p.cfg.MaxDuration).Msg("poller: watch expired before job finished")
			return
		}
		if done, result := p.read(ctx, w, logger); done {
			outcome = result
			return
		}
	}
}

// read performs one store read. It reports whether the watch is over.
func (p *Poller) read(ctx context.Context, w *Watch, logger zerolog.Logger) (bool, Outcome) {
	job, err := p.reader.GetByID(ctx, w.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info().Msg("poller: job no longer exists")
			return true, OutcomeGone
		}
		if ctx.Err() != nil {
			return true, OutcomeStopped
		}
		logger.Warn().Err(err).Msg("poller: read failed, skipping tick")
		return false, ""
	}
	w.record(job)

	if err := p.mirror.Upsert(ctx, job); err != nil {
		logger.Error().Err(err).Msg("poller: mirror write failed")
	}
	p.publisher.Publish(ctx, events.JobEvent(events.KindUpdated, job))
	logger.Debug().Str("status", string(job.Status)).Int("progress", job.Progress).Msg("poller: job read")

	if job.Status.Terminal() {
		return true, OutcomeTerminal
	}
	return false, ""
}
