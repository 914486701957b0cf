// Package changefeed turns PostgreSQL NOTIFY messages emitted by the jobs
// table trigger into per-job wake-up signals.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DefaultChannel matches the channel used by notify_job_change().
const DefaultChannel = "job_changes"

const reconnectDelay = 5 * time.Second

type subscriber struct {
	ch chan struct{}
}

// Listener holds one pooled connection in LISTEN mode. Subscribers get a
// coalescing signal channel per job id; the channel is closed when the
// connection is lost so watchers can fall back to polling.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	logger  zerolog.Logger

	mu        sync.Mutex
	connected bool
	subs      map[string]map[*subscriber]struct{}
}

func NewListener(pool *pgxpool.Pool, channel string, logger zerolog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		pool:    pool,
		channel: channel,
		logger:  logger,
		subs:    make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe returns a signal channel for jobID. ok is false while the feed is
// not connected; callers should poll instead.
func (l *Listener) Subscribe(jobID string) (<-chan struct{}, func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, func() {}, false
	}
	sub := &subscriber{ch: make(chan struct{}, 1)}
	set, ok := l.subs[jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		l.subs[jobID] = set
	}
	set[sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if set, ok := l.subs[jobID]; ok {
				if _, live := set[sub]; live {
					delete(set, sub)
					close(sub.ch)
				}
				if len(set) == 0 {
					delete(l.subs, jobID)
				}
			}
		})
	}
	return sub.ch, cancel, true
}

// Run keeps the LISTEN connection alive until ctx is cancelled, reconnecting
// after failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		l.setDisconnected()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("changefeed: connection lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "listen "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.setConnected()
	l.logger.Info().Str("channel", l.channel).Msg("changefeed: listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) setConnected() {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
}

// setDisconnected closes every subscriber channel so watchers degrade.
func (l *Listener) setDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	for jobID, set := range l.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(l.subs, jobID)
	}
}

func (l *Listener) dispatch(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs[jobID] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}
