// Package events implements the in-process job change notifier.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carousel/internal/domain"
)

// Kind names what happened to a job.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Event signals that a job's data changed. Status and Progress are set when
// the publisher knows them.
type Event struct {
	Kind     Kind             `json:"kind"`
	JobID    string           `json:"job_id"`
	UserID   string           `json:"user_id,omitempty"`
	Status   domain.JobStatus `json:"status,omitempty"`
	Progress *int             `json:"progress,omitempty"`
	At       time.Time        `json:"at"`
}

// Terminal reports whether the event carries a terminal status.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// JobEvent builds an event describing the current state of job.
func JobEvent(kind Kind, job *domain.Job) Event {
	ev := Event{Kind: kind, At: time.Now().UTC()}
	if job == nil {
		return ev
	}
	progress := job.Progress
	ev.JobID = job.ID
	ev.UserID = job.UserID
	ev.Status = job.Status
	ev.Progress = &progress
	return ev
}

// Publisher is the write side of the notifier.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

const defaultBuffer = 64

// Notifier fans events out to subscribers. Delivery is in publish order per
// subscriber; a subscriber whose buffer is full misses the event and has to
// re-read current state. Nothing is persisted.
type Notifier struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger zerolog.Logger
}

// NewNotifier creates a notifier whose subscriptions buffer up to buffer
// events (64 when buffer <= 0).
func NewNotifier(buffer int, logger zerolog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Notifier{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription receives events for one job id, or for every job when the id
// is empty. It must be closed when the listener goes away.
type Subscription struct {
	jobID    string
	ch       chan Event
	notifier *Notifier
	once     sync.Once
}

// Subscribe registers a listener for jobID ("" for all jobs).
func (n *Notifier) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		jobID:    jobID,
		ch:       make(chan Event, n.buffer),
		notifier: n,
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.notifier.mu.Lock()
		delete(s.notifier.subs, s)
		close(s.ch)
		s.notifier.mu.Unlock()
	})
}

// Publish delivers ev to every matching subscriber without blocking.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		if sub.jobID != "" && sub.jobID != ev.JobID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			n.logger.Warn().
				Str("job_id", ev.JobID).
				Str("kind", string(ev.Kind)).
				Msg("events: subscriber buffer full, event dropped")
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

var _ Publisher = (*Notifier)(nil)
