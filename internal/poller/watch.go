package poller

import (
	"context"
	"sync"
	"time"

	"carousel/internal/domain"
)

// Outcome explains why a watch ended.
type Outcome string

const (
	OutcomeRunning  Outcome = ""
	OutcomeTerminal Outcome = "terminal"
	OutcomeExpired  Outcome = "expired"
	OutcomeStopped  Outcome = "stopped"
	OutcomeGone     Outcome = "gone"
)

// Watch is one active observation of a job.
type Watch struct {
	JobID   string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
	reads   int
	last    *domain.Job
}

// Done is closed once the watch has ended.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the watch; Done closes shortly after.
func (w *Watch) Stop() {
	w.cancel()
}

// Outcome is OutcomeRunning until Done is closed.
func (w *Watch) Outcome() Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome
}

// Reads counts successful store reads.
func (w *Watch) Reads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reads
}

// Last returns a copy of the most recently read job.
func (w *Watch) Last() *domain.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.Clone()
}

func (w *Watch) record(job *domain.Job) {
	w.mu.Lock()
	w.reads++
	w.last = job.Clone()
	w.mu.Unlock()
}

func (w *Watch) finish(outcome Outcome) {
	w.mu.Lock()
	w.outcome = outcome
	w.mu.Unlock()
	close(w.done)
}
