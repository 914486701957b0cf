package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"carousel/internal/domain"
	"carousel/internal/events"
)

type scriptedReader struct {
	mu       sync.Mutex
	script   []readResult
	attempts int
}

type readResult struct {
	job *domain.Job
	err error
}

// GetByID replays the script and repeats its last entry forever.
func (r *scriptedReader) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.attempts
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.attempts++
	res := r.script[idx]
	if res.err != nil {
		return nil, res.err
	}
	return res.job.Clone(), nil
}

func (r *scriptedReader) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

type memMirror struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemMirror() *memMirror {
	return &memMirror{jobs: make(map[string]*domain.Job)}
}

func (m *memMirror) All(ctx context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j.Clone())
	}
	return out, nil
}

func (m *memMirror) Get(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (m *memMirror) Upsert(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memMirror) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func job(status domain.JobStatus, progress int, urls ...string) *domain.Job {
	return &domain.Job{ID: "job-1", UserID: "user-1", Status: status, Progress: progress, Variants: 3, ImageURLs: urls}
}

func fastConfig() Config {
	return Config{Interval: 5 * time.Millisecond, MaxDuration: 2 * time.Second, FallbackInterval: time.Hour}
}

func waitDone(t *testing.T, w *Watch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not finish")
	}
}

func TestWatchStopsOnTerminalRead(t *testing.T) {
	reader := &scriptedReader{script: []readResult{
		{job: job(domain.JobStatusProcessing, 10)},
		{job: job(domain.JobStatusProcessing, 45)},
		{job: job(domain.JobStatusCompleted, 100, "a", "b", "c")},
	}}
	p := New(reader, newMemMirror(), events.NewNotifier(16, zerolog.Nop()), fastConfig(), zerolog.Nop())
	defer p.Close()

	w := p.Watch("job-1")
	waitDone(t, w)

	if w.Outcome() != OutcomeTerminal {
		t.Fatalf("Outcome = %q, want terminal", w.Outcome())
	}
	if got := reader.Attempts(); got != 3 {
		t.Fatalf("reads = %d, want 3", got)
	}
	time.Sleep(30 * time.Millisecond)
	if got := reader.Attempts(); got != 3 {
		t.Fatalf("reads continued after terminal state: %d", got)
	}
	if p.Active("job-1") {
		t.Fatal("watch should be removed after finishing")
	}
}

func TestWatchExpiresWhenJobNeverFinishes(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusProcessing, 50)}}}
	cfg := Config{Interval: 5 * time.Millisecond, MaxDuration: 60 * time.Millisecond}
	p := New(reader, newMemMirror(), events.NewNotifier(128, zerolog.Nop()), cfg, zerolog.Nop())
	defer p.Close()

	w := p.Watch("job-1")
	waitDone(t, w)
	if w.Outcome() != OutcomeExpired {
		t.Fatalf("Outcome = %q, want expired", w.Outcome())
	}
	after := reader.Attempts()
	if after == 0 {
		t.Fatal("expected some reads before expiry")
	}
	time.Sleep(40 * time.Millisecond)
	if reader.Attempts() != after {
		t.Fatalf("reads continued after expiry: %d -> %d", after, reader.Attempts())
	}
}

func TestWatchToleratesReadFailures(t *testing.T) {
	reader := &scriptedReader{script: []readResult{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{job: job(domain.JobStatusFailed, 20)},
	}}
	p := New(reader, newMemMirror(), events.NewNotifier(16, zerolog.Nop()), fastConfig(), zerolog.Nop())
	defer p.Close()

	w := p.Watch("job-1")
	waitDone(t, w)
	if w.Outcome() != OutcomeTerminal {
		t.Fatalf("Outcome = %q, want terminal", w.Outcome())
	}
	if w.Reads() != 1 {
		t.Fatalf("successful reads = %d, want 1", w.Reads())
	}
	if reader.Attempts() != 3 {
		t.Fatalf("attempts = %d, want 3", reader.Attempts())
	}
}

func TestWatchMirrorsEveryRead(t *testing.T) {
	final := job(domain.JobStatusCompleted, 100, "https://cdn/1.png")
	final.Message = "done"
	final.Prompts = []domain.GeneratedPrompt{{ID: "p1", Prompt: "slide one"}}
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusProcessing, 45)}, {job: final}}}
	store := newMemMirror()
	p := New(reader, store, events.NewNotifier(16, zerolog.Nop()), fastConfig(), zerolog.Nop())
	defer p.Close()

	w := p.Watch("job-1")
	waitDone(t, w)

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("mirror Get returned error: %v", err)
	}
	if got.Status != final.Status || got.Progress != final.Progress || got.Message != final.Message {
		t.Fatalf("mirror = %s/%d/%q, want %s/%d/%q", got.Status, got.Progress, got.Message, final.Status, final.Progress, final.Message)
	}
	if len(got.ImageURLs) != 1 || got.ImageURLs[0] != "https://cdn/1.png" {
		t.Fatalf("mirror image urls = %v", got.ImageURLs)
	}
	if len(got.Prompts) != 1 || got.Prompts[0].Prompt != "slide one" {
		t.Fatalf("mirror prompts = %#v", got.Prompts)
	}
	if last := w.Last(); last == nil || last.Status != domain.JobStatusCompleted {
		t.Fatalf("Last() = %#v", last)
	}
}

func TestWatchPublishesExactlyOneTerminalEvent(t *testing.T) {
	reader := &scriptedReader{script: []readResult{
		{job: job(domain.JobStatusProcessing, 45)},
		{job: job(domain.JobStatusCompleted, 100, "a", "b", "c")},
	}}
	notifier := events.NewNotifier(16, zerolog.Nop())
	sub := notifier.Subscribe("job-1")
	defer sub.Close()
	store := newMemMirror()
	p := New(reader, store, notifier, fastConfig(), zerolog.Nop())
	defer p.Close()

	waitDone(t, p.Watch("job-1"))

	var seen []events.Event
	for len(seen) < 2 {
		select {
		case ev := <-sub.Events():
			seen = append(seen, ev)
		case <-time.After(time.Second):
			t.Fatalf("only %d events received", len(seen))
		}
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event %#v", ev)
	case <-time.After(20 * time.Millisecond):
	}

	if seen[0].Status != domain.JobStatusProcessing || *seen[0].Progress != 45 {
		t.Fatalf("first event = %#v", seen[0])
	}
	terminal := 0
	for _, ev := range seen {
		if ev.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal events = %d, want 1", terminal)
	}
	got, _ := store.Get(context.Background(), "job-1")
	if got.Status != domain.JobStatusCompleted || got.Progress != 100 {
		t.Fatalf("mirror ended at %s/%d", got.Status, got.Progress)
	}
}

func TestWatchIsSinglePerJob(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusProcessing, 10)}}}
	p := New(reader, newMemMirror(), events.NewNotifier(256, zerolog.Nop()), fastConfig(), zerolog.Nop())
	defer p.Close()

	first := p.Watch("job-1")
	second := p.Watch("job-1")
	if first != second {
		t.Fatal("expected the running watch to be reused")
	}
	p.Stop("job-1")
	if first.Outcome() != OutcomeStopped {
		t.Fatalf("Outcome = %q, want stopped", first.Outcome())
	}
	if p.Active("job-1") {
		t.Fatal("stopped watch still active")
	}
}

func TestWatchEndsWhenJobDeleted(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{err: domain.ErrNotFound}}}
	p := New(reader, newMemMirror(), events.NewNotifier(4, zerolog.Nop()), fastConfig(), zerolog.Nop())
	defer p.Close()

	w := p.Watch("job-1")
	waitDone(t, w)
	if w.Outcome() != OutcomeGone {
		t.Fatalf("Outcome = %q, want gone", w.Outcome())
	}
}

func TestCloseStopsWatchesAndRejectsNewOnes(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusProcessing, 10)}}}
	p := New(reader, newMemMirror(), events.NewNotifier(256, zerolog.Nop()), fastConfig(), zerolog.Nop())

	w := p.Watch("job-1")
	p.Close()
	waitDone(t, w)
	if w.Outcome() != OutcomeStopped {
		t.Fatalf("Outcome = %q, want stopped", w.Outcome())
	}

	late := p.Watch("job-2")
	waitDone(t, late)
	if late.Outcome() != OutcomeStopped {
		t.Fatalf("late Outcome = %q, want stopped", late.Outcome())
	}
}

type fakeFeed struct {
	ch chan struct{}
}

func (f *fakeFeed) Subscribe(jobID string) (<-chan struct{}, func(), bool) {
	return f.ch, func() {}, true
}

func TestChangeFeedTriggersImmediateRead(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusCompleted, 100)}}}
	feed := &fakeFeed{ch: make(chan struct{}, 1)}
	cfg := Config{Interval: time.Hour, MaxDuration: time.Hour, FallbackInterval: time.Hour}
	p := New(reader, newMemMirror(), events.NewNotifier(4, zerolog.Nop()), cfg, zerolog.Nop(), WithChangeFeed(feed))
	defer p.Close()

	w := p.Watch("job-1")
	feed.ch <- struct{}{}
	waitDone(t, w)
	if w.Outcome() != OutcomeTerminal || reader.Attempts() != 1 {
		t.Fatalf("outcome=%q attempts=%d", w.Outcome(), reader.Attempts())
	}
}

func TestChangeFeedDropDegradesToPolling(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{job: job(domain.JobStatusCompleted, 100)}}}
	feed := &fakeFeed{ch: make(chan struct{})}
	cfg := Config{Interval: 5 * time.Millisecond, MaxDuration: 2 * time.Second, FallbackInterval: time.Hour}
	p := New(reader, newMemMirror(), events.NewNotifier(4, zerolog.Nop()), cfg, zerolog.Nop(), WithChangeFeed(feed))
	defer p.Close()

	w := p.Watch("job-1")
	close(feed.ch)
	waitDone(t, w)
	if w.Outcome() != OutcomeTerminal {
		t.Fatalf("Outcome = %q, want terminal after degrading to polling", w.Outcome())
	}
}
