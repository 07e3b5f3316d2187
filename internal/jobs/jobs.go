// Package jobs runs long operations (indexing, bulk discovery, batch
// geocoding) as cancellable background jobs with broadcast progress.
//
// One producer per job, many subscribers. Subscribers get bounded
// buffers; a subscriber that falls behind is disconnected rather than
// allowed to stall the producer. At most one job per kind runs at a
// time.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ErrBusy is returned by Start when a job of the same kind is already
// running.
var ErrBusy = errors.New("job of this kind already running")

// subscriberBuffer is the per-subscriber channel capacity. Overflow
// disconnects the subscriber.
const subscriberBuffer = 64

// Runner is the body of a job. It reports progress through emit (which
// never blocks the runner) and must return promptly once ctx is
// cancelled. The manager owns the started and terminal events; runners
// emit only intermediate progress.
type Runner func(ctx context.Context, emit func(types.Progress)) error

// Job is a handle on one running (or finished) job.
type Job struct {
	ID   string
	Kind types.JobKind

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	subscribers map[int]chan types.Progress
	nextSub     int
	finished    bool
	last        types.Progress // terminal event, replayed to late subscribers
}

// Subscribe attaches a progress listener. The returned channel closes
// after the terminal event; the cancel function detaches early. A
// subscriber that attaches after the job finished receives the terminal
// event immediately.
func (j *Job) Subscribe() (<-chan types.Progress, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan types.Progress, subscriberBuffer)
	if j.finished {
		ch <- j.last
		close(ch)
		return ch, func() {}
	}
	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = ch

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if sub, ok := j.subscribers[id]; ok {
			delete(j.subscribers, id)
			close(sub)
		}
	}
}

// Done returns a channel closed when the job's terminal event has been
// delivered and its slot released.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// publish fans an event out to every subscriber without ever blocking:
// a full buffer disconnects that subscriber. Terminal events close all
// channels and mark the job finished.
func (j *Job) publish(p types.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	for id, ch := range j.subscribers {
		select {
		case ch <- p:
		default:
			// Slow subscriber: drop it, never the producer.
			delete(j.subscribers, id)
			close(ch)
		}
	}
	if p.Type.IsTerminal() {
		j.finished = true
		j.last = p
		for id, ch := range j.subscribers {
			delete(j.subscribers, id)
			close(ch)
		}
	}
}

// Manager owns the active-job table. The zero value is not usable; use
// NewManager.
type Manager struct {
	mu     sync.Mutex
	active map[types.JobKind]*Job
	wg     sync.WaitGroup
}

// NewManager returns an empty job manager.
func NewManager() *Manager {
	return &Manager{active: make(map[types.JobKind]*Job)}
}

// Start launches a job of the given kind. Fails synchronously with
// ErrBusy while another job of that kind is active. The job runs on its
// own goroutine; the caller observes it through the returned handle.
func (m *Manager) Start(ctx context.Context, kind types.JobKind, run Runner) (*Job, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid job kind: %s", kind)
	}
	m.mu.Lock()
	if _, busy := m.active[kind]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", kind, ErrBusy)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:          idgen.New(),
		Kind:        kind,
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[int]chan types.Progress),
	}
	m.active[kind] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(jobCtx, job, run)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job, run Runner) {
	defer m.wg.Done()

	job.publish(types.Progress{Type: types.ProgressStarted, JobID: job.ID, Kind: job.Kind})

	emit := func(p types.Progress) {
		p.Type = types.ProgressWorking
		p.JobID = job.ID
		p.Kind = job.Kind
		job.publish(p)
	}
	err := run(ctx, emit)

	terminal := types.Progress{JobID: job.ID, Kind: job.Kind}
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		terminal.Type = types.ProgressCancelled
	case err != nil:
		terminal.Type = types.ProgressError
		terminal.Message = err.Error()
	default:
		terminal.Type = types.ProgressCompleted
	}
	job.publish(terminal)

	// Slot releases only after the terminal event is out, so a caller
	// that saw Start fail with ErrBusy can rely on the previous job's
	// stream being complete once Start succeeds.
	m.mu.Lock()
	if m.active[job.Kind] == job {
		delete(m.active, job.Kind)
	}
	m.mu.Unlock()
	job.cancel()
	close(job.done)
}

// Cancel requests cooperative cancellation of a job by ID. Returns
// false when no active job carries the ID.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.active {
		if job.ID == jobID {
			job.cancel()
			return true
		}
	}
	return false
}

// IsRunning reports whether a job of the kind is active.
func (m *Manager) IsRunning(kind types.JobKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[kind]
	return running
}

// Get returns the active job of a kind, or nil.
func (m *Manager) Get(kind types.JobKind) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[kind]
}

// Shutdown cancels every active job and waits for their terminal events
// up to the context deadline. Jobs still running past the deadline are
// abandoned (their goroutines die with the process).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, job := range m.active {
		job.cancel()
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown deadline: %w", ctx.Err())
	}
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
// The shared rate-limit sleep used by crawl, discovery, and geocode
// jobs; returns ctx.Err() on cancellation so callers can stop at the
// next iteration boundary.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
