// Package registry indexes pull jobs for the lifetime of the process. It owns
// the QUEUED to RUNNING claim step, the duplicate-window check at submission,
// per-job cancellation, and the periodic sweep that evicts old terminal
// entries. Durable history lives in the job store, not here.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/pull"
)

// ErrConflict rejects a submission that would race an active pull over the
// same channel and an overlapping window.
var ErrConflict = errors.New("conflicting active pull")

// ErrCapacity rejects a submission when the registry already tracks the
// maximum number of active pulls.
var ErrCapacity = errors.New("too many active pulls")

// Config bounds the registry.
type Config struct {
	MaxActive int
}

// Registry is the process-wide job index.
type Registry struct {
	mu     sync.Mutex
	base   context.Context
	jobs   map[string]*entry
	cfg    Config
	logger *zap.Logger
}

type entry struct {
	job       pull.Job
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	doneAt    time.Time
}

// New builds a Registry. Per-job contexts derive from base, so cancelling
// base stops every running pull.
func New(base context.Context, cfg Config, logger *zap.Logger) *Registry {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 64
	}
	return &Registry{
		base:   base,
		jobs:   make(map[string]*entry),
		cfg:    cfg,
		logger: logger,
	}
}

// Register indexes a freshly validated QUEUED job and returns the context its
// execution loop must run under. It fails when an active pull for the same
// channel overlaps the requested window, or when the registry is full.
func (r *Registry) Register(job pull.Job) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return nil, fmt.Errorf("%w: job %s already registered", ErrConflict, job.ID)
	}

	active := 0
	for _, e := range r.jobs {
		if e.job.Status.Terminal() {
			continue
		}
		active++
		if e.job.ChannelID == job.ChannelID && e.job.Config.Overlaps(job.Config) {
			return nil, fmt.Errorf("%w: pull %s is %s over an overlapping window for channel %s",
				ErrConflict, e.job.ID, e.job.Status, job.ChannelID)
		}
	}
	if active >= r.cfg.MaxActive {
		return nil, fmt.Errorf("%w: limit %d", ErrCapacity, r.cfg.MaxActive)
	}

	ctx, cancel := context.WithCancel(r.base)
	r.jobs[job.ID] = &entry{job: job, ctx: ctx, cancel: cancel}
	return ctx, nil
}

// Claim transitions a job from QUEUED to RUNNING and returns the updated
// record. It reports false when the job is unknown or already claimed; two
// execution loops can never both win.
func (r *Registry) Claim(jobID string, now time.Time) (pull.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok || e.job.Status != pull.StatusQueued {
		return pull.Job{}, false
	}
	started := now
	e.job.Status = pull.StatusRunning
	e.job.StartedAt = &started
	e.job.UpdatedAt = now
	return e.job, true
}

// Update replaces the indexed snapshot of a job. Only the job's own execution
// loop calls this after submission.
func (r *Registry) Update(job pull.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[job.ID]
	if !ok {
		return
	}
	e.job = job
	if job.Status.Terminal() && e.doneAt.IsZero() {
		if job.CompletedAt != nil {
			e.doneAt = *job.CompletedAt
		} else {
			e.doneAt = time.Now().UTC()
		}
		e.cancel()
	}
}

// Remove deletes a job from the index regardless of state. It exists so a
// submission can roll back after the durable write fails; the runner never
// calls it.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok {
		return
	}
	e.cancel()
	delete(r.jobs, jobID)
}

// Get returns a copy of the indexed job.
func (r *Registry) Get(jobID string) (pull.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok {
		return pull.Job{}, false
	}
	return e.job, true
}

// Active returns every QUEUED or RUNNING job, newest first.
func (r *Registry) Active() []pull.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]pull.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		if !e.job.Status.Terminal() {
			out = append(out, e.job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel flips the job's cancellation flag and cancels its context. It
// reports true only when the job exists and is still cancellable; cancelling
// a terminal or unknown job is a no-op, not an error.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[jobID]
	if !ok || !e.job.Cancellable() {
		return false
	}
	e.cancelled.Store(true)
	e.cancel()
	return true
}

// Cancelled reports whether the job's cancellation flag is set. The execution
// loop checks this after every suspension point.
func (r *Registry) Cancelled(jobID string) bool {
	r.mu.Lock()
	e, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return e.cancelled.Load()
}

// StartSweeper evicts terminal entries older than retention on every
// interval tick until ctx ends.
func (r *Registry) StartSweeper(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.sweep(now.UTC(), retention); n > 0 {
					r.logger.Debug("swept terminal pulls", zap.Int("evicted", n))
				}
			}
		}
	}()
}

func (r *Registry) sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.jobs {
		if !e.job.Status.Terminal() || e.doneAt.IsZero() {
			continue
		}
		if now.Sub(e.doneAt) >= retention {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}
