// Package puller orchestrates channel pull jobs: it validates submissions,
// registers them, runs one background execution loop per job against the
// rate-limited platform API, and exposes the progress/cancel surface callers
// poll. The submission path never blocks on remote I/O.
package puller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/archive"
	"github.com/brightkite/channelpull/internal/progress"
	"github.com/brightkite/channelpull/internal/publisher"
	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/ratelimit"
	"github.com/brightkite/channelpull/internal/registry"
	"github.com/brightkite/channelpull/internal/store"
)

// Config controls Puller behavior.
type Config struct {
	// Limits normalize submitted batch sizes and delays.
	Limits pull.Limits
	// MaxAttempts bounds retries for one page or thread before giving up.
	MaxAttempts int
	// Backoff paces retries after RateLimited/Transient failures.
	Backoff ratelimit.Backoff
	// Estimate feeds the submission-time completion heuristic.
	Estimate EstimateParams
	// Topic names the completion event destination.
	Topic string
}

// Puller is the orchestrator. One instance serves the whole process; each
// started pull runs on its own goroutine.
type Puller struct {
	reg      *registry.Registry
	jobs     store.PullJobStore
	messages store.MessageStore
	fetcher  pull.PageFetcher
	threads  pull.ThreadExpander
	channels pull.ChannelLister
	clock    pull.Clock
	ids      pull.IDGenerator
	hub      progress.Emitter
	pub      publisher.Publisher
	arch     *archive.Archiver
	cfg      Config
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New constructs a Puller. hub, pub and arch may be nil; the corresponding
// side effects are skipped.
func New(
	reg *registry.Registry,
	jobs store.PullJobStore,
	messages store.MessageStore,
	fetcher pull.PageFetcher,
	threads pull.ThreadExpander,
	channels pull.ChannelLister,
	clock pull.Clock,
	ids pull.IDGenerator,
	hub progress.Emitter,
	pub publisher.Publisher,
	arch *archive.Archiver,
	cfg Config,
	logger *zap.Logger,
) *Puller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Puller{
		reg:      reg,
		jobs:     jobs,
		messages: messages,
		fetcher:  fetcher,
		threads:  threads,
		channels: channels,
		clock:    clock,
		ids:      ids,
		hub:      hub,
		pub:      pub,
		arch:     arch,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartChannelPull validates the config, registers a QUEUED job, schedules
// its execution loop, and returns the initial record along with the estimated
// completion time. It returns a *pull.ValidationError for bad input,
// registry.ErrConflict when an active pull already covers an overlapping
// window for the channel, and registry.ErrCapacity when the process is full.
// The call itself never touches the remote platform.
func (p *Puller) StartChannelPull(ctx context.Context, cfg pull.Config) (pull.Job, time.Time, error) {
	// Validate the raw submission first: normalization fills defaults and
	// floors the delay, which would hide a negative value from the check.
	if err := cfg.Validate(); err != nil {
		return pull.Job{}, time.Time{}, err
	}
	cfg.Normalize(p.cfg.Limits)

	id, err := p.ids.NewID()
	if err != nil {
		return pull.Job{}, time.Time{}, fmt.Errorf("generate pull id: %w", err)
	}

	now := p.clock.Now()
	job := pull.Job{
		ID:          id,
		ChannelID:   cfg.ChannelID,
		ChannelName: cfg.ChannelName,
		Status:      pull.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		Config:      cfg,
	}

	runCtx, err := p.reg.Register(job)
	if err != nil {
		return pull.Job{}, time.Time{}, err
	}
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.reg.Remove(id)
		return pull.Job{}, time.Time{}, fmt.Errorf("persist pull job: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx, job)
	}()

	eta := now.Add(EstimateDuration(cfg, p.cfg.Estimate))
	p.logger.Info("pull accepted",
		zap.String("pull_id", id),
		zap.String("channel_id", cfg.ChannelID),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("include_threads", cfg.IncludeThreads),
	)
	return job, eta, nil
}

// GetProgress returns the freshest view of a job: the registry while the
// process still indexes it, the durable store afterwards. Unknown ids map to
// store.ErrNotFound.
func (p *Puller) GetProgress(ctx context.Context, jobID string) (pull.Job, error) {
	if job, ok := p.reg.Get(jobID); ok {
		return job, nil
	}
	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pull.Job{}, store.ErrNotFound
		}
		return pull.Job{}, fmt.Errorf("load pull job: %w", err)
	}
	return job, nil
}

// CancelPull flips the job's cancellation flag. It reports true only when the
// job existed in a cancellable state; the loop observes the flag at its next
// checkpoint and finalizes as CANCELLED.
func (p *Puller) CancelPull(jobID string) bool {
	return p.reg.Cancel(jobID)
}

// ListActive returns the QUEUED and RUNNING jobs, newest first.
func (p *Puller) ListActive() []pull.Job {
	return p.reg.Active()
}

// ListAll returns jobs from the durable store, newest first.
func (p *Puller) ListAll(ctx context.Context, limit, offset int) ([]pull.Job, error) {
	jobs, err := p.jobs.ListJobs(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pull jobs: %w", err)
	}
	return jobs, nil
}

// ListChannels returns the channels the service account is a member of.
func (p *Puller) ListChannels(ctx context.Context) ([]pull.Channel, error) {
	channels, err := p.channels.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// ListAllChannels returns every visible channel with its membership flag.
func (p *Puller) ListAllChannels(ctx context.Context) ([]pull.Channel, error) {
	channels, err := p.channels.ListAllChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all channels: %w", err)
	}
	return channels, nil
}

// Drain waits for every running execution loop to finalize, bounded by ctx.
// Callers cancel the registry's base context first so the loops stop at their
// next checkpoint.
func (p *Puller) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain pull loops: %w", ctx.Err())
	}
}

func (p *Puller) emit(evt progress.Event) {
	if p.hub == nil {
		return
	}
	p.hub.Emit(evt)
}
