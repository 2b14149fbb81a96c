package puller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/chat"
	"github.com/brightkite/channelpull/internal/metrics"
	"github.com/brightkite/channelpull/internal/progress"
	"github.com/brightkite/channelpull/internal/publisher"
	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/ratelimit"
)

// publishTimeout bounds the completion event publish during finalization.
const publishTimeout = 10 * time.Second

// run is the execution loop: one invocation per job, on its own goroutine.
// It is the only writer of the job record after submission. Every exit path
// goes through finalize exactly once.
func (p *Puller) run(ctx context.Context, job pull.Job) {
	// Cancellation must not abort checkpoint or terminal writes; the stores
	// get a context that survives the job context.
	persistCtx := context.WithoutCancel(ctx)

	claimed, ok := p.reg.Claim(job.ID, p.clock.Now())
	if !ok {
		p.logger.Warn("pull claim lost", zap.String("pull_id", job.ID))
		return
	}
	job = claimed

	defer func() {
		if rec := recover(); rec != nil && !job.Status.Terminal() {
			p.logger.Error("pull loop panicked",
				zap.String("pull_id", job.ID),
				zap.Any("panic", rec),
			)
			job.Error = fmt.Sprintf("internal panic: %v", rec)
			p.finalize(persistCtx, &job, pull.StatusFailed)
		}
	}()

	if err := p.jobs.SaveJob(persistCtx, job); err != nil {
		p.logger.Warn("persist running status failed", zap.String("pull_id", job.ID), zap.Error(err))
	}
	p.emit(progress.Event{
		PullID:    job.ID,
		ChannelID: job.ChannelID,
		TS:        job.UpdatedAt,
		Stage:     progress.StagePullStart,
	})

	limiter := ratelimit.New(job.ChannelID, job.Config.DelayBetweenRequests, p.cfg.Backoff)
	est := newProgressEstimator(job.Config)
	req := pull.PageRequest{
		ChannelID: job.ChannelID,
		Limit:     job.Config.BatchSize,
		Oldest:    job.Config.StartDate,
		Latest:    job.Config.EndDate,
	}
	attempts := 0

	for {
		if p.cancelled(ctx, job.ID) {
			p.finalize(persistCtx, &job, pull.StatusCancelled)
			return
		}
		if err := limiter.Acquire(ctx); err != nil {
			p.finalize(persistCtx, &job, pull.StatusCancelled)
			return
		}
		// Re-check after the wait: a cancel raised during the pause must win
		// before the next remote call goes out.
		if p.cancelled(ctx, job.ID) {
			p.finalize(persistCtx, &job, pull.StatusCancelled)
			return
		}

		pageStart := time.Now()
		page, err := p.fetcher.FetchPage(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				p.finalize(persistCtx, &job, pull.StatusCancelled)
				return
			}
			if chat.Retryable(err) {
				attempts++
				if attempts >= p.cfg.MaxAttempts {
					job.Error = fmt.Sprintf("page fetch failed after %d attempts: %v", attempts, err)
					p.finalize(persistCtx, &job, pull.StatusFailed)
					return
				}
				metrics.ObserveRetry(retryKind(err))
				p.logger.Warn("page fetch retrying",
					zap.String("pull_id", job.ID),
					zap.String("cursor", req.Cursor),
					zap.Int("attempt", attempts),
					zap.Error(err),
				)
				limiter.Pause(ctx, attempts-1, chat.RetryAfterHint(err))
				continue
			}
			job.Error = err.Error()
			p.finalize(persistCtx, &job, pull.StatusFailed)
			return
		}
		attempts = 0

		kept, reachedStart := windowFilter(page.Messages, job.Config.StartDate, job.Config.EndDate)
		threadsBefore := job.ThreadsExpanded
		if err := p.processPage(ctx, persistCtx, limiter, &job, kept); err != nil {
			job.Error = err.Error()
			p.finalize(persistCtx, &job, pull.StatusFailed)
			return
		}
		// Re-check after processing: a cancel accepted during thread expansion
		// must win even when this was the final page.
		if p.cancelled(ctx, job.ID) {
			p.finalize(persistCtx, &job, pull.StatusCancelled)
			return
		}

		var oldest time.Time
		if len(kept) > 0 {
			oldest = kept[0].Time()
		}
		job.Cursor = page.NextCursor
		job.Progress = est.PageDone(oldest)
		job.UpdatedAt = p.clock.Now()
		p.checkpoint(persistCtx, job)
		p.emit(progress.Event{
			PullID:    job.ID,
			ChannelID: job.ChannelID,
			TS:        job.UpdatedAt,
			Stage:     progress.StagePageDone,
			Messages:  len(kept),
			Threads:   job.ThreadsExpanded - threadsBefore,
			Progress:  job.Progress,
			Dur:       time.Since(pageStart),
		})

		if !page.HasMore || page.NextCursor == "" || reachedStart {
			p.finalize(persistCtx, &job, pull.StatusCompleted)
			return
		}
		req.Cursor = page.NextCursor
	}
}

// processPage persists one page of history and expands its thread roots. A
// failed expansion is recorded and skipped; a failed store write aborts the
// pull. A cancellation during expansion returns cleanly so the caller's
// re-check finalizes as CANCELLED.
func (p *Puller) processPage(
	ctx context.Context,
	persistCtx context.Context,
	limiter *ratelimit.Limiter,
	job *pull.Job,
	msgs []pull.Message,
) error {
	if err := p.messages.UpsertMessages(persistCtx, job.ChannelID, msgs); err != nil {
		return fmt.Errorf("persist page: %w", err)
	}
	job.MessagesFetched += len(msgs)

	if !job.Config.IncludeThreads {
		return nil
	}
	for _, m := range msgs {
		if !m.IsThreadRoot() {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		replies, err := p.expandThread(ctx, limiter, job.ChannelID, m.TS)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			job.ThreadsFailed++
			p.logger.Warn("thread expansion skipped",
				zap.String("pull_id", job.ID),
				zap.String("thread_ts", m.TS),
				zap.Error(err),
			)
			p.emit(progress.Event{
				PullID:    job.ID,
				ChannelID: job.ChannelID,
				TS:        p.clock.Now(),
				Stage:     progress.StageThreadFail,
				Note:      err.Error(),
			})
			continue
		}
		if err := p.messages.UpsertMessages(persistCtx, job.ChannelID, replies); err != nil {
			return fmt.Errorf("persist thread %s replies: %w", m.TS, err)
		}
		job.ThreadsExpanded++
	}
	return nil
}

// expandThread fetches a thread's replies with the same retry/backoff budget
// as a page. Context errors pass through untouched so the caller can tell
// cancellation from a bad thread.
func (p *Puller) expandThread(
	ctx context.Context,
	limiter *ratelimit.Limiter,
	channelID, rootTS string,
) ([]pull.Message, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry(retryKind(lastErr))
			limiter.Pause(ctx, attempt-1, chat.RetryAfterHint(lastErr))
		}
		if err := limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		replies, err := p.threads.ExpandThread(ctx, channelID, rootTS)
		if err == nil {
			return replies, nil
		}
		lastErr = err
		if !chat.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

// checkpoint writes the in-flight record to the registry and the durable
// store. Store failures are logged, not fatal: the next checkpoint or the
// terminal write retries the same full record.
func (p *Puller) checkpoint(ctx context.Context, job pull.Job) {
	p.reg.Update(job)
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Warn("persist checkpoint failed",
			zap.String("pull_id", job.ID),
			zap.String("cursor", job.Cursor),
			zap.Error(err),
		)
	}
}

// finalize writes the terminal record exactly once, emits the terminal
// event, publishes the completion notification, and archives COMPLETED
// transcripts.
func (p *Puller) finalize(ctx context.Context, job *pull.Job, status pull.Status) {
	now := p.clock.Now()
	job.Status = status
	job.UpdatedAt = now
	job.CompletedAt = &now
	if status == pull.StatusCompleted {
		job.Progress = 100
		job.Cursor = ""
	}

	p.reg.Update(*job)
	if err := p.jobs.SaveJob(ctx, *job); err != nil {
		p.logger.Error("persist terminal status failed", zap.String("pull_id", job.ID), zap.Error(err))
	}

	var dur time.Duration
	if job.StartedAt != nil {
		dur = now.Sub(*job.StartedAt)
	}
	p.emit(progress.Event{
		PullID:    job.ID,
		ChannelID: job.ChannelID,
		TS:        now,
		Stage:     terminalStage(status),
		Messages:  job.MessagesFetched,
		Threads:   job.ThreadsExpanded,
		Progress:  job.Progress,
		Dur:       dur,
		Note:      job.Error,
	})

	p.publishCompletion(ctx, *job)
	if status == pull.StatusCompleted && p.arch != nil {
		if _, err := p.arch.ArchivePull(ctx, *job); err != nil {
			metrics.IncArchiveFailure()
			p.logger.Warn("transcript archive failed", zap.String("pull_id", job.ID), zap.Error(err))
		}
	}

	p.logger.Info("pull finished",
		zap.String("pull_id", job.ID),
		zap.String("channel_id", job.ChannelID),
		zap.String("status", string(status)),
		zap.Int("messages", job.MessagesFetched),
		zap.Int("threads_expanded", job.ThreadsExpanded),
		zap.Int("threads_failed", job.ThreadsFailed),
		zap.Duration("dur", dur),
	)
}

func (p *Puller) publishCompletion(ctx context.Context, job pull.Job) {
	if p.pub == nil {
		return
	}
	evt := publisher.CompletionEvent{
		PullID:          job.ID,
		ChannelID:       job.ChannelID,
		Status:          string(job.Status),
		MessagesFetched: job.MessagesFetched,
		ThreadsExpanded: job.ThreadsExpanded,
		CompletedAt:     *job.CompletedAt,
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := p.pub.Publish(pubCtx, p.cfg.Topic, evt); err != nil {
		metrics.IncPublishFailure()
		p.logger.Warn("completion publish failed", zap.String("pull_id", job.ID), zap.Error(err))
	}
}

func (p *Puller) cancelled(ctx context.Context, jobID string) bool {
	return ctx.Err() != nil || p.reg.Cancelled(jobID)
}

// windowFilter drops messages outside the inclusive [start, end] window and
// reports whether any message fell before start, which means pagination has
// walked past the window boundary and can stop. With no bounds set the page
// passes through untouched.
func windowFilter(msgs []pull.Message, start, end *time.Time) ([]pull.Message, bool) {
	if start == nil && end == nil {
		return msgs, false
	}
	kept := make([]pull.Message, 0, len(msgs))
	reachedStart := false
	for _, m := range msgs {
		t := m.Time()
		if t.IsZero() {
			continue
		}
		if start != nil && t.Before(*start) {
			reachedStart = true
			continue
		}
		if end != nil && t.After(*end) {
			continue
		}
		kept = append(kept, m)
	}
	return kept, reachedStart
}

func terminalStage(status pull.Status) progress.Stage {
	switch status {
	case pull.StatusCompleted:
		return progress.StagePullDone
	case pull.StatusCancelled:
		return progress.StagePullCancelled
	default:
		return progress.StagePullError
	}
}

func retryKind(err error) string {
	if chat.IsRateLimited(err) {
		return string(chat.KindRateLimited)
	}
	return string(chat.KindTransient)
}
