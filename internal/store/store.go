package store

import (
	"context"
	"errors"

	"github.com/brightkite/channelpull/internal/pull"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PullJobStore persists the durable progress record of each pull job.
// SaveJob upserts the whole record; the execution loop is its only writer
// after submission.
type PullJobStore interface {
	// SaveJob inserts or fully replaces the record keyed by job.ID.
	SaveJob(ctx context.Context, job pull.Job) error
	// GetJob loads a single job or returns ErrNotFound.
	GetJob(ctx context.Context, jobID string) (pull.Job, error)
	// ListJobs returns jobs newest first with limit/offset paging.
	ListJobs(ctx context.Context, limit, offset int) ([]pull.Job, error)
	// FailRunning marks every QUEUED/RUNNING record FAILED with the given
	// reason and returns how many rows changed. Called once at startup:
	// execution loops do not survive a restart, so their rows must not keep
	// claiming to run.
	FailRunning(ctx context.Context, reason string) (int, error)
}

// MessageStore persists fetched messages idempotently, keyed by
// (channelID, message TS). Re-running a pull over the same window rewrites
// rows, never duplicates them.
type MessageStore interface {
	// UpsertMessages writes a batch of messages for one channel.
	UpsertMessages(ctx context.Context, channelID string, msgs []pull.Message) error
	// CountByChannel returns how many distinct messages are stored for the channel.
	CountByChannel(ctx context.Context, channelID string) (int, error)
	// ListByChannel returns stored messages for the channel ordered by TS
	// ascending, optionally bounded by an inclusive window.
	ListByChannel(ctx context.Context, channelID string, oldest, latest *string) ([]pull.Message, error)
}
