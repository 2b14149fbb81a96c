package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StagePullStart     Stage = "PULL_START"
	StagePageDone      Stage = "PAGE_DONE"
	StageThreadFail    Stage = "THREAD_FAIL"
	StagePullDone      Stage = "PULL_DONE"
	StagePullError     Stage = "PULL_ERROR"
	StagePullCancelled Stage = "PULL_CANCELLED"
)

// Terminal reports whether the stage ends a pull's event stream.
func (s Stage) Terminal() bool {
	switch s {
	case StagePullDone, StagePullError, StagePullCancelled:
		return true
	default:
		return false
	}
}

// Event captures a single milestone of pull progress.
type Event struct {
	// PullID identifies the pull job run.
	PullID string
	// ChannelID scopes the event to the channel being pulled.
	ChannelID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Messages carries the message-count delta for a page, or the final
	// total on a terminal stage.
	Messages int
	// Threads carries the threads-expanded delta, or the final total on a
	// terminal stage.
	Threads int
	// Progress is the percent estimate recorded with the event.
	Progress int
	// Dur captures execution latency for pages and completed pulls.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.PullID == "" {
		return errors.New("pull id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePullStart, StagePullDone, StagePullError, StagePullCancelled:
	case StagePageDone:
		if e.ChannelID == "" {
			return errors.New("page done requires channel id")
		}
	case StageThreadFail:
		if e.ChannelID == "" {
			return errors.New("thread fail requires channel id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Progress < 0 || e.Progress > 100 {
		return errors.New("progress must be within [0, 100]")
	}
	return nil
}
