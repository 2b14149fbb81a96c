// Package pull defines core types shared across the channel pull subsystem.
package pull

import (
	"time"
)

// Status represents the lifecycle state of a pull job.
type Status string

// Job status values persisted in the job store.
const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal jobs never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is the progress record persisted for each submitted channel pull.
// Exactly one execution loop mutates a given job after submission; everyone
// else reads copies.
type Job struct {
	ID              string     `json:"pullId"`
	ChannelID       string     `json:"channelId"`
	ChannelName     string     `json:"channelName,omitempty"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	MessagesFetched int        `json:"messagesFetched"`
	ThreadsExpanded int        `json:"threadsExpanded"`
	ThreadsFailed   int        `json:"threadsFailed"`
	Cursor          string     `json:"cursor,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	Config          Config     `json:"-"`
}

// Cancellable reports whether a cancel request can still take effect.
func (j Job) Cancellable() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}
