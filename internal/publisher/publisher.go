// Package publisher defines the completion event contract for downstream
// consumers. When a pull reaches a terminal status the runner publishes one
// event so the FAQ-extraction and search-indexing pipelines know fresh
// transcript data is available. Publishing is best-effort: a failed publish
// is logged and counted, never fatal to the job.
package publisher

import (
	"context"
	"time"
)

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CompletionEvent is the JSON payload published on every terminal transition.
type CompletionEvent struct {
	PullID          string    `json:"pullId"`
	ChannelID       string    `json:"channelId"`
	Status          string    `json:"status"`
	MessagesFetched int       `json:"messagesFetched"`
	ThreadsExpanded int       `json:"threadsExpanded"`
	CompletedAt     time.Time `json:"completedAt"`
}
