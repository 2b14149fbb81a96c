// Package archive exports completed pull transcripts as JSONL objects for the
// downstream FAQ-extraction and search-indexing pipelines. The archive is
// best-effort: a failed write logs a warning and leaves the pull COMPLETED.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/store"
)

const transcriptContentType = "application/x-ndjson"

// Store writes raw transcript objects and returns a URI.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ObjectPath returns where a pull's transcript lives inside the store.
func ObjectPath(channelID, pullID string) string {
	return fmt.Sprintf("pulls/%s/%s.jsonl", channelID, pullID)
}

// Archiver reads a completed pull's messages back from the message store and
// writes them as one JSONL object, one message per line, oldest first.
type Archiver struct {
	blobs    Store
	messages store.MessageStore
	logger   *zap.Logger
}

// NewArchiver wires the blob store and message store together.
func NewArchiver(blobs Store, messages store.MessageStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{blobs: blobs, messages: messages, logger: logger}
}

// ArchivePull writes the transcript for one pull and returns the object URI.
// The window bounds come from the pull's config so a windowed pull archives
// only the rows it ingested, not the channel's whole history.
func (a *Archiver) ArchivePull(ctx context.Context, job pull.Job) (string, error) {
	if a == nil || a.blobs == nil {
		return "", fmt.Errorf("archive store is not configured")
	}

	var oldest, latest *string
	if job.Config.StartDate != nil {
		ts := pull.FormatTS(*job.Config.StartDate)
		oldest = &ts
	}
	if job.Config.EndDate != nil {
		ts := pull.FormatTS(*job.Config.EndDate)
		latest = &ts
	}

	msgs, err := a.messages.ListByChannel(ctx, job.ChannelID, oldest, latest)
	if err != nil {
		return "", fmt.Errorf("load transcript messages: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return "", fmt.Errorf("encode transcript line: %w", err)
		}
	}

	path := ObjectPath(job.ChannelID, job.ID)
	uri, err := a.blobs.PutObject(ctx, path, transcriptContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("write transcript object: %w", err)
	}

	a.logger.Info("pull transcript archived",
		zap.String("pull_id", job.ID),
		zap.String("channel_id", job.ChannelID),
		zap.String("uri", uri),
		zap.Int("messages", len(msgs)),
	)
	return uri, nil
}
