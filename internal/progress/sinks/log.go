package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/progress"
)

// LogSink emits structured logs for debugging pull progress streams. It is
// useful during development or audits where metrics alone are too coarse.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("pull_id", evt.PullID),
			zap.String("channel_id", evt.ChannelID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("messages", evt.Messages),
			zap.Int("threads", evt.Threads),
			zap.Int("progress", evt.Progress),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("pull progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
