package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brightkite/channelpull/internal/pull"
)

// MessageStore keeps fetched messages in nested maps keyed by channel and TS.
type MessageStore struct {
	mu       sync.RWMutex
	channels map[string]map[string]pull.Message
}

// NewMessageStore constructs a MessageStore.
func NewMessageStore() *MessageStore {
	return &MessageStore{channels: make(map[string]map[string]pull.Message)}
}

// UpsertMessages writes a batch of messages for one channel. Re-upserting the
// same TS replaces the stored copy.
func (s *MessageStore) UpsertMessages(_ context.Context, channelID string, msgs []pull.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTS, ok := s.channels[channelID]
	if !ok {
		byTS = make(map[string]pull.Message, len(msgs))
		s.channels[channelID] = byTS
	}
	for _, m := range msgs {
		if m.TS == "" {
			continue
		}
		byTS[m.TS] = m
	}
	return nil
}

// CountByChannel returns how many distinct messages are stored for the channel.
func (s *MessageStore) CountByChannel(_ context.Context, channelID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channelID]), nil
}

// ListByChannel returns stored messages ordered by TS ascending, optionally
// bounded by an inclusive window of TS values.
func (s *MessageStore) ListByChannel(_ context.Context, channelID string, oldest, latest *string) ([]pull.Message, error) {
	s.mu.RLock()
	byTS := s.channels[channelID]
	out := make([]pull.Message, 0, len(byTS))
	for _, m := range byTS {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})

	filtered := out[:0]
	for _, m := range out {
		if oldest != nil && m.Time().Before(tsTime(*oldest)) {
			continue
		}
		if latest != nil && m.Time().After(tsTime(*latest)) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

func tsTime(ts string) time.Time {
	parsed, err := pull.ParseTS(ts)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
