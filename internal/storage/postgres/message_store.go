package postgres

import (
	"context"
	"fmt"

	"github.com/brightkite/channelpull/internal/pull"
)

// MessageStore persists fetched messages in the messages table.
//
// Schema:
//
//	CREATE TABLE messages (
//	    channel_id  TEXT NOT NULL,
//	    ts          TEXT NOT NULL,
//	    user_id     TEXT NOT NULL DEFAULT '',
//	    body        TEXT NOT NULL DEFAULT '',
//	    thread_ts   TEXT NOT NULL DEFAULT '',
//	    reply_count INT  NOT NULL DEFAULT 0,
//	    fetched_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (channel_id, ts)
//	);
type MessageStore struct {
	pool dbPool
}

// NewMessageStore constructs a MessageStore on an existing pool.
func NewMessageStore(pool dbPool) *MessageStore {
	return &MessageStore{pool: pool}
}

// UpsertMessages writes a batch of messages for one channel. The primary key
// on (channel_id, ts) makes a repeated pull rewrite rows instead of
// duplicating them.
func (s *MessageStore) UpsertMessages(ctx context.Context, channelID string, msgs []pull.Message) error {
	query := `
		INSERT INTO messages (channel_id, ts, user_id, body, thread_ts, reply_count, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (channel_id, ts) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			body = EXCLUDED.body,
			thread_ts = EXCLUDED.thread_ts,
			reply_count = EXCLUDED.reply_count,
			fetched_at = EXCLUDED.fetched_at;
	`
	for _, m := range msgs {
		if m.TS == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, query, channelID, m.TS, m.User, m.Text, m.ThreadTS, m.ReplyCount); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.TS, err)
		}
	}
	return nil
}

// CountByChannel returns how many distinct messages are stored for the channel.
func (s *MessageStore) CountByChannel(ctx context.Context, channelID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE channel_id = $1;`, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ListByChannel returns stored messages ordered by TS ascending, optionally
// bounded by an inclusive window of TS values. TS strings cast cleanly to
// numeric, which keeps ordering correct regardless of string length.
func (s *MessageStore) ListByChannel(ctx context.Context, channelID string, oldest, latest *string) ([]pull.Message, error) {
	query := `
		SELECT ts, user_id, body, thread_ts, reply_count
		FROM messages
		WHERE channel_id = $1
		  AND ($2::text IS NULL OR ts::numeric >= $2::numeric)
		  AND ($3::text IS NULL OR ts::numeric <= $3::numeric)
		ORDER BY ts::numeric ASC;
	`
	rows, err := s.pool.Query(ctx, query, channelID, oldest, latest)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []pull.Message
	for rows.Next() {
		var m pull.Message
		if err := rows.Scan(&m.TS, &m.User, &m.Text, &m.ThreadTS, &m.ReplyCount); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
