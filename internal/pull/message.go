package pull

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is one message as fetched from the remote platform. TS doubles as
// the message's unique id within its channel.
type Message struct {
	TS         string `json:"ts"`
	User       string `json:"user,omitempty"`
	Text       string `json:"text,omitempty"`
	ThreadTS   string `json:"thread_ts,omitempty"`
	ReplyCount int    `json:"reply_count,omitempty"`
}

// IsThreadRoot reports whether the message anchors a thread that can be
// expanded. Replies carry the root's ThreadTS and are never roots themselves.
func (m Message) IsThreadRoot() bool {
	if m.ReplyCount <= 0 {
		return false
	}
	return m.ThreadTS == "" || m.ThreadTS == m.TS
}

// Time converts the message timestamp to wall time. Malformed timestamps
// yield the zero time.
func (m Message) Time() time.Time {
	t, err := ParseTS(m.TS)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Channel is one channel visible to the service on the remote platform.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsMember   bool   `json:"isMember"`
	IsArchived bool   `json:"isArchived,omitempty"`
}

// PageRequest asks for one page of channel history.
type PageRequest struct {
	ChannelID string
	Cursor    string
	Limit     int
	Oldest    *time.Time
	Latest    *time.Time
}

// Page is one page of history, oldest message first. NextCursor is only
// meaningful when HasMore is true.
type Page struct {
	Messages   []Message
	NextCursor string
	HasMore    bool
}

// ParseTS parses a platform timestamp of the form "1704067200.000100"
// (epoch seconds, dot, microseconds).
func ParseTS(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	var micros int64
	if frac != "" {
		micros, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(secs, micros*int64(time.Microsecond)).UTC(), nil
}

// FormatTS renders wall time as a platform timestamp.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
