package pull

import (
	"regexp"
	"time"
)

// Channel IDs follow the platform's shape: a type prefix (public, private, DM)
// followed by at least seven uppercase alphanumerics.
var channelIDPattern = regexp.MustCompile(`^[CGD][A-Z0-9]{7,}$`)

// Config is the immutable input to a pull job.
type Config struct {
	ChannelID            string        `json:"channelId"`
	ChannelName          string        `json:"channelName,omitempty"`
	StartDate            *time.Time    `json:"startDate,omitempty"`
	EndDate              *time.Time    `json:"endDate,omitempty"`
	IncludeThreads       bool          `json:"includeThreads"`
	BatchSize            int           `json:"batchSize"`
	DelayBetweenRequests time.Duration `json:"delayBetweenRequests"`
	UserID               string        `json:"userId,omitempty"`
}

// Limits bounds the tunable config fields; values come from service config.
type Limits struct {
	DefaultBatchSize int
	MaxBatchSize     int
	MinDelay         time.Duration
	DefaultDelay     time.Duration
}

// Normalize fills defaults and clamps bounded fields. Zero batch size and zero
// delay mean "use the default"; oversized batches are clamped, and the delay is
// floored so a client cannot undercut the remote rate limit.
func (c *Config) Normalize(l Limits) {
	if c.BatchSize == 0 {
		c.BatchSize = l.DefaultBatchSize
	}
	if c.BatchSize > l.MaxBatchSize {
		c.BatchSize = l.MaxBatchSize
	}
	if c.DelayBetweenRequests == 0 {
		c.DelayBetweenRequests = l.DefaultDelay
	}
	if c.DelayBetweenRequests < l.MinDelay {
		c.DelayBetweenRequests = l.MinDelay
	}
}

// Validate checks the submission invariants. It returns a *ValidationError so
// handlers can distinguish bad input from internal failures.
func (c Config) Validate() error {
	if c.ChannelID == "" {
		return &ValidationError{Field: "channelId", Reason: "must not be empty"}
	}
	if !channelIDPattern.MatchString(c.ChannelID) {
		return &ValidationError{Field: "channelId", Reason: "does not match the platform channel id shape"}
	}
	if c.BatchSize < 0 {
		return &ValidationError{Field: "batchSize", Reason: "must not be negative"}
	}
	if c.DelayBetweenRequests < 0 {
		return &ValidationError{Field: "delayBetweenRequests", Reason: "must not be negative"}
	}
	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		return &ValidationError{Field: "startDate", Reason: "must not be after endDate"}
	}
	return nil
}

// Overlaps reports whether two configs target intersecting time windows.
// A nil bound is open-ended, so a window with no dates overlaps everything.
func (c Config) Overlaps(other Config) bool {
	if c.StartDate != nil && other.EndDate != nil && c.StartDate.After(*other.EndDate) {
		return false
	}
	if other.StartDate != nil && c.EndDate != nil && other.StartDate.After(*c.EndDate) {
		return false
	}
	return true
}
