package chat

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a remote API failure for retry decisions.
type Kind string

// Failure kinds. RateLimited and Transient are retryable with backoff on the
// same cursor; Fatal aborts the pull.
const (
	KindRateLimited Kind = "rate_limited"
	KindTransient   Kind = "transient"
	KindFatal       Kind = "fatal"
)

// APIError is a classified failure from the remote platform.
type APIError struct {
	Kind       Kind
	StatusCode int
	Code       string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("platform api %s", e.Kind)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate limit rejection.
func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

// IsTransient reports whether err is a retryable transient failure.
func IsTransient(err error) bool {
	return kindOf(err) == KindTransient
}

// IsFatal reports whether err is non-retryable.
func IsFatal(err error) bool {
	return kindOf(err) == KindFatal
}

// Retryable reports whether the same request may be retried after backoff.
func Retryable(err error) bool {
	k := kindOf(err)
	return k == KindRateLimited || k == KindTransient
}

// RetryAfterHint returns the remote's retry-after hint, or zero when the
// error carried none.
func RetryAfterHint(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func kindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Platform error strings that no amount of retrying will fix.
var fatalCodes = map[string]struct{}{
	"channel_not_found": {},
	"not_in_channel":    {},
	"invalid_auth":      {},
	"access_denied":     {},
	"invalid_cursor":    {},
	"invalid_arguments": {},
}

// Platform error strings worth retrying.
var transientCodes = map[string]struct{}{
	"internal_error":      {},
	"service_unavailable": {},
}

// classifyCode maps an "ok": false error string onto the failure taxonomy.
// Unknown codes are fatal: retrying an unrecognized rejection just burns the
// rate limit budget.
func classifyCode(code string) Kind {
	if code == "ratelimited" {
		return KindRateLimited
	}
	if _, ok := transientCodes[code]; ok {
		return KindTransient
	}
	if _, ok := fatalCodes[code]; ok {
		return KindFatal
	}
	return KindFatal
}
