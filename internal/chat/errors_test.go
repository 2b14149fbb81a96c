package chat

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAPIErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "rate limited",
			err:  &APIError{Kind: KindRateLimited, StatusCode: 429},
			want: "platform api rate_limited (http 429)",
		},
		{
			name: "fatal with code",
			err:  &APIError{Kind: KindFatal, StatusCode: 200, Code: "channel_not_found"},
			want: "platform api fatal: channel_not_found (http 200)",
		},
		{
			name: "transient with cause",
			err:  &APIError{Kind: KindTransient, Code: "network_error", Err: errors.New("dial tcp: refused")},
			want: "platform api transient: network_error: dial tcp: refused",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestKindPredicatesSeeThroughWrapping(t *testing.T) {
	t.Parallel()

	rl := fmt.Errorf("fetch page: %w", &APIError{Kind: KindRateLimited, RetryAfter: 3 * time.Second})
	require.True(t, IsRateLimited(rl))
	require.True(t, Retryable(rl))
	require.False(t, IsFatal(rl))
	require.Equal(t, 3*time.Second, RetryAfterHint(rl))

	transient := fmt.Errorf("expand thread: %w", &APIError{Kind: KindTransient})
	require.True(t, IsTransient(transient))
	require.True(t, Retryable(transient))
	require.Zero(t, RetryAfterHint(transient))

	fatal := fmt.Errorf("fetch page: %w", &APIError{Kind: KindFatal, Code: "invalid_auth"})
	require.True(t, IsFatal(fatal))
	require.False(t, Retryable(fatal))

	// Non-API errors carry no kind and are never retried.
	plain := errors.New("bookkeeping bug")
	require.False(t, IsRateLimited(plain))
	require.False(t, IsTransient(plain))
	require.False(t, IsFatal(plain))
	require.False(t, Retryable(plain))
	require.Zero(t, RetryAfterHint(plain))
}

func TestAPIErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := &APIError{Kind: KindTransient, Code: "network_error", Err: cause}
	require.ErrorIs(t, err, cause)
}

func TestClassifyCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want Kind
	}{
		{"ratelimited", KindRateLimited},
		{"internal_error", KindTransient},
		{"service_unavailable", KindTransient},
		{"channel_not_found", KindFatal},
		{"not_in_channel", KindFatal},
		{"invalid_auth", KindFatal},
		{"access_denied", KindFatal},
		{"invalid_cursor", KindFatal},
		{"invalid_arguments", KindFatal},
		// Unknown rejections must not burn the retry budget.
		{"brand_new_error", KindFatal},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, classifyCode(tc.code), "code %s", tc.code)
	}
}
