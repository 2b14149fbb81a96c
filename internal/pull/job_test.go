package pull

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[Status]bool{
		StatusQueued:    false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range terminal {
		require.Equal(t, want, status.Terminal(), "status %s", status)
	}
	require.False(t, Status("BOGUS").Terminal())
}

func TestJobCancellable(t *testing.T) {
	t.Parallel()

	// A cancel can only land before the loop finalizes.
	require.True(t, Job{Status: StatusQueued}.Cancellable())
	require.True(t, Job{Status: StatusRunning}.Cancellable())
	require.False(t, Job{Status: StatusCompleted}.Cancellable())
	require.False(t, Job{Status: StatusFailed}.Cancellable())
	require.False(t, Job{Status: StatusCancelled}.Cancellable())
}
