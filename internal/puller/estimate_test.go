package puller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brightkite/channelpull/internal/pull"
)

func TestEstimateDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    pull.Config
		params EstimateParams
		want   time.Duration
	}{
		{
			name:   "defaults",
			cfg:    pull.Config{},
			params: EstimateParams{PerMessageCost: time.Millisecond},
			want:   time.Second, // 1000 assumed messages, no delay
		},
		{
			name: "explicit config",
			cfg: pull.Config{
				BatchSize:            100,
				DelayBetweenRequests: 10 * time.Millisecond,
			},
			params: EstimateParams{Messages: 500, PerMessageCost: 2 * time.Millisecond},
			want:   1050 * time.Millisecond, // 500*2ms + 5 pages * 10ms
		},
		{
			name: "threads inflate by half",
			cfg: pull.Config{
				BatchSize:            100,
				DelayBetweenRequests: 10 * time.Millisecond,
				IncludeThreads:       true,
			},
			params: EstimateParams{Messages: 500, PerMessageCost: 2 * time.Millisecond},
			want:   1575 * time.Millisecond,
		},
		{
			name: "partial page rounds up",
			cfg: pull.Config{
				BatchSize:            100,
				DelayBetweenRequests: 100 * time.Millisecond,
			},
			params: EstimateParams{Messages: 250},
			want:   300 * time.Millisecond, // 3 pages of delay, zero per-message cost
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, EstimateDuration(tc.cfg, tc.params))
		})
	}
}

func TestProgressEstimatorWindowed(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)
	est := newProgressEstimator(pull.Config{StartDate: &start, EndDate: &end})

	// Pagination walks newest to oldest, so each page's oldest message grows
	// the covered share of the window.
	require.Equal(t, 20, est.PageDone(start.Add(8*time.Hour)))
	require.Equal(t, 60, est.PageDone(start.Add(4*time.Hour)))

	// Coverage past the start bound clamps below 100; only COMPLETED says 100.
	require.Equal(t, 99, est.PageDone(start.Add(-time.Hour)))

	// A page that would move the estimate backwards keeps the last value.
	require.Equal(t, 99, est.PageDone(start.Add(9*time.Hour)))
}

func TestProgressEstimatorMultiYearWindow(t *testing.T) {
	t.Parallel()

	// A decade-wide window: the covered share must keep advancing even when
	// the span runs to hundreds of trillions of nanoseconds.
	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	span := end.Sub(start)
	est := newProgressEstimator(pull.Config{StartDate: &start, EndDate: &end})

	require.Equal(t, 25, est.PageDone(end.Add(-span/4)))
	require.Equal(t, 50, est.PageDone(end.Add(-span/2)))
	require.Equal(t, 99, est.PageDone(start.Add(time.Hour)))
}

func TestProgressEstimatorWindowedZeroOldest(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)
	est := newProgressEstimator(pull.Config{StartDate: &start, EndDate: &end})

	// No usable timestamps on the page: only the page count advances.
	require.Equal(t, 50, est.PageDone(time.Time{}))
	require.Equal(t, 66, est.PageDone(time.Time{}))
}

func TestProgressEstimatorOpenEnded(t *testing.T) {
	t.Parallel()

	est := newProgressEstimator(pull.Config{})
	oldest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, 50, est.PageDone(oldest))
	require.Equal(t, 66, est.PageDone(oldest))
	require.Equal(t, 75, est.PageDone(oldest))
	require.Equal(t, 80, est.PageDone(oldest))

	// The pages-only estimate saturates below 100.
	for i := 0; i < 40; i++ {
		last := est.PageDone(oldest)
		require.LessOrEqual(t, last, 95)
	}
	require.Equal(t, 95, est.PageDone(oldest))
}

func TestProgressEstimatorEqualBoundsFallsBack(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	est := newProgressEstimator(pull.Config{StartDate: &ts, EndDate: &ts})

	// A zero-width window cannot anchor a fraction; the page count drives it.
	require.Equal(t, 50, est.PageDone(ts))
}
