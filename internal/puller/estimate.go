package puller

import (
	"time"

	"github.com/brightkite/channelpull/internal/pull"
)

// EstimateParams feed the submission-time completion heuristic. Values come
// from service config, not from the remote.
type EstimateParams struct {
	// Messages is the assumed message count for a channel pull.
	Messages int
	// PerMessageCost is the assumed processing cost per message.
	PerMessageCost time.Duration
}

// threadFactor inflates the estimate when thread expansion is enabled.
const threadFactor = 1.5

// EstimateDuration predicts how long a pull will take: assumed messages times
// per-message cost, plus one inter-request delay per page. The result is a
// deterministic function of config, good enough for the submission response
// and nothing else.
func EstimateDuration(cfg pull.Config, params EstimateParams) time.Duration {
	messages := params.Messages
	if messages <= 0 {
		messages = 1000
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	pages := (messages + batch - 1) / batch

	total := time.Duration(messages)*params.PerMessageCost +
		time.Duration(pages)*cfg.DelayBetweenRequests
	if cfg.IncludeThreads {
		total = time.Duration(float64(total) * threadFactor)
	}
	return total
}

// progressEstimator turns per-page observations into the job's percent
// estimate. The value it reports never decreases and never reaches 100; the
// COMPLETED transition alone writes 100.
//
// With a full date window the estimate is the fraction of the window already
// covered: pagination runs newest to oldest, so each page's oldest message
// moves the covered span toward the start bound. Without a full window there
// is nothing to measure against, so the estimate is pages/(pages+1), capped
// at 95 to avoid signaling false completion.
type progressEstimator struct {
	start *time.Time
	end   *time.Time
	pages int
	last  int
}

func newProgressEstimator(cfg pull.Config) *progressEstimator {
	return &progressEstimator{start: cfg.StartDate, end: cfg.EndDate}
}

// windowed reports whether both bounds are known.
func (e *progressEstimator) windowed() bool {
	return e.start != nil && e.end != nil && e.end.After(*e.start)
}

// openEndedCap bounds the pages-only estimate below 100.
const openEndedCap = 95

// PageDone records one fetched page and returns the updated percent estimate.
// oldest is the oldest message timestamp seen so far; the zero time means the
// page carried no usable timestamps and only the page count advances.
func (e *progressEstimator) PageDone(oldest time.Time) int {
	e.pages++

	var pct int
	if e.windowed() && !oldest.IsZero() {
		span := e.end.Sub(*e.start)
		covered := e.end.Sub(oldest)
		if covered < 0 {
			covered = 0
		}
		if covered > span {
			covered = span
		}
		// Durations are int64 nanoseconds; multiplying by 100 first would
		// overflow on windows past a few years.
		pct = int(float64(covered) / float64(span) * 100)
		if pct > 99 {
			pct = 99
		}
	} else {
		pct = 100 * e.pages / (e.pages + 1)
		if pct > openEndedCap {
			pct = openEndedCap
		}
	}

	if pct < e.last {
		return e.last
	}
	e.last = pct
	return pct
}
