package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brightkite/channelpull/internal/progress"
)

// PrometheusSink exports pull progress metrics via Prometheus. It owns all
// collectors for pulls started/finished/active plus per-channel message and
// page counters.
type PrometheusSink struct {
	pullsStarted  prometheus.Counter
	pullsFinished *prometheus.CounterVec
	pullsActive   prometheus.Gauge
	pullDuration  *prometheus.HistogramVec

	pagesFetched    *prometheus.CounterVec
	messagesFetched *prometheus.CounterVec
	threadFailures  *prometheus.CounterVec

	tracker *pullTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pullsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pull_jobs_started_total",
			Help: "Total pull jobs that have started running.",
		}),
		pullsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pull_jobs_finished_total",
			Help: "Total pull jobs finished partitioned by terminal status.",
		}, []string{"status"}),
		pullsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pull_jobs_active",
			Help: "Current number of running pull jobs.",
		}),
		pullDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pull_job_duration_seconds",
			Help:    "Wall time per finished pull job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pull_pages_fetched_total",
			Help: "History pages fetched and persisted per channel.",
		}, []string{"channel"}),
		messagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pull_messages_fetched_total",
			Help: "Messages fetched and persisted per channel.",
		}, []string{"channel"}),
		threadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pull_thread_failures_total",
			Help: "Thread expansions skipped after exhausting retries, per channel.",
		}, []string{"channel"}),
		tracker: newPullTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.pullsStarted,
		s.pullsFinished,
		s.pullsActive,
		s.pullDuration,
		s.pagesFetched,
		s.messagesFetched,
		s.threadFailures,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StagePullStart:
		s.pullsStarted.Inc()
		if s.tracker.start(evt.PullID) {
			s.pullsActive.Inc()
		}
	case progress.StagePageDone:
		s.pagesFetched.WithLabelValues(channelLabel(evt)).Inc()
		if evt.Messages > 0 {
			s.messagesFetched.WithLabelValues(channelLabel(evt)).Add(float64(evt.Messages))
		}
	case progress.StageThreadFail:
		s.threadFailures.WithLabelValues(channelLabel(evt)).Inc()
	case progress.StagePullDone, progress.StagePullError, progress.StagePullCancelled:
		s.handleTerminal(evt)
	}
}

func (s *PrometheusSink) handleTerminal(evt progress.Event) {
	label := terminalLabel(evt.Stage)
	s.pullsFinished.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.pullDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.PullID) {
		s.pullsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func channelLabel(evt progress.Event) string {
	if evt.ChannelID == "" {
		return "unknown"
	}
	return evt.ChannelID
}

func terminalLabel(stage progress.Stage) string {
	switch stage {
	case progress.StagePullDone:
		return "completed"
	case progress.StagePullError:
		return "failed"
	case progress.StagePullCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type pullTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newPullTracker() *pullTracker {
	return &pullTracker{running: make(map[string]struct{})}
}

func (t *pullTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *pullTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
