package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Init must be idempotent; a second registration would panic in promauto.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		remoteCallsTotal == nil || remoteCallDurationSeconds == nil ||
		rateLimitWaitSeconds == nil || retriesTotal == nil ||
		publishFailuresTotal == nil || archiveFailuresTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	Init()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PUT", "204"))

	ObserveHTTPRequest("PUT", "/v1/pulls/{pull_id}", 204, 15*time.Millisecond)

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PUT", "204")); got != before+1 {
		t.Errorf("httpRequestsTotal PUT/204 = %f; want %f", got, before+1)
	}
	if got := testutil.CollectAndCount(httpRequestDurationSeconds); got <= 0 {
		t.Errorf("httpRequestDurationSeconds has %d series; want > 0", got)
	}
}

func TestObserveRemoteCall(t *testing.T) {
	Init()
	beforeOK := testutil.ToFloat64(remoteCallsTotal.WithLabelValues("conversations.history", "ok"))
	beforeRL := testutil.ToFloat64(remoteCallsTotal.WithLabelValues("conversations.replies", "rate_limited"))

	ObserveRemoteCall("conversations.history", "ok", 120*time.Millisecond)
	ObserveRemoteCall("conversations.history", "ok", 80*time.Millisecond)
	ObserveRemoteCall("conversations.replies", "rate_limited", 10*time.Millisecond)

	if got := testutil.ToFloat64(remoteCallsTotal.WithLabelValues("conversations.history", "ok")); got != beforeOK+2 {
		t.Errorf("remoteCallsTotal history/ok = %f; want %f", got, beforeOK+2)
	}
	if got := testutil.ToFloat64(remoteCallsTotal.WithLabelValues("conversations.replies", "rate_limited")); got != beforeRL+1 {
		t.Errorf("remoteCallsTotal replies/rate_limited = %f; want %f", got, beforeRL+1)
	}
	if got := testutil.CollectAndCount(remoteCallDurationSeconds); got <= 0 {
		t.Errorf("remoteCallDurationSeconds has %d series; want > 0", got)
	}
}

func TestCounters(t *testing.T) {
	Init()
	beforePublish := testutil.ToFloat64(publishFailuresTotal)
	beforeArchive := testutil.ToFloat64(archiveFailuresTotal)
	beforeRetry := testutil.ToFloat64(retriesTotal.WithLabelValues("transient"))

	IncPublishFailure()
	IncArchiveFailure()
	ObserveRetry("transient")
	ObserveRateLimitWait("C0123ABCD", 250*time.Millisecond)

	if got := testutil.ToFloat64(publishFailuresTotal); got != beforePublish+1 {
		t.Errorf("publishFailuresTotal = %f; want %f", got, beforePublish+1)
	}
	if got := testutil.ToFloat64(archiveFailuresTotal); got != beforeArchive+1 {
		t.Errorf("archiveFailuresTotal = %f; want %f", got, beforeArchive+1)
	}
	if got := testutil.ToFloat64(retriesTotal.WithLabelValues("transient")); got != beforeRetry+1 {
		t.Errorf("retriesTotal transient = %f; want %f", got, beforeRetry+1)
	}
	if got := testutil.CollectAndCount(rateLimitWaitSeconds); got <= 0 {
		t.Errorf("rateLimitWaitSeconds has %d series; want > 0", got)
	}
}
