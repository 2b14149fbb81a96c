// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that pull runners use to report ingestion telemetry. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus metrics or structured logging. The hub is
// observability only: the durable job record is written synchronously by the
// runner, so a dropped event never loses state.
package progress
