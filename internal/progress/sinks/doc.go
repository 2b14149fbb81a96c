// Package sinks implements concrete progress consumers: Prometheus collectors
// for pull-level metrics and structured logging for audits. Each sink
// satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
