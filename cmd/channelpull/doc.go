// Package main hosts the channel pull service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and pull management endpoints. Submissions are
//     validated, normalized into pull.Config, registered in the in-process registry, and persisted via the
//     PullJobStore before their execution loop starts.
//   - Registry & loops: each accepted pull runs on its own goroutine under a context derived from the process
//     signal context. The registry enforces one active pull per overlapping channel window, bounds total active
//     pulls, carries the cancellation flags, and sweeps terminal entries after a retention TTL.
//   - Fetch pipeline: the loop pages backwards through channel history via the chat client, honoring a per-job
//     token bucket plus jittered exponential backoff with remote retry-after hints. Thread roots are expanded
//     inline when enabled; a thread that keeps failing is skipped and counted rather than failing the pull.
//   - Persistence & fanout: messages are upserted idempotently into the configured MessageStore (memory/Postgres),
//     job records track cursor and counters for crash recovery, completed pulls optionally archive a JSONL
//     transcript to the blob store (memory/local/GCS), and a compact completion event is published when a
//     Pub/Sub topic is configured. Progress events are buffered by the hub and fanned out to log and
//     Prometheus sinks.
//   - Configuration & plumbing: Viper populates config from env/files (CHANNELPULL_* overrides); zap provides
//     structured logging; Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: one goroutine per active pull, bounded by registry.max_active; the submission path
//     never blocks on remote I/O. Shutdown is coordinated via context cancellation propagated from main
//     through the registry to every loop, followed by a bounded drain.
//   - Rate limiting/backoff: per-job token bucket floored at pull.min_delay; 429 responses never lose the
//     cursor, so a retried page resumes exactly where it left off.
//   - Observability: zap logs carry pull and channel ids at key transitions; Prometheus counters/histograms
//     track API, remote call, retry, and wait activity; the progress hub batches lifecycle events for sinks.
//   - Recovery: on boot the service fails over any QUEUED/RUNNING rows left behind by a previous process, so
//     the API never reports a loop that no longer exists.
//
// Quick checklist:
//   - Configure env vars: CHANNELPULL_HTTP_ADDR, CHANNELPULL_CHAT_BASE_URL, CHANNELPULL_CHAT_TOKEN,
//     CHANNELPULL_STORAGE_DRIVER (+ CHANNELPULL_STORAGE_POSTGRES_DSN), archive and publisher drivers when
//     persistence beyond memory is required.
//   - Run locally: go run ./cmd/channelpull -config config.yaml (or rely solely on env overrides).
//   - The process reacts to SIGTERM with a graceful drain: HTTP first, then running pulls, then telemetry.
package main
