// Package main hosts the cardshot entrypoint.
//
// Architecture overview:
//   - Reconcile: metadata file names under metadata.dir are the expected set of items; the output store (local
//     directory, GCS bucket or memory) is the captured set. Surplus outputs are deleted, missing ones are queued.
//   - Capture pool: up to worker.pool_size Chrome instances are launched through chromedp and health-checked against
//     the card page server. Each worker owns one instance and pulls from a shared in-memory queue, preloading the next
//     page while the current screenshot is encoded with disintegration/imaging.
//   - Failure handling: a failed attempt is retried on the same instance, a stuck instance is replaced, and an item
//     that keeps failing is reported and skipped. Unreachable server, malformed identifiers and wrong capture sizes
//     stop the run.
//   - Plumbing: Viper loads config from file and CARDSHOT_* env vars; zap provides structured logging; progress events
//     are batched by the progress Hub to a log sink and, when metrics.listen_addr is set, to Prometheus collectors
//     served over chi. Completion notices go to Pub/Sub when pubsub.topic_name is set.
//
// Other commands:
//   - optimize: resizes and re-encodes the source art under image_sources using per-file settings from a YAML file.
//   - colorize: renders tinted copies of the cloak animation frames.
//
// Exit codes: 0 on success, 1 on a fatal error, 2 when the run finished but some items could not be captured.
package main
