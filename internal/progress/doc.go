// Package progress carries capture-run milestones from workers to sinks.
// Workers emit Events into a non-blocking Hub, which batches them on a
// background goroutine and fans them out to sinks such as structured logs or
// Prometheus collectors. Counter tracks the operator-facing "Captured n/total"
// line separately so that it never waits on a batch.
package progress
