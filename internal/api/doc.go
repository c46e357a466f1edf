// Package api hosts the read-only operator routes mounted next to /metrics
// while a capture run is in flight. Notable routes:
//   - GET /progress for the current run's captured/total counts.
//   - GET /progress/aborted for the items given up on so far.
package api
