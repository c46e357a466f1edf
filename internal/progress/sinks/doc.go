// Package sinks contains progress.Sink implementations for structured logs
// and Prometheus collectors.
package sinks
