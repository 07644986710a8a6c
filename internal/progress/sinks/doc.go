// Package sinks holds the progress.Sink implementations: structured logs and
// Prometheus collectors.
package sinks
