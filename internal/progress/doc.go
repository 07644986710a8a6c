// Package progress carries crawl milestones from the orchestrator to
// observers. Events are batched on a background goroutine and fanned out to
// sinks (structured logs, Prometheus) so reporting never slows the crawl.
package progress
