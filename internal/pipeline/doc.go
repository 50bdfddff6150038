/*
Package pipeline moves finalized telemetry to backends: bounded buffering,
size- and time-triggered flushing, and concurrent fan-out to exporters with
bounded retry.

# Flow

	Enqueue -> buffer (drop-oldest on overflow) -> flush -> Batch -> exporters

Enqueue never blocks the producing request: when the buffer is full the
oldest record is evicted and counted. A flush happens when the buffer reaches
the batch size or when the flush interval elapses, whichever comes first. The
flushed batch is immutable; each exporter has a dedicated worker goroutine
and receives the batch independently, so one slow or failing backend never
blocks another's delivery.

# Retry

A retryable export error is retried with exponential backoff up to the
configured attempt budget, then the batch is dropped and counted. A fatal
error drops immediately. A repeatedly failing backend additionally trips a
circuit breaker so later batches fail fast during the outage.

# Metrics collection

When the pipeline is built with an instrument registry, a collection ticker
snapshots it on its own interval and feeds the points through the same
buffer; observable-gauge callbacks run on that tick, never on caller
goroutines.
*/
package pipeline
