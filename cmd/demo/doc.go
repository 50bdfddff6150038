// Command demo runs a small instrumented HTTP service on :8080. Spans and
// metrics flow through an in-process pipeline to stdout and, when
// DEMO_COLLECTOR_URL is set, to a collector over OTLP/HTTP.
package main
