/*
Package export provides the pipeline's backend exporters.

Four backends are supported:

  - Stdout: structured log lines for local development and smoke tests
  - OTLPGRPC: OTLP over gRPC to an upstream collector
  - OTLPHTTP: OTLP over HTTP/protobuf to an upstream collector
  - Kafka: proto-encoded export requests on a topic, for async fan-in

Every exporter classifies its failures with pipeline.Retryable and
pipeline.Fatal so the pipeline's retry loop can tell a transient outage from
a request that will never be accepted.
*/
package export
