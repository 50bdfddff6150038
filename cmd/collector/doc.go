// Command collector runs the standalone telemetry collector: OTLP ingest
// over gRPC (:4317) and HTTP (:4318), optional kafka consumption, and
// export to the configured backends. All settings come from environment
// variables; see internal/infrastructure/config.
package main
