/*
Package collector assembles the standalone collector process: OTLP ingest
over gRPC and HTTP, optional kafka consumption, and the export pipeline
fanning received telemetry out to the configured backends. The collector's
own health comes from the self-metrics exposed on GET /metrics.
*/
package collector
