/*
Package receiver implements the collector's ingest surfaces: OTLP over gRPC,
OTLP over HTTP (protobuf and JSON bodies), and a kafka consumer for the
async transport. Every receiver decodes into the internal record shapes and
hands them to a Sink, which in practice is the export pipeline.
*/
package receiver
