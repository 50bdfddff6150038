/*
Package demo is a small instrumented HTTP service exercising the telemetry
substrate end to end: server spans from the gin middleware, a client span
around an outbound call with header propagation, a linked background task,
and a handful of instruments feeding the export pipeline.
*/
package demo
