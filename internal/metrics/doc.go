/*
Package metrics exports diskvfs activity to Prometheus.

# Overview

Collector implements types.OperationRecorder and types.StreamObserver, so a
FileSystem reports into it without knowing about Prometheus:

	collector, err := metrics.NewCollector(metrics.ConfigFromSettings(cfg.Metrics))
	if err != nil {
		return err
	}
	fsys, err := filesystem.NewFromConfig(cfg, filesystem.Options{
		Recorder: collector,
		Observer: collector,
	})

# Exported series

	<ns>_operations_total{operation,status}        counter
	<ns>_operation_duration_seconds{operation}     histogram
	<ns>_errors_total{operation,code}              counter, code is the diskvfs error code
	<ns>_stream_bytes_total{direction}             counter, read or write
	<ns>_stream_size_bytes{direction}              histogram, bytes per stream
	<ns>_component_available{component}            gauge, fed by the health tracker

Handler serves the registry; DebugHandler renders the per-operation counts kept
in memory, which ResetMetrics clears without touching the Prometheus series.

A disabled collector accepts every call and records nothing.
*/
package metrics
