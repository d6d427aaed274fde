package types

import "time"

// StreamKind distinguishes read streams from write streams in observer callbacks.
type StreamKind string

const (
	StreamRead  StreamKind = "read"
	StreamWrite StreamKind = "write"
)

// OperationRecorder receives the outcome of every caller-facing filesystem operation.
type OperationRecorder interface {
	RecordOperation(operation string, duration time.Duration, err error)
}

// StreamObserver is notified once per stream, when it is closed.
type StreamObserver interface {
	StreamClosed(kind StreamKind, bytes int64)
}

// HealthReporter tracks component health from operation outcomes.
type HealthReporter interface {
	RecordSuccess(component string)
	RecordError(component string, err error)
}
