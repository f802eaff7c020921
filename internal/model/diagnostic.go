package model

// DiagnosticKind classifies the recoverable defects the pipeline tolerates.
type DiagnosticKind string

const (
	DiagMalformedSpan    DiagnosticKind = "malformed_span"
	DiagUnresolvedParent DiagnosticKind = "unresolved_parent"
	DiagCycleDetected    DiagnosticKind = "cycle_detected"
	DiagDuplicateID      DiagnosticKind = "duplicate_id"
	DiagUnknownRunKind   DiagnosticKind = "unknown_run_kind"
)

// Diagnostic records one defect observed while processing a span set. None
// of these abort the pipeline; they travel alongside the primary result.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	SpanID string         `json:"span_id"`
	Detail string         `json:"detail,omitempty"`
}
