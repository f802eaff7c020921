package trace

import "github.com/harryn0502/tracelens/internal/model"

// TraceResult bundles everything the pipeline derives for one trace: the
// reconstructed tree, the chronological sequence, the canonical step
// records, and the roll-up.
type TraceResult struct {
	TraceID   string
	Root      *Node
	Sequence  []Step
	Steps     []model.StepRecord
	Aggregate model.TraceAggregate
}

// Result is the full pipeline output for one span collection, one
// TraceResult per reconstructed root, plus every diagnostic emitted along
// the way. Trace ids are distinct across results: a root the builder
// promoted (dangling parent, broken cycle) heads its own trace keyed by its
// span id, never the producer trace id it shares with the genuine root.
// An empty span collection yields an empty (non-nil) Result.
type Result struct {
	Traces      []TraceResult
	Diagnostics []model.Diagnostic
}

// Process runs the whole pipeline: forest reconstruction, per-trace
// sequencing, normalization, and aggregation. It is a pure, synchronous
// transform over its input; running it twice on the same spans yields
// identical output, so results may be cached keyed by trace identity.
func Process(spans []*model.Span, opts BuildOptions) *Result {
	forest := Build(spans, opts)
	res := &Result{Diagnostics: forest.Diagnostics}

	taken := make(map[string]bool, len(forest.Roots))
	for _, root := range forest.Roots {
		tr := TraceResult{TraceID: traceIdentity(root, taken), Root: root}
		tr.Sequence = Sequence(root)

		for _, st := range tr.Sequence {
			rec, diags := Normalize(st.Node.Span, tr.TraceID, st.Index, st.PrevID)
			res.Diagnostics = append(res.Diagnostics, diags...)
			if rec != nil {
				tr.Steps = append(tr.Steps, *rec)
			}
		}
		// Spans excluded from sequencing (no start time) stay in the record
		// stream, flagged, after the ordered steps.
		root.Walk(func(n *Node) {
			if n.Span.StartTime != nil {
				return
			}
			rec, diags := Normalize(n.Span, tr.TraceID, 0, nil)
			res.Diagnostics = append(res.Diagnostics, diags...)
			if rec != nil {
				tr.Steps = append(tr.Steps, *rec)
			}
		})

		tr.Aggregate = Aggregate(root)
		tr.Aggregate.TraceID = tr.TraceID
		res.Traces = append(res.Traces, tr)
	}
	return res
}

// traceIdentity keys one root's result. A genuine root keeps the
// producer-supplied trace id; a root the builder promoted still carries its
// dangling parent pointer, and heads its own trace under its span id so it
// never collides with the genuine root of the same producer trace.
func traceIdentity(root *Node, taken map[string]bool) string {
	id := root.TraceID()
	if pid := root.Span.ParentID; pid != nil && *pid != "" && *pid != root.Span.ID {
		id = root.Span.ID
	}
	if taken[id] {
		id = root.Span.ID
	}
	taken[id] = true
	return id
}
