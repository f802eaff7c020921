package trace

import (
	"fmt"
	"sort"

	"github.com/harryn0502/tracelens/internal/model"
)

// DuplicatePolicy decides which span survives when two share an id.
type DuplicatePolicy int

const (
	// DuplicateFirstWins keeps the first-seen span (default).
	DuplicateFirstWins DuplicatePolicy = iota
	// DuplicateLastWins keeps the last-seen span.
	DuplicateLastWins
	// DuplicateReject drops every span after the first occurrence is
	// flagged, then drops the first as well.
	DuplicateReject
)

// Node wraps a span with its resolved children. Ownership is exclusive: a
// node appears under exactly one parent, and the structure is acyclic by
// construction.
type Node struct {
	Span     *model.Span
	Children []*Node
}

// Forest is the result of reconstructing the parent/child hierarchy from an
// unordered span collection. Nodes is an id-indexed arena covering exactly
// the retained spans; Roots are the spans whose parent is null, missing, or
// was dropped to break a cycle.
type Forest struct {
	Roots       []*Node
	Nodes       map[string]*Node
	Diagnostics []model.Diagnostic
}

// BuildOptions tunes forest reconstruction.
type BuildOptions struct {
	Duplicates DuplicatePolicy
}

// Build reconstructs a forest from a flat, unordered span collection.
//
// First pass indexes spans by id, applying the duplicate policy. Second pass
// resolves parent pointers: a null parent, an unknown parent, or a parent
// whose ancestor chain already contains the node makes the node a root and
// emits a diagnostic. Children end up sorted by start time ascending with id
// as the tie-break, recursively.
func Build(spans []*model.Span, opts BuildOptions) *Forest {
	f := &Forest{Nodes: make(map[string]*Node, len(spans))}

	// Index pass. order keeps first-seen insertion order so everything
	// downstream is deterministic regardless of input permutation.
	var order []string
	rejected := make(map[string]bool)
	for _, s := range spans {
		if s == nil || s.ID == "" {
			continue
		}
		prev, seen := f.Nodes[s.ID]
		if !seen {
			f.Nodes[s.ID] = &Node{Span: s}
			order = append(order, s.ID)
			continue
		}
		f.diag(model.DiagDuplicateID, s.ID, "span id seen more than once")
		switch opts.Duplicates {
		case DuplicateLastWins:
			prev.Span = s
		case DuplicateReject:
			rejected[s.ID] = true
		}
	}
	if len(rejected) > 0 {
		kept := order[:0]
		for _, id := range order {
			if rejected[id] {
				delete(f.Nodes, id)
				continue
			}
			kept = append(kept, id)
		}
		order = kept
	}

	// Attachment pass. Cycle detection walks the raw parent pointers of the
	// candidate ancestor chain; a hop count bound guards against pointer
	// loops entirely outside the index.
	for _, id := range order {
		n := f.Nodes[id]
		pid := n.Span.ParentID
		switch {
		case pid == nil || *pid == "" || *pid == id:
			f.Roots = append(f.Roots, n)
			if pid != nil && *pid == id {
				f.diag(model.DiagCycleDetected, id, "span is its own parent")
			}
		default:
			parent, ok := f.Nodes[*pid]
			if !ok {
				f.Roots = append(f.Roots, n)
				f.diag(model.DiagUnresolvedParent, id, fmt.Sprintf("parent %q not in span set", *pid))
				continue
			}
			if f.createsCycle(id, *pid) {
				f.Roots = append(f.Roots, n)
				f.diag(model.DiagCycleDetected, id, fmt.Sprintf("attaching to %q would close a cycle", *pid))
				continue
			}
			parent.Children = append(parent.Children, n)
		}
	}

	for _, root := range f.Roots {
		sortChildren(root)
	}
	sortNodes(f.Roots)
	return f
}

// createsCycle reports whether attaching child under parentID would make the
// child its own ancestor. It follows raw parent ids through the index, so
// the decision is a pure function of the input spans.
func (f *Forest) createsCycle(childID, parentID string) bool {
	cur := parentID
	for hops := 0; hops <= len(f.Nodes); hops++ {
		if cur == childID {
			return true
		}
		n, ok := f.Nodes[cur]
		if !ok || n.Span.ParentID == nil {
			return false
		}
		cur = *n.Span.ParentID
	}
	// Pointer loop above the candidate that never reaches the child.
	return false
}

func (f *Forest) diag(kind model.DiagnosticKind, spanID, detail string) {
	f.Diagnostics = append(f.Diagnostics, model.Diagnostic{Kind: kind, SpanID: spanID, Detail: detail})
}

func sortChildren(n *Node) {
	sortNodes(n.Children)
	for _, c := range n.Children {
		sortChildren(c)
	}
}

// sortNodes orders by start time ascending, ids breaking ties; nodes with no
// start time sink to the end.
func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Span, nodes[j].Span
		switch {
		case a.StartTime == nil && b.StartTime == nil:
			return a.ID < b.ID
		case a.StartTime == nil:
			return false
		case b.StartTime == nil:
			return true
		case a.StartTime.Equal(*b.StartTime):
			return a.ID < b.ID
		}
		return a.StartTime.Before(*b.StartTime)
	})
}

// Walk visits n and every descendant in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// TraceID returns the trace identity for a root node: the span's own trace
// id when the producer supplied one, otherwise the root span id.
func (n *Node) TraceID() string {
	if n.Span.TraceID != nil && *n.Span.TraceID != "" {
		return *n.Span.TraceID
	}
	return n.Span.ID
}
