package trace

import "sort"

// Step is one position in a trace's total chronological order.
type Step struct {
	Node   *Node
	Index  int     // 1-based, dense
	PrevID *string // nil only for the first step
}

// Sequence assigns a total chronological order to every node of the tree
// rooted at root. All nodes are collected first, then sorted by start time
// with span id as a deterministic tie-break, so two runs over the same tree
// always agree. Nodes without a start time are excluded; they never receive
// a sequence position.
func Sequence(root *Node) []Step {
	var nodes []*Node
	root.Walk(func(n *Node) {
		if n.Span.StartTime != nil {
			nodes = append(nodes, n)
		}
	})
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Span, nodes[j].Span
		if a.StartTime.Equal(*b.StartTime) {
			return a.ID < b.ID
		}
		return a.StartTime.Before(*b.StartTime)
	})

	steps := make([]Step, len(nodes))
	for i, n := range nodes {
		steps[i] = Step{Node: n, Index: i + 1}
		if i > 0 {
			steps[i].PrevID = &nodes[i-1].Span.ID
		}
	}
	return steps
}
