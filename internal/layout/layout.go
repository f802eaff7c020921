// Package layout computes a rendering-agnostic layered layout of a trace
// tree. Nodes are assigned to ranks by depth, ordered within each rank by an
// iterated median heuristic to limit edge crossings, and given center
// coordinates from caller-supplied dimensions. The caller translates the
// result into its own coordinate space.
package layout

import (
	"sort"

	"github.com/harryn0502/tracelens/internal/trace"
)

// Node is one positioned box. X and Y are center coordinates.
type Node struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Sequence int     `json:"sequence,omitempty"`
}

// Edge links a node to its nearest retained ancestor, normally its parent.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the positioned DAG handed to the rendering collaborator.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Options control node dimensions and spacing. SizeOf, when set, overrides
// the uniform dimensions per node.
type Options struct {
	NodeWidth     float64
	NodeHeight    float64
	HorizontalGap float64
	VerticalGap   float64
	SizeOf        func(n *trace.Node) (w, h float64)
}

func (o *Options) defaults() {
	if o.NodeWidth <= 0 {
		o.NodeWidth = 180
	}
	if o.NodeHeight <= 0 {
		o.NodeHeight = 48
	}
	if o.HorizontalGap <= 0 {
		o.HorizontalGap = 40
	}
	if o.VerticalGap <= 0 {
		o.VerticalGap = 64
	}
}

type box struct {
	node   *trace.Node
	rank   int
	pos    int // position within rank
	parent string
	w, h   float64
	x, y   float64
}

// Compute lays out the tree rooted at root. seq maps span id to its
// chronological sequence number and is carried through onto the output
// nodes so the replay controller can drive focus state. Spans without a
// start time are excluded; their children keep their depth-derived rank and
// are edge-attached to the nearest retained ancestor, so such an edge spans
// the gap rather than mirroring a direct parent→child relationship.
func Compute(root *trace.Node, seq map[string]int, opts Options) Graph {
	opts.defaults()

	var boxes []*box
	byID := make(map[string]*box)
	var collect func(n *trace.Node, depth int, parent string)
	collect = func(n *trace.Node, depth int, parent string) {
		included := n.Span.StartTime != nil
		if included {
			b := &box{node: n, rank: depth, parent: parent}
			b.w, b.h = opts.NodeWidth, opts.NodeHeight
			if opts.SizeOf != nil {
				b.w, b.h = opts.SizeOf(n)
			}
			boxes = append(boxes, b)
			byID[n.Span.ID] = b
			parent = n.Span.ID
		}
		for _, c := range n.Children {
			collect(c, depth+1, parent)
		}
	}
	collect(root, 0, "")
	if len(boxes) == 0 {
		return Graph{Nodes: []Node{}, Edges: []Edge{}}
	}

	ranks := buildRanks(boxes)
	orderRanks(ranks, byID)
	assignCoordinates(ranks, opts)

	g := Graph{Nodes: make([]Node, 0, len(boxes)), Edges: []Edge{}}
	for _, rank := range ranks {
		for _, b := range rank {
			g.Nodes = append(g.Nodes, Node{
				ID:       b.node.Span.ID,
				X:        b.x,
				Y:        b.y,
				Width:    b.w,
				Height:   b.h,
				Sequence: seq[b.node.Span.ID],
			})
		}
	}
	for _, b := range boxes {
		if b.parent == "" {
			continue
		}
		if _, ok := byID[b.parent]; !ok {
			continue
		}
		g.Edges = append(g.Edges, Edge{
			ID:     b.parent + "-" + b.node.Span.ID,
			Source: b.parent,
			Target: b.node.Span.ID,
		})
	}
	return g
}

func buildRanks(boxes []*box) [][]*box {
	maxRank := 0
	for _, b := range boxes {
		if b.rank > maxRank {
			maxRank = b.rank
		}
	}
	ranks := make([][]*box, maxRank+1)
	for _, b := range boxes {
		ranks[b.rank] = append(ranks[b.rank], b)
	}
	// Initial within-rank order: chronological, ids breaking ties. This is
	// already crossing-free for most traces; the median sweeps below handle
	// the rest.
	for _, rank := range ranks {
		sort.SliceStable(rank, func(i, j int) bool {
			a, b := rank[i].node.Span, rank[j].node.Span
			if a.StartTime.Equal(*b.StartTime) {
				return a.ID < b.ID
			}
			return a.StartTime.Before(*b.StartTime)
		})
		reindex(rank)
	}
	return ranks
}

// orderRanks runs a fixed number of alternating down/up median sweeps. Each
// sweep reorders one rank by the median position of each node's neighbors in
// the adjacent rank; nodes without neighbors keep their position.
func orderRanks(ranks [][]*box, byID map[string]*box) {
	const sweeps = 4
	for s := 0; s < sweeps; s++ {
		if s%2 == 0 {
			for r := 1; r < len(ranks); r++ {
				medianSort(ranks[r], func(b *box) []int {
					if p, ok := byID[b.parent]; ok {
						return []int{p.pos}
					}
					return nil
				})
			}
		} else {
			for r := len(ranks) - 2; r >= 0; r-- {
				medianSort(ranks[r], func(b *box) []int {
					var ps []int
					for _, c := range b.node.Children {
						if cb, ok := byID[c.Span.ID]; ok && cb.rank == b.rank+1 {
							ps = append(ps, cb.pos)
						}
					}
					return ps
				})
			}
		}
	}
}

func medianSort(rank []*box, neighbors func(*box) []int) {
	med := make(map[*box]float64, len(rank))
	for _, b := range rank {
		ps := neighbors(b)
		if len(ps) == 0 {
			med[b] = float64(b.pos)
			continue
		}
		sort.Ints(ps)
		if len(ps)%2 == 1 {
			med[b] = float64(ps[len(ps)/2])
		} else {
			med[b] = float64(ps[len(ps)/2-1]+ps[len(ps)/2]) / 2
		}
	}
	sort.SliceStable(rank, func(i, j int) bool { return med[rank[i]] < med[rank[j]] })
	reindex(rank)
}

func reindex(rank []*box) {
	for i, b := range rank {
		b.pos = i
	}
}

// assignCoordinates packs each rank left-to-right with the horizontal gap
// between boxes, centers every rank on the widest one, and stacks ranks
// vertically by their tallest member.
func assignCoordinates(ranks [][]*box, opts Options) {
	widest := 0.0
	widths := make([]float64, len(ranks))
	for r, rank := range ranks {
		var w float64
		for i, b := range rank {
			if i > 0 {
				w += opts.HorizontalGap
			}
			w += b.w
		}
		widths[r] = w
		if w > widest {
			widest = w
		}
	}

	y := 0.0
	for r, rank := range ranks {
		x := (widest - widths[r]) / 2
		tallest := 0.0
		for _, b := range rank {
			b.x = x + b.w/2
			x += b.w + opts.HorizontalGap
			if b.h > tallest {
				tallest = b.h
			}
		}
		for _, b := range rank {
			b.y = y + b.h/2
		}
		y += tallest + opts.VerticalGap
	}
}
