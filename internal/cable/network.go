package cable

import (
	"fmt"
	"math/cmplx"
	"sort"

	"dendroreduce/internal/morphology"
)

// edge is a uniform piece of cable between two nodes. a sits at section
// coordinate x0 and b at x1 > x0.
type edge struct {
	sec    morphology.SectionID
	x0, x1 float64
	a, b   int
	length float64 // cm
	zc     complex128
	gamma  complex128
}

func (e *edge) other(n int) int {
	if n == e.a {
		return e.b
	}
	return e.a
}

// admittance returns the input admittance of the first l cm of the piece
// terminated by load y.
func (e *edge) admittance(l float64, y complex128) complex128 {
	yinf := 1 / e.zc
	t := cmplx.Tanh(e.gamma * complex(l, 0))
	return yinf * (y + yinf*t) / (yinf + y*t)
}

// network is the discretized subtree. Nodes are segment boundaries; a
// child section's first node is its parent's distal node.
type network struct {
	edges     []edge
	adj       [][]int
	bySection map[morphology.SectionID][]int
	source    int

	order  []int // nodes reachable from source, source first
	toward []int // edge leading toward the source, -1 at the source
	yAway  []complex128
	yAll   []complex128
	v      []complex128
}

func (n *network) addNode() int {
	n.adj = append(n.adj, nil)
	return len(n.adj) - 1
}

// buildNetwork discretizes the subtree rooted at root into pieces. Every
// segment of a section is a piece carrying that segment's leak
// conductance; the injection site splits a piece when it falls inside one.
func buildNetwork(m *morphology.Morphology, root morphology.SectionID, f float64) (*network, error) {
	sections, err := m.Subtree(root)
	if err != nil {
		return nil, err
	}

	n := &network{bySection: make(map[morphology.SectionID][]int), source: -1}
	distal := make(map[morphology.SectionID]int, len(sections))

	for _, sec := range sections {
		start, ok := distal[sec.Parent]
		if sec.ID == root || !ok {
			start = n.addNode()
		}

		segs := m.Segments(sec.ID)
		nseg := len(segs)
		prev := start
		for i, seg := range segs {
			x0 := float64(i) / float64(nseg)
			x1 := float64(i+1) / float64(nseg)
			zc, gamma, err := Piece(sec.Diam, sec.Ra, sec.Cm, leakOf(m, seg), f)
			if err != nil {
				return nil, fmt.Errorf("section %d segment %d: %w", sec.ID, i, err)
			}
			next := n.addNode()
			idx := len(n.edges)
			n.edges = append(n.edges, edge{
				sec:    sec.ID,
				x0:     x0,
				x1:     x1,
				a:      prev,
				b:      next,
				length: (x1 - x0) * sec.Length * 1e-4,
				zc:     zc,
				gamma:  gamma,
			})
			n.adj[prev] = append(n.adj[prev], idx)
			n.adj[next] = append(n.adj[next], idx)
			n.bySection[sec.ID] = append(n.bySection[sec.ID], idx)
			prev = next
		}
		distal[sec.ID] = prev
	}
	return n, nil
}

// split inserts a node at section coordinate x unless a node is already
// there, and returns it.
func (n *network) split(sec morphology.SectionID, x float64) (int, error) {
	edges, ok := n.bySection[sec]
	if !ok {
		return -1, fmt.Errorf("%w: section %d", ErrOutsideNetwork, sec)
	}
	const eps = 1e-12
	for pos, idx := range edges {
		e := n.edges[idx]
		if x > e.x1+eps {
			continue
		}
		if x <= e.x0+eps {
			return e.a, nil
		}
		if x >= e.x1-eps {
			return e.b, nil
		}

		mid := n.addNode()
		span := e.x1 - e.x0
		tail := edge{
			sec:    e.sec,
			x0:     x,
			x1:     e.x1,
			a:      mid,
			b:      e.b,
			length: e.length * (e.x1 - x) / span,
			zc:     e.zc,
			gamma:  e.gamma,
		}
		head := &n.edges[idx]
		head.x1 = x
		head.b = mid
		head.length = e.length * (x - e.x0) / span

		tailIdx := len(n.edges)
		n.edges = append(n.edges, tail)
		replaceEdge(n.adj[tail.b], idx, tailIdx)
		n.adj[mid] = []int{idx, tailIdx}

		list := append([]int(nil), edges[:pos+1]...)
		list = append(list, tailIdx)
		n.bySection[sec] = append(list, edges[pos+1:]...)
		return mid, nil
	}
	return n.edges[edges[len(edges)-1]].b, nil
}

func replaceEdge(list []int, from, to int) {
	for i, v := range list {
		if v == from {
			list[i] = to
		}
	}
}

// solve injects a unit current at (sec, x) and computes node admittances
// and voltages.
func (n *network) solve(sec morphology.SectionID, x float64) error {
	src, err := n.split(sec, x)
	if err != nil {
		return err
	}
	n.source = src

	nodes := len(n.adj)
	n.toward = make([]int, nodes)
	for i := range n.toward {
		n.toward[i] = -1
	}
	n.order = n.order[:0]
	visited := make([]bool, nodes)
	stack := []int{src}
	visited[src] = true
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.order = append(n.order, node)
		for _, idx := range n.adj[node] {
			next := n.edges[idx].other(node)
			if visited[next] {
				continue
			}
			visited[next] = true
			n.toward[next] = idx
			stack = append(stack, next)
		}
	}

	n.yAway = make([]complex128, nodes)
	for i := len(n.order) - 1; i >= 0; i-- {
		node := n.order[i]
		var y complex128
		for _, idx := range n.adj[node] {
			if idx == n.toward[node] {
				continue
			}
			e := &n.edges[idx]
			y += e.admittance(e.length, n.yAway[e.other(node)])
		}
		n.yAway[node] = y
	}

	n.yAll = make([]complex128, nodes)
	n.yAll[src] = n.yAway[src]
	for _, node := range n.order[1:] {
		e := &n.edges[n.toward[node]]
		parent := e.other(node)
		behind := n.yAll[parent] - e.admittance(e.length, n.yAway[node])
		n.yAll[node] = n.yAway[node] + e.admittance(e.length, behind)
	}

	if y := n.yAll[src]; y == 0 || cmplx.IsNaN(y) || cmplx.IsInf(y) {
		return fmt.Errorf("%w: zero input admittance at section %d x=%g", ErrImpedanceUndefined, sec, x)
	}

	n.v = make([]complex128, nodes)
	n.v[src] = 1 / n.yAll[src]
	for _, node := range n.order[1:] {
		e := &n.edges[n.toward[node]]
		gl := e.gamma * complex(e.length, 0)
		n.v[node] = n.v[e.other(node)] / (cmplx.Cosh(gl) + e.zc*n.yAway[node]*cmplx.Sinh(gl))
	}
	return nil
}

// locate finds the piece holding (sec, x) and returns it oriented from the
// node nearer the source, with s the distance (cm) from that node.
func (n *network) locate(sec morphology.SectionID, x float64) (e *edge, near, far int, s float64, err error) {
	edges, ok := n.bySection[sec]
	if !ok {
		return nil, 0, 0, 0, fmt.Errorf("%w: section %d", ErrOutsideNetwork, sec)
	}
	pos := sort.Search(len(edges), func(i int) bool { return n.edges[edges[i]].x1 >= x })
	if pos == len(edges) {
		pos = len(edges) - 1
	}
	idx := edges[pos]
	e = &n.edges[idx]
	frac := e.length / (e.x1 - e.x0)
	if n.toward[e.b] == idx {
		return e, e.a, e.b, (x - e.x0) * frac, nil
	}
	return e, e.b, e.a, (e.x1 - x) * frac, nil
}

func (n *network) input(sec morphology.SectionID, x float64) (complex128, error) {
	e, near, far, s, err := n.locate(sec, x)
	if err != nil {
		return 0, err
	}
	behind := n.yAll[near] - e.admittance(e.length, n.yAway[far])
	y := e.admittance(e.length-s, n.yAway[far]) + e.admittance(s, behind)
	return 1 / y, nil
}

func (n *network) transfer(sec morphology.SectionID, x float64) (complex128, error) {
	e, near, far, s, err := n.locate(sec, x)
	if err != nil {
		return 0, err
	}
	zy := e.zc * n.yAway[far]
	gl := e.gamma * complex(e.length, 0)
	gu := e.gamma * complex(e.length-s, 0)
	return n.v[near] * (cmplx.Cosh(gu) + zy*cmplx.Sinh(gu)) / (cmplx.Cosh(gl) + zy*cmplx.Sinh(gl)), nil
}
