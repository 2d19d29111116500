package morphology

import (
	"errors"
	"fmt"
)

// NoParent marks a record without a parent (the root)
const NoParent = -1

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrMissingParent = errors.New("parent node not found")
	ErrMultipleRoots = errors.New("more than one root")
	ErrNoRoot        = errors.New("tree has no root")
	ErrCycle         = errors.New("cyclic parent reference")
	ErrNodeNotFound  = errors.New("node not found")
)

// Record is one raw (id, parent, value) entry used to build a Tree
type Record[T any] struct {
	ID     int
	Parent int
	Value  T
}

// Node is a tree vertex with an ordered list of children
type Node[T any] struct {
	ID       int
	Parent   *Node[T]
	Children []*Node[T]
	Value    T
}

// IsRoot reports whether the node has no parent
func (n *Node[T]) IsRoot() bool {
	return n.Parent == nil
}

// Tree is an ordered rooted tree. Children keep the order in which their
// records appeared.
type Tree[T any] struct {
	Root  *Node[T]
	nodes map[int]*Node[T]
}

// BuildTree assembles a tree from raw records. Duplicate ids, dangling parent
// references, several roots and cycles are all rejected.
func BuildTree[T any](records []Record[T]) (*Tree[T], error) {
	t := &Tree[T]{nodes: make(map[int]*Node[T], len(records))}

	for _, rec := range records {
		if _, exists := t.nodes[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateNode, rec.ID)
		}
		t.nodes[rec.ID] = &Node[T]{ID: rec.ID, Value: rec.Value}
	}

	for _, rec := range records {
		node := t.nodes[rec.ID]
		if rec.Parent == NoParent {
			if t.Root != nil {
				return nil, fmt.Errorf("%w: %d and %d", ErrMultipleRoots, t.Root.ID, rec.ID)
			}
			t.Root = node
			continue
		}
		parent, ok := t.nodes[rec.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: node %d references %d", ErrMissingParent, rec.ID, rec.Parent)
		}
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	if t.Root == nil {
		if len(records) == 0 {
			return nil, ErrNoRoot
		}
		// every node has a parent, so the parent links must loop
		return nil, fmt.Errorf("%w: no node without a parent", ErrCycle)
	}

	// Nodes on a cycle are unreachable from the root.
	if reached := len(t.PreOrder()); reached != len(t.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable from root", ErrCycle, len(t.nodes)-reached, len(t.nodes))
	}

	return t, nil
}

// Len returns the number of nodes
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given id
func (t *Tree[T]) Node(id int) (*Node[T], bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// PreOrder returns every node, parents before children, siblings in order
func (t *Tree[T]) PreOrder() []*Node[T] {
	if t.Root == nil {
		return nil
	}
	return preOrder(t.Root)
}

// Subtree returns the pre-order sequence of nodes rooted at id, inclusive
func (t *Tree[T]) Subtree(id int) ([]*Node[T], error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	return preOrder(n), nil
}

// preOrder walks iteratively so deep dendrites cannot exhaust the stack
func preOrder[T any](root *Node[T]) []*Node[T] {
	var out []*Node[T]
	stack := []*Node[T]{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}
