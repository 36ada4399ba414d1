// Package calltree builds the aggregated call tree of a process from a
// stream of stack samples.
//
// Nodes represent call-path positions, not functions: the same function
// reached through two different paths, or recursively at two depths of the
// same path, yields distinct nodes. Nodes live in a flat append-only store
// and are addressed by their index; the root always has id 0.
package calltree

import (
	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/hitcount"
)

// NoParent is the parent id of the root node.
const NoParent = -1

type (
	Node struct {
		ID       int   `json:"id"`
		ParentID int   `json:"parent_id"`
		Depth    int   `json:"depth"`
		Children []int `json:"children,omitempty"`
		// Key is the identity of the node among its siblings. The root has
		// the zero key.
		Key frame.Key `json:"key"`
		// Frame is the first frame that reached this node, used for file
		// and line attribution.
		Frame frame.Frame     `json:"frame"`
		Hits  hitcount.Counts `json:"hits"`
		// Lines splits the hits by the line of each frame that reached the
		// node. Frames without a source location are not split.
		Lines []LineCounts `json:"lines,omitempty"`
	}

	LineCounts struct {
		Line uint32          `json:"line"`
		Hits hitcount.Counts `json:"hits"`
	}

	childKey struct {
		parent int
		key    frame.Key
	}

	// Tree is immutable once returned by a builder.
	Tree struct {
		Name      string
		Nodes     []Node
		SourceIDs []int
		// Samples is the number of samples consumed, Weight their summed
		// effective weight.
		Samples uint64
		Weight  uint64
		// BySource splits the root hits by sample source id.
		BySource hitcount.SourceCounts

		children map[childKey]int
	}
)

// Root returns the synthetic process node.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) (*Node, bool) {
	if id < 0 || id >= len(t.Nodes) {
		return nil, false
	}
	return &t.Nodes[id], true
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Child returns the id of the child of parent with the given key.
func (t *Tree) Child(parent int, key frame.Key) (int, bool) {
	id, ok := t.children[childKey{parent: parent, key: key}]
	return id, ok
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

func (n *Node) IsRoot() bool {
	return n.ParentID == NoParent
}

// hitLine adds w to the counts of line, keeping lines in first-seen order.
func (n *Node) hitLine(line uint32, w uint64, leaf bool) {
	for i := range n.Lines {
		if n.Lines[i].Line == line {
			n.Lines[i].Hits.Hit(w, leaf)
			return
		}
	}
	n.Lines = append(n.Lines, LineCounts{Line: line})
	n.Lines[len(n.Lines)-1].Hits.Hit(w, leaf)
}

// Walk visits nodes depth first, parents before children and children in
// insertion order. Returning false from fn skips the subtree below n.
func (t *Tree) Walk(fn func(n *Node) bool) {
	if len(t.Nodes) == 0 {
		return
	}
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[id]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// HotPath follows the heaviest child from the root for as long as it
// accounts for at least half of its parent's total. Ties go to the child
// inserted first. The returned ids start with the root.
func (t *Tree) HotPath() []int {
	if len(t.Nodes) == 0 {
		return nil
	}
	path := []int{0}
	current := &t.Nodes[0]
	for {
		next := -1
		var best uint64
		for _, id := range current.Children {
			if total := t.Nodes[id].Hits.Total; next == -1 || total > best {
				next, best = id, total
			}
		}
		if next == -1 || best == 0 || best*2 < current.Hits.Total {
			return path
		}
		path = append(path, next)
		current = &t.Nodes[next]
	}
}

// Path returns the ids from the root down to the node.
func (t *Tree) Path(id int) []int {
	var path []int
	for id != NoParent && id >= 0 && id < len(t.Nodes) {
		path = append(path, id)
		id = t.Nodes[id].ParentID
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
