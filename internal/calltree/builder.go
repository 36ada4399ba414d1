package calltree

import (
	"context"
	"fmt"

	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/sample"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/trace"
)

// cancelCheckInterval is the number of samples consumed between two checks
// of the context.
const cancelCheckInterval = 1024

// Builder accumulates samples into a tree. It is not safe for concurrent
// use.
type Builder struct {
	tree *Tree
	plan samplesource.Plan
}

func NewBuilder(process trace.Process, plan samplesource.Plan) *Builder {
	name := RootName(process.Name, process.OSID)
	return &Builder{
		plan: plan,
		tree: &Tree{
			Name:      name,
			SourceIDs: plan.SourceIDs(),
			Nodes: []Node{
				{
					ID:       0,
					ParentID: NoParent,
					Frame:    frame.Frame{Symbol: name},
				},
			},
			children: make(map[childKey]int),
		},
	}
}

// Add accumulates one sample. Samples of sources the plan does not accept
// and samples with a zero effective weight leave the tree untouched.
func (b *Builder) Add(s sample.Sample) {
	if !b.plan.Accepts(s.SourceID) {
		return
	}
	w := b.plan.Weight(s.SourceID, s.Weight)
	if w == 0 {
		return
	}
	t := b.tree
	t.Samples++
	t.Weight += w
	if s.SourceID >= 0 {
		t.BySource.At(s.SourceID).Hit(w, len(s.Frames) == 0)
	}

	current := 0
	t.Nodes[0].Hits.Hit(w, len(s.Frames) == 0)
	for i, f := range s.Frames {
		current = b.findOrAddChild(current, f)
		leaf := i == len(s.Frames)-1
		t.Nodes[current].Hits.Hit(w, leaf)
		if f.HasLocation() {
			t.Nodes[current].hitLine(f.Line, w, leaf)
		}
	}
}

func (b *Builder) findOrAddChild(parent int, f frame.Frame) int {
	t := b.tree
	key := f.Key()
	ck := childKey{parent: parent, key: key}
	if id, ok := t.children[ck]; ok {
		return id
	}
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		ID:       id,
		ParentID: parent,
		Depth:    t.Nodes[parent].Depth + 1,
		Key:      key,
		Frame:    f,
	})
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	t.children[ck] = id
	return id
}

// Tree returns the tree built so far. The builder must not be used
// afterwards.
func (b *Builder) Tree() *Tree {
	t := b.tree
	b.tree = nil
	return t
}

// Build consumes it and returns the call tree of process. The iterator is
// closed before returning. On a read failure or cancellation the partial
// tree is discarded.
func Build(ctx context.Context, it sample.Iterator, process trace.Process, plan samplesource.Plan) (*Tree, error) {
	defer it.Close()
	b := NewBuilder(process, plan)
	var n int
	for it.Next() {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n++
		b.Add(it.Sample())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("calltree: reading samples: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Tree(), nil
}
