package calltree

import (
	"fmt"

	"github.com/getsentry/hotspot/internal/errorutil"
)

// Validate checks that the hit counts of the tree reconcile: every node's
// total is its self count plus its children's totals, the root total and
// the sum of self counts equal the consumed weight, and sibling keys are
// unique.
func (t *Tree) Validate() error {
	if t == nil || len(t.Nodes) == 0 {
		return fmt.Errorf("calltree: %w: tree must be non-nil and have a root", errorutil.ErrDataIntegrity)
	}
	var selfSum uint64
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.ID != i {
			return fmt.Errorf("calltree: %w: node at index %d has id %d", errorutil.ErrDataIntegrity, i, n.ID)
		}
		selfSum += n.Hits.Self
		childSum := n.Hits.Self
		seen := make(map[childKey]struct{}, len(n.Children))
		for _, c := range n.Children {
			if c <= 0 || c >= len(t.Nodes) || t.Nodes[c].ParentID != i {
				return fmt.Errorf("calltree: %w: node %d has invalid child %d", errorutil.ErrDataIntegrity, i, c)
			}
			child := &t.Nodes[c]
			ck := childKey{parent: i, key: child.Key}
			if _, dup := seen[ck]; dup {
				return fmt.Errorf("calltree: %w: node %d has duplicate child %s", errorutil.ErrDataIntegrity, i, child.Key)
			}
			seen[ck] = struct{}{}
			childSum += child.Hits.Total
		}
		var lineSum uint64
		for _, l := range n.Lines {
			lineSum += l.Hits.Total
		}
		if lineSum > n.Hits.Total {
			return fmt.Errorf("calltree: %w: node %d line hits %d exceed total %d", errorutil.ErrDataIntegrity, i, lineSum, n.Hits.Total)
		}
		if childSum != n.Hits.Total {
			return fmt.Errorf("calltree: %w: node %d total %d != self + children %d", errorutil.ErrDataIntegrity, i, n.Hits.Total, childSum)
		}
	}
	if root := t.Nodes[0].Hits.Total; root != t.Weight {
		return fmt.Errorf("calltree: %w: root total %d != consumed weight %d", errorutil.ErrDataIntegrity, root, t.Weight)
	}
	if selfSum != t.Weight {
		return fmt.Errorf("calltree: %w: self sum %d != consumed weight %d", errorutil.ErrDataIntegrity, selfSum, t.Weight)
	}
	return nil
}
