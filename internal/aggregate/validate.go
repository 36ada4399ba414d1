package aggregate

import (
	"fmt"

	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/hitcount"
)

// Validate recomputes every file, location and module total from the tree
// and checks that they match the aggregates.
func (a *Aggregates) Validate(t *calltree.Tree) error {
	files := make(map[string]hitcount.Counts)
	locations := make(map[string]hitcount.Counts)
	modules := make(map[string]hitcount.Counts)
	t.Walk(func(n *calltree.Node) bool {
		if n.IsRoot() {
			return true
		}
		m := modules[n.Key.Module]
		m.Add(n.Hits)
		modules[n.Key.Module] = m
		if n.Frame.HasLocation() {
			f := files[n.Frame.File]
			f.Add(n.Hits)
			files[n.Frame.File] = f
			for _, line := range n.Lines {
				k := fmt.Sprintf("%s:%d", n.Frame.File, line.Line)
				l := locations[k]
				l.Add(line.Hits)
				locations[k] = l
			}
		}
		return true
	})

	if len(files) != len(a.Files) {
		return fmt.Errorf("aggregate: %w: %d files in tree, %d aggregated", errorutil.ErrDataIntegrity, len(files), len(a.Files))
	}
	for _, f := range a.Files {
		if want := files[f.Path]; want != f.Hits {
			return fmt.Errorf("aggregate: %w: file %q has %+v, tree has %+v", errorutil.ErrDataIntegrity, f.Path, f.Hits, want)
		}
	}
	if len(locations) != len(a.Locations) {
		return fmt.Errorf("aggregate: %w: %d locations in tree, %d aggregated", errorutil.ErrDataIntegrity, len(locations), len(a.Locations))
	}
	for _, l := range a.Locations {
		f, ok := a.File(l.FileID)
		if !ok {
			return fmt.Errorf("aggregate: %w: location references unknown file %d", errorutil.ErrDataIntegrity, l.FileID)
		}
		if want := locations[fmt.Sprintf("%s:%d", f.Path, l.Line)]; want != l.Hits {
			return fmt.Errorf("aggregate: %w: location %s:%d has %+v, tree has %+v", errorutil.ErrDataIntegrity, f.Path, l.Line, l.Hits, want)
		}
	}
	if len(modules) != len(a.Modules) {
		return fmt.Errorf("aggregate: %w: %d modules in tree, %d aggregated", errorutil.ErrDataIntegrity, len(modules), len(a.Modules))
	}
	for _, m := range a.Modules {
		if want := modules[m.Name]; want != m.Hits {
			return fmt.Errorf("aggregate: %w: module %q has %+v, tree has %+v", errorutil.ErrDataIntegrity, m.Name, m.Hits, want)
		}
	}
	return nil
}
