package aggregate

import (
	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/hitcount"
)

type (
	edgeKey struct {
		function int
		other    int
	}

	lineKey struct {
		function int
		line     uint32
	}

	builder struct {
		a       *Aggregates
		callers map[edgeKey]int
		callees map[edgeKey]int
		lines   map[lineKey]int
	}
)

// FromTree computes the aggregates of a completed tree.
func FromTree(t *calltree.Tree) *Aggregates {
	root := t.Root()
	b := builder{
		a: &Aggregates{
			Root: Function{
				ID:       RootFunctionID,
				ModuleID: -1,
				Name:     t.Name,
				FileID:   NoFile,
				Hits:     root.Hits,
			},
			Total:     root.Hits.Total,
			files:     make(map[string]int),
			locations: make(map[locationKey]int),
			modules:   make(map[string]int),
			functions: make(map[frame.Key]int),
		},
		callers: make(map[edgeKey]int),
		callees: make(map[edgeKey]int),
		lines:   make(map[lineKey]int),
	}
	t.Walk(func(n *calltree.Node) bool {
		if !n.IsRoot() {
			b.add(t, n)
		}
		return true
	})
	return b.a
}

func (b *builder) add(t *calltree.Tree, n *calltree.Node) {
	a := b.a
	moduleID := b.module(n.Key.Module)
	a.Modules[moduleID].Hits.Add(n.Hits)

	fileID := NoFile
	if n.Frame.HasLocation() {
		fileID = b.file(n.Frame.File)
		a.Files[fileID].Hits.Add(n.Hits)
		for _, l := range n.Lines {
			i := b.location(fileID, l.Line)
			a.Locations[i].Hits.Add(l.Hits)
		}
	}

	functionID := b.function(n.Key, moduleID, n.Frame, fileID)
	fn := &a.Functions[functionID]
	fn.Hits.Add(n.Hits)
	if fileID != NoFile && fn.FileID == fileID {
		for _, l := range n.Lines {
			i := b.lineHits(functionID, l.Line)
			fn.LineHits[i].Hits.Add(l.Hits)
		}
	}

	callerID := RootFunctionID
	if parent, ok := t.Node(n.ParentID); ok && !parent.IsRoot() {
		callerID = a.functions[parent.Key]
	}
	b.edge(b.callers, &a.Functions[functionID].Callers, functionID, callerID).Add(n.Hits)
	caller := &a.Root
	if callerID != RootFunctionID {
		caller = &a.Functions[callerID]
	}
	b.edge(b.callees, &caller.Callees, callerID, functionID).Add(n.Hits)
}

func (b *builder) module(name string) int {
	if id, ok := b.a.modules[name]; ok {
		return id
	}
	id := len(b.a.Modules)
	b.a.Modules = append(b.a.Modules, Module{ID: id, Name: name})
	b.a.modules[name] = id
	return id
}

func (b *builder) file(path string) int {
	if id, ok := b.a.files[path]; ok {
		return id
	}
	id := len(b.a.Files)
	b.a.Files = append(b.a.Files, File{ID: id, Path: path})
	b.a.files[path] = id
	return id
}

func (b *builder) location(fileID int, line uint32) int {
	k := locationKey{fileID: fileID, line: line}
	if i, ok := b.a.locations[k]; ok {
		return i
	}
	i := len(b.a.Locations)
	b.a.Locations = append(b.a.Locations, Location{FileID: fileID, Line: line})
	b.a.locations[k] = i
	return i
}

// function returns the id of the function of key. Its source location is
// taken from the first frame that carries one.
func (b *builder) function(key frame.Key, moduleID int, f frame.Frame, fileID int) int {
	if id, ok := b.a.functions[key]; ok {
		fn := &b.a.Functions[id]
		if fn.FileID == NoFile && fileID != NoFile {
			fn.FileID = fileID
			fn.Line = f.FunctionLine
		}
		return id
	}
	id := len(b.a.Functions)
	fn := Function{
		ID:       id,
		ModuleID: moduleID,
		Name:     key.Symbol,
		FileID:   fileID,
	}
	if fileID != NoFile {
		fn.Line = f.FunctionLine
	}
	b.a.Functions = append(b.a.Functions, fn)
	b.a.functions[key] = id
	return id
}

func (b *builder) lineHits(functionID int, line uint32) int {
	k := lineKey{function: functionID, line: line}
	if i, ok := b.lines[k]; ok {
		return i
	}
	fn := &b.a.Functions[functionID]
	i := len(fn.LineHits)
	fn.LineHits = append(fn.LineHits, LineHits{Line: line})
	b.lines[k] = i
	return i
}

// edge returns the hit counts of the edge from function to other, adding
// it to edges on first use. The pointer is only valid until the next append
// to the same slice.
func (b *builder) edge(index map[edgeKey]int, edges *[]Edge, function, other int) *hitcount.Counts {
	k := edgeKey{function: function, other: other}
	i, ok := index[k]
	if !ok {
		i = len(*edges)
		*edges = append(*edges, Edge{FunctionID: other})
		index[k] = i
	}
	return &(*edges)[i].Hits
}
