package rpc

import (
	"time"

	"github.com/getsentry/hotspot/internal/aggregate"
	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/hitcount"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/trace"
)

type (
	Hits struct {
		TotalSamples uint64  `json:"totalSamples"`
		SelfSamples  uint64  `json:"selfSamples"`
		TotalPercent float64 `json:"totalPercent"`
		SelfPercent  float64 `json:"selfPercent"`
	}

	SampleSource struct {
		ID                  int     `json:"id"`
		Name                string  `json:"name"`
		NumberOfSamples     uint64  `json:"numberOfSamples"`
		AverageSamplingRate float64 `json:"averageSamplingRate"`
		HasStacks           bool    `json:"hasStacks"`
	}

	SessionInfo struct {
		CommandLine       string    `json:"commandLine"`
		Date              time.Time `json:"date"`
		RuntimeNS         int64     `json:"runtimeNs"`
		NumberOfProcesses int       `json:"numberOfProcesses"`
		NumberOfThreads   int       `json:"numberOfThreads"`
		NumberOfSamples   int       `json:"numberOfSamples"`
	}

	SystemInfo struct {
		Hostname           string `json:"hostname"`
		Platform           string `json:"platform"`
		Architecture       string `json:"architecture"`
		CPUName            string `json:"cpuName"`
		NumberOfProcessors int    `json:"numberOfProcessors"`
	}

	Thread struct {
		Key             uint64  `json:"key"`
		OSID            uint32  `json:"osId"`
		Name            string  `json:"name,omitempty"`
		StartTimeNS     int64   `json:"startTimeNs"`
		EndTimeNS       int64   `json:"endTimeNs"`
		ContextSwitches *uint64 `json:"contextSwitches,omitempty"`
	}

	Process struct {
		Key             uint64   `json:"key"`
		OSID            uint32   `json:"osId"`
		Name            string   `json:"name"`
		StartTimeNS     int64    `json:"startTimeNs"`
		EndTimeNS       int64    `json:"endTimeNs"`
		ContextSwitches *uint64  `json:"contextSwitches,omitempty"`
		Threads         []Thread `json:"threads"`
	}

	// Node is one call tree node. Children is only filled for expanded
	// nodes; HasChildren tells collapsed nodes apart from leaves.
	Node struct {
		ID          int    `json:"id"`
		ParentID    int    `json:"parentId"`
		Name        string `json:"name"`
		Module      string `json:"module,omitempty"`
		File        string `json:"file,omitempty"`
		Line        uint32 `json:"line,omitempty"`
		Hits        Hits   `json:"hits"`
		HasChildren bool   `json:"hasChildren"`
		Children    []Node `json:"children,omitempty"`
	}

	CallTree struct {
		ProcessKey uint64   `json:"processKey"`
		SourceIDs  []int    `json:"sourceIds,omitempty"`
		Samples    uint64   `json:"samples"`
		Weight     uint64   `json:"weight"`
		Root       Node     `json:"root"`
		HotPath    []int    `json:"hotPath,omitempty"`
		BySource   []Source `json:"bySource,omitempty"`
	}

	// Source is the share of the root hits one sample source contributed.
	Source struct {
		ID   int  `json:"id"`
		Hits Hits `json:"hits"`
	}

	Function struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Module   string `json:"module"`
		FilePath string `json:"filePath,omitempty"`
		Line     uint32 `json:"line,omitempty"`
		Hits     Hits   `json:"hits"`
	}

	HotFunction struct {
		ProcessKey uint64 `json:"processKey"`
		Function
	}

	LineHits struct {
		Line uint32 `json:"line"`
		Hits Hits   `json:"hits"`
	}

	File struct {
		ID   int    `json:"id"`
		Path string `json:"path"`
		Hits Hits   `json:"hits"`
	}

	Location struct {
		FileID int    `json:"fileId"`
		Path   string `json:"path"`
		Line   uint32 `json:"line"`
		Hits   Hits   `json:"hits"`
	}

	Module struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Hits Hits   `json:"hits"`
	}
)

func newHits(c hitcount.Counts, total uint64) Hits {
	return Hits{
		TotalSamples: c.Total,
		SelfSamples:  c.Self,
		TotalPercent: hitcount.Percent(c.Total, total),
		SelfPercent:  hitcount.Percent(c.Self, total),
	}
}

func newSampleSources(sources []samplesource.Source) []SampleSource {
	views := make([]SampleSource, 0, len(sources))
	for _, s := range sources {
		views = append(views, SampleSource{
			ID:                  s.ID,
			Name:                s.Name,
			NumberOfSamples:     s.NumberOfSamples,
			AverageSamplingRate: s.AverageSamplingRate,
			HasStacks:           s.HasStacks,
		})
	}
	return views
}

func newSessionInfo(s trace.Session) SessionInfo {
	return SessionInfo{
		CommandLine:       s.CommandLine,
		Date:              s.Date.Time(),
		RuntimeNS:         int64(s.Runtime),
		NumberOfProcesses: s.NumberOfProcesses,
		NumberOfThreads:   s.NumberOfThreads,
		NumberOfSamples:   s.NumberOfSamples,
	}
}

func newSystemInfo(s trace.System) SystemInfo {
	return SystemInfo{
		Hostname:           s.Hostname,
		Platform:           s.Platform,
		Architecture:       s.Architecture,
		CPUName:            s.CPUName,
		NumberOfProcessors: s.NumberOfProcessors,
	}
}

func newProcesses(t *trace.Trace) []Process {
	views := make([]Process, 0, len(t.Processes))
	for _, p := range t.Processes {
		v := Process{
			Key:             p.Key,
			OSID:            p.OSID,
			Name:            p.Name,
			StartTimeNS:     int64(p.StartTime),
			EndTimeNS:       int64(p.EndTime),
			ContextSwitches: p.ContextSwitches,
			Threads:         []Thread{},
		}
		for _, th := range t.ThreadsOf(p.Key) {
			v.Threads = append(v.Threads, Thread{
				Key:             th.Key,
				OSID:            th.OSID,
				Name:            th.Name,
				StartTimeNS:     int64(th.StartTime),
				EndTimeNS:       int64(th.EndTime),
				ContextSwitches: th.ContextSwitches,
			})
		}
		views = append(views, v)
	}
	return views
}

func newNode(t *calltree.Tree, n *calltree.Node) Node {
	v := Node{
		ID:          n.ID,
		ParentID:    n.ParentID,
		Hits:        newHits(n.Hits, t.Root().Hits.Total),
		HasChildren: !n.IsLeaf(),
	}
	if n.IsRoot() {
		v.Name = t.Name
		return v
	}
	v.Name = n.Key.Symbol
	v.Module = n.Key.Module
	v.File = n.Frame.File
	v.Line = n.Frame.Line
	return v
}

// expand returns the view of n with its children expanded as long as
// expanded reports true for them.
func expand(t *calltree.Tree, n *calltree.Node, expanded func(*calltree.Node) bool) Node {
	v := newNode(t, n)
	if !expanded(n) {
		return v
	}
	for _, id := range n.Children {
		child, _ := t.Node(id)
		v.Children = append(v.Children, expand(t, child, expanded))
	}
	return v
}

func newCallTree(t *calltree.Tree, processKey uint64) CallTree {
	total := t.Root().Hits.Total
	v := CallTree{
		ProcessKey: processKey,
		SourceIDs:  t.SourceIDs,
		Samples:    t.Samples,
		Weight:     t.Weight,
	}
	for id, c := range t.BySource {
		if !c.IsZero() {
			v.BySource = append(v.BySource, Source{ID: id, Hits: newHits(c, total)})
		}
	}
	return v
}

func newFunction(a *aggregate.Aggregates, f aggregate.Function) Function {
	v := Function{
		ID:   f.ID,
		Name: f.Name,
		Line: f.Line,
		Hits: newHits(f.Hits, a.Total),
	}
	if m, ok := a.Module(f.ModuleID); ok {
		v.Module = m.Name
	}
	if file, ok := a.File(f.FileID); ok {
		v.FilePath = file.Path
	}
	return v
}

func newFunctions(a *aggregate.Aggregates, functions []aggregate.Function) []Function {
	views := make([]Function, 0, len(functions))
	for _, f := range functions {
		views = append(views, newFunction(a, f))
	}
	return views
}

// newEdges describes the functions at the other end of edges, with the
// hits of the edge itself.
func newEdges(a *aggregate.Aggregates, edges []aggregate.Edge) []Function {
	views := make([]Function, 0, len(edges))
	for _, e := range edges {
		f, _ := a.Function(e.FunctionID)
		v := newFunction(a, f)
		v.Hits = newHits(e.Hits, a.Total)
		views = append(views, v)
	}
	return views
}

func newFiles(a *aggregate.Aggregates, files []aggregate.File) []File {
	views := make([]File, 0, len(files))
	for _, f := range files {
		views = append(views, File{ID: f.ID, Path: f.Path, Hits: newHits(f.Hits, a.Total)})
	}
	return views
}

func newLocations(a *aggregate.Aggregates, locations []aggregate.Location) []Location {
	views := make([]Location, 0, len(locations))
	for _, l := range locations {
		file, _ := a.File(l.FileID)
		views = append(views, Location{
			FileID: l.FileID,
			Path:   file.Path,
			Line:   l.Line,
			Hits:   newHits(l.Hits, a.Total),
		})
	}
	return views
}

func newModules(a *aggregate.Aggregates, modules []aggregate.Module) []Module {
	views := make([]Module, 0, len(modules))
	for _, m := range modules {
		views = append(views, Module{ID: m.ID, Name: m.Name, Hits: newHits(m.Hits, a.Total)})
	}
	return views
}
