package rpc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/getsentry/hotspot/internal/aggregate"
	"github.com/getsentry/hotspot/internal/analysis"
	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/document"
	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/sample"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/speedscope"
	"github.com/getsentry/hotspot/internal/types"
)

type (
	// Service serves the analysis methods over a document store.
	Service struct {
		store *document.Store
	}

	documentParams struct {
		DocumentID string `json:"documentId"`
	}

	selectionParams struct {
		SourceID  *int `json:"sourceId,omitempty"`
		Merge     bool `json:"merge,omitempty"`
		Normalize bool `json:"normalize,omitempty"`
	}

	processParams struct {
		DocumentID string        `json:"documentId"`
		ProcessKey *types.Uint64 `json:"processKey"`
		selectionParams
	}

	readDocumentParams struct {
		FilePath string `json:"filePath"`
	}

	sampleFiltersParams struct {
		DocumentID string   `json:"documentId"`
		MinTimeNS  *int64   `json:"minTime,omitempty"`
		MaxTimeNS  *int64   `json:"maxTime,omitempty"`
		ThreadIDs  []uint64 `json:"threadIds,omitempty"`
	}

	expandNodeParams struct {
		processParams
		NodeID *int `json:"nodeId"`
	}

	hottestFunctionsParams struct {
		DocumentID string `json:"documentId"`
		Count      int    `json:"count"`
		selectionParams
	}

	functionsPageParams struct {
		processParams
		SortBy    string `json:"sortBy"`
		SortOrder string `json:"sortOrder"`
		PageSize  int    `json:"pageSize"`
		PageIndex int    `json:"pageIndex"`
	}

	functionParams struct {
		processParams
		FunctionID *int `json:"functionId"`
		MaxEntries int  `json:"maxEntries,omitempty"`
	}

	locationsParams struct {
		processParams
		FileID *int `json:"fileId,omitempty"`
	}
)

func NewService(store *document.Store) *Service {
	return &Service{store: store}
}

// Register adds every method of the service to r.
func (s *Service) Register(r *Registry) error {
	methods := []struct {
		name    string
		handler Handler
	}{
		{"readDocument", s.readDocument},
		{"closeDocument", s.closeDocument},
		{"setSampleFilters", s.setSampleFilters},
		{"retrieveSampleSources", s.retrieveSampleSources},
		{"retrieveSessionInfo", s.retrieveSessionInfo},
		{"retrieveSystemInfo", s.retrieveSystemInfo},
		{"retrieveProcesses", s.retrieveProcesses},
		{"retrieveCallTree", s.retrieveCallTree},
		{"retrieveCallTreeHotPath", s.retrieveCallTreeHotPath},
		{"expandCallTreeNode", s.expandCallTreeNode},
		{"retrieveHottestFunctions", s.retrieveHottestFunctions},
		{"retrieveFunctionsPage", s.retrieveFunctionsPage},
		{"retrieveCallersCallees", s.retrieveCallersCallees},
		{"retrieveLineInfo", s.retrieveLineInfo},
		{"retrieveFiles", s.retrieveFiles},
		{"retrieveLocations", s.retrieveLocations},
		{"retrieveModules", s.retrieveModules},
		{"retrieveAnalysisSummary", s.retrieveAnalysisSummary},
		{"exportSpeedscope", s.exportSpeedscope},
	}
	for _, m := range methods {
		if err := r.Register(m.name, m.handler); err != nil {
			return err
		}
	}
	return nil
}

func decode(params gojson.RawMessage, v interface{}) error {
	if len(params) == 0 {
		params = gojson.RawMessage("{}")
	}
	if err := gojson.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %s", errorutil.ErrInvalidRequest, err.Error())
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("%w: missing %s", errorutil.ErrInvalidRequest, name)
}

func (p documentParams) validate() error {
	if p.DocumentID == "" {
		return missing("documentId")
	}
	return nil
}

func (p selectionParams) selection() samplesource.Selection {
	return samplesource.Selection{
		SourceID:  p.SourceID,
		Merge:     p.Merge,
		Normalize: p.Normalize,
	}
}

func (p processParams) validate() error {
	if p.DocumentID == "" {
		return missing("documentId")
	}
	if p.ProcessKey == nil {
		return missing("processKey")
	}
	return nil
}

// analysis returns the analysis designated by validated process
// parameters.
func (s *Service) analysis(ctx context.Context, p processParams) (*analysis.Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.store.Analysis(ctx, p.DocumentID, p.ProcessKey.Value(), p.selection())
}

func (s *Service) document(params gojson.RawMessage) (*document.Document, error) {
	var p documentParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.store.Get(p.DocumentID)
}

func (s *Service) readDocument(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	var p readDocumentParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.FilePath == "" {
		return nil, missing("filePath")
	}
	d, err := s.store.Open(p.FilePath)
	if err != nil {
		return nil, err
	}
	return map[string]string{"documentId": d.ID}, nil
}

func (s *Service) closeDocument(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	var p documentParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.store.Close(p.DocumentID); err != nil {
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}

func (s *Service) setSampleFilters(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	var p sampleFiltersParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.DocumentID == "" {
		return nil, missing("documentId")
	}
	f := sample.Filter{ThreadIDs: p.ThreadIDs}
	if p.MinTimeNS != nil {
		d := time.Duration(*p.MinTimeNS)
		f.MinTime = &d
	}
	if p.MaxTimeNS != nil {
		d := time.Duration(*p.MaxTimeNS)
		f.MaxTime = &d
	}
	if err := s.store.SetFilter(p.DocumentID, f); err != nil {
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}

func (s *Service) retrieveSampleSources(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	d, err := s.document(params)
	if err != nil {
		return nil, err
	}
	return map[string][]SampleSource{"sampleSources": newSampleSources(d.Registry.All())}, nil
}

func (s *Service) retrieveSessionInfo(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	d, err := s.document(params)
	if err != nil {
		return nil, err
	}
	return map[string]SessionInfo{"sessionInfo": newSessionInfo(d.Trace.Session)}, nil
}

func (s *Service) retrieveSystemInfo(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	d, err := s.document(params)
	if err != nil {
		return nil, err
	}
	return map[string]SystemInfo{"systemInfo": newSystemInfo(d.Trace.System)}, nil
}

func (s *Service) retrieveProcesses(_ context.Context, params gojson.RawMessage) (interface{}, error) {
	d, err := s.document(params)
	if err != nil {
		return nil, err
	}
	return map[string][]Process{"processes": newProcesses(d.Trace)}, nil
}

func (s *Service) retrieveCallTree(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p)
	if err != nil {
		return nil, err
	}
	v := newCallTree(r.Tree, r.Process.Key)
	v.Root = expand(r.Tree, r.Tree.Root(), func(*calltree.Node) bool { return true })
	return v, nil
}

// retrieveCallTreeHotPath expands the nodes of the hot path, leaving every
// other node collapsed.
func (s *Service) retrieveCallTreeHotPath(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p)
	if err != nil {
		return nil, err
	}
	path := r.Tree.HotPath()
	onPath := make(map[int]bool, len(path))
	for _, id := range path {
		onPath[id] = true
	}
	v := newCallTree(r.Tree, r.Process.Key)
	v.HotPath = path
	v.Root = expand(r.Tree, r.Tree.Root(), func(n *calltree.Node) bool { return onPath[n.ID] })
	return v, nil
}

func (s *Service) expandCallTreeNode(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p expandNodeParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.NodeID == nil {
		return nil, missing("nodeId")
	}
	r, err := s.analysis(ctx, p.processParams)
	if err != nil {
		return nil, err
	}
	n, ok := r.Tree.Node(*p.NodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %d", errorutil.ErrNotFound, *p.NodeID)
	}
	children := make([]Node, 0, len(n.Children))
	for _, id := range n.Children {
		child, _ := r.Tree.Node(id)
		children = append(children, newNode(r.Tree, child))
	}
	return struct {
		NodeID   int    `json:"nodeId"`
		Children []Node `json:"children"`
	}{NodeID: n.ID, Children: children}, nil
}

func (s *Service) retrieveHottestFunctions(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p hottestFunctionsParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.DocumentID == "" {
		return nil, missing("documentId")
	}
	if p.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", errorutil.ErrInvalidRequest)
	}
	results, err := s.store.Analyses(ctx, p.DocumentID, p.selection())
	if err != nil {
		return nil, err
	}
	byProcess := make(map[uint64]*aggregate.Aggregates, len(results))
	for _, r := range results {
		byProcess[r.Process.Key] = r.Aggregates
	}
	functions := []HotFunction{}
	for _, h := range analysis.Hottest(results, p.Count) {
		functions = append(functions, HotFunction{
			ProcessKey: h.ProcessKey,
			Function:   newFunction(byProcess[h.ProcessKey], h.Function),
		})
	}
	return map[string][]HotFunction{"functions": functions}, nil
}

func parseSortOrder(order string) (bool, error) {
	switch strings.ToLower(order) {
	case "", "desc", "descending":
		return true, nil
	case "asc", "ascending":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown sort order %q", errorutil.ErrInvalidRequest, order)
	}
}

func (s *Service) retrieveFunctionsPage(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p functionsPageParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	field, err := aggregate.ParseSortField(p.SortBy)
	if err != nil {
		return nil, err
	}
	descending, err := parseSortOrder(p.SortOrder)
	if err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p.processParams)
	if err != nil {
		return nil, err
	}
	a := r.Aggregates
	page, err := a.FunctionsPage(field, descending, p.PageSize, p.PageIndex)
	if err != nil {
		return nil, err
	}
	return struct {
		Functions      []Function `json:"functions"`
		TotalFunctions int        `json:"totalFunctions"`
	}{Functions: newFunctions(a, page), TotalFunctions: len(a.Functions)}, nil
}

// function resolves the function named by p. The root function is
// addressed by aggregate.RootFunctionID.
func (s *Service) function(ctx context.Context, p functionParams) (*aggregate.Aggregates, aggregate.Function, error) {
	if p.FunctionID == nil {
		return nil, aggregate.Function{}, missing("functionId")
	}
	r, err := s.analysis(ctx, p.processParams)
	if err != nil {
		return nil, aggregate.Function{}, err
	}
	f, ok := r.Aggregates.Function(*p.FunctionID)
	if !ok {
		return nil, aggregate.Function{}, fmt.Errorf("%w: function %d", errorutil.ErrNotFound, *p.FunctionID)
	}
	return r.Aggregates, f, nil
}

func (s *Service) retrieveCallersCallees(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p functionParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	a, f, err := s.function(ctx, p)
	if err != nil {
		return nil, err
	}
	return struct {
		Function Function   `json:"function"`
		Callers  []Function `json:"callers"`
		Callees  []Function `json:"callees"`
	}{
		Function: newFunction(a, f),
		Callers:  newEdges(a, aggregate.LimitEdges(f.Callers, p.MaxEntries)),
		Callees:  newEdges(a, aggregate.LimitEdges(f.Callees, p.MaxEntries)),
	}, nil
}

func (s *Service) retrieveLineInfo(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p functionParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	a, f, err := s.function(ctx, p)
	if err != nil {
		return nil, err
	}
	lines := make([]LineHits, 0, len(f.LineHits))
	for _, l := range f.LineHits {
		lines = append(lines, LineHits{Line: l.Line, Hits: newHits(l.Hits, a.Total)})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	var filePath string
	if file, ok := a.File(f.FileID); ok {
		filePath = file.Path
	}
	return struct {
		FilePath string     `json:"filePath"`
		Lines    []LineHits `json:"lines"`
	}{FilePath: filePath, Lines: lines}, nil
}

func (s *Service) retrieveFiles(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string][]File{"files": newFiles(r.Aggregates, r.Aggregates.FilesByTotal())}, nil
}

// retrieveLocations returns the lines of one file, or of every file
// ordered by file id when no file is given.
func (s *Service) retrieveLocations(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p locationsParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p.processParams)
	if err != nil {
		return nil, err
	}
	a := r.Aggregates
	var locations []aggregate.Location
	if p.FileID != nil {
		if _, ok := a.File(*p.FileID); !ok {
			return nil, fmt.Errorf("%w: file %d", errorutil.ErrNotFound, *p.FileID)
		}
		locations = a.LocationsOf(*p.FileID)
	} else {
		for _, f := range a.Files {
			locations = append(locations, a.LocationsOf(f.ID)...)
		}
	}
	return map[string][]Location{"locations": newLocations(a, locations)}, nil
}

func (s *Service) retrieveModules(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string][]Module{"modules": newModules(r.Aggregates, r.Aggregates.ModulesByTotal())}, nil
}

func (s *Service) retrieveAnalysisSummary(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.store.Summary(ctx, p.DocumentID, p.ProcessKey.Value(), p.selection())
}

// exportSpeedscope returns the call tree as a speedscope document. Weights
// are in nanoseconds only for normalized merged selections.
func (s *Service) exportSpeedscope(ctx context.Context, params gojson.RawMessage) (interface{}, error) {
	var p processParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	r, err := s.analysis(ctx, p)
	if err != nil {
		return nil, err
	}
	unit := speedscope.ValueUnitNone
	if r.Selection.Merge && r.Selection.Normalize {
		unit = speedscope.ValueUnitNanoseconds
	}
	return speedscope.FromTree(r.Tree, unit), nil
}
