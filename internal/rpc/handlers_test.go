package rpc

import (
	"path/filepath"
	"testing"

	gojson "github.com/goccy/go-json"

	"github.com/getsentry/hotspot/internal/document"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/speedscope"
	"github.com/getsentry/hotspot/internal/testutil"
	"github.com/getsentry/hotspot/internal/trace"
)

func newTestTrace() *trace.Trace {
	return &trace.Trace{
		Session: trace.Session{CommandLine: "app --serve"},
		System:  trace.System{Hostname: "builder", Platform: "linux", NumberOfProcessors: 4},
		Sources: []samplesource.Source{
			{ID: 0, Name: "timer", AverageSamplingRate: 1000, HasStacks: true},
			{ID: 1, Name: "context-switches"},
		},
		Processes: []trace.Process{
			{Key: 1, OSID: 100, Name: "/usr/bin/app"},
			{Key: 2, OSID: 200, Name: "worker"},
		},
		Threads: []trace.Thread{
			{Key: 11, ProcessKey: 1, OSID: 2},
			{Key: 10, ProcessKey: 1, OSID: 1},
			{Key: 20, ProcessKey: 2, OSID: 3},
		},
		Modules: []trace.Module{
			{
				Module: resolver.Module{
					Name: "app",
					Base: 0x1000,
					Size: 0x1000,
					Symbols: []resolver.Symbol{
						{Name: "main", Start: 0x1000, Size: 0x100, File: "/src/main.c", FunctionLine: 1},
						{Name: "work", Start: 0x1100, Size: 0x100, File: "/src/work.c", FunctionLine: 10},
					},
				},
			},
		},
		Stacks: [][]uint64{
			{0x1010},
			{0x1110, 0x1010},
		},
		Samples: []trace.RawSample{
			{ProcessKey: 1, ThreadKey: 10, SourceID: 0, StackID: 0, TimestampNS: 1_000},
			{ProcessKey: 1, ThreadKey: 11, SourceID: 0, StackID: 1, Weight: 2, TimestampNS: 2_000},
			{ProcessKey: 1, ThreadKey: 10, SourceID: 1, StackID: trace.NoStack, TimestampNS: 2_500},
			{ProcessKey: 2, ThreadKey: 20, SourceID: 0, StackID: 1, TimestampNS: 3_000},
		},
	}
}

type testClient struct {
	t        *testing.T
	registry *Registry
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	store, err := document.NewStore(document.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := NewRegistry()
	if err := NewService(store).Register(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &testClient{t: t, registry: r}
}

func (c *testClient) do(method string, params interface{}) testResponse {
	c.t.Helper()
	p, err := gojson.Marshal(params)
	if err != nil {
		c.t.Fatalf("unexpected error: %v", err)
	}
	message, err := gojson.Marshal(Request{JSONRPC: Version, ID: gojson.RawMessage("1"), Method: method, Params: p})
	if err != nil {
		c.t.Fatalf("unexpected error: %v", err)
	}
	return call(c.t, c.registry, string(message))
}

// result calls method and decodes its result into v.
func (c *testClient) result(method string, params interface{}, v interface{}) {
	c.t.Helper()
	resp := c.do(method, params)
	if resp.Error != nil {
		c.t.Fatalf("%s: unexpected error: %+v", method, resp.Error)
	}
	if err := gojson.Unmarshal(resp.Result, v); err != nil {
		c.t.Fatalf("%s: can't decode result: %v", method, err)
	}
}

func (c *testClient) errorCode(method string, params interface{}) int {
	c.t.Helper()
	resp := c.do(method, params)
	if resp.Error == nil {
		c.t.Fatalf("%s: expected an error", method)
	}
	return resp.Error.Code
}

func (c *testClient) open() string {
	c.t.Helper()
	path := filepath.Join(c.t.TempDir(), "trace.json.lz4")
	if err := trace.WriteFile(path, newTestTrace()); err != nil {
		c.t.Fatalf("unexpected error: %v", err)
	}
	var opened struct {
		DocumentID string `json:"documentId"`
	}
	c.result("readDocument", map[string]string{"filePath": path}, &opened)
	if opened.DocumentID == "" {
		c.t.Fatal("expected a document id")
	}
	return opened.DocumentID
}

type nodeSummary struct {
	Name     string
	Total    uint64
	Self     uint64
	Children []nodeSummary
}

func summarizeNode(n Node) nodeSummary {
	s := nodeSummary{Name: n.Name, Total: n.Hits.TotalSamples, Self: n.Hits.SelfSamples}
	for _, c := range n.Children {
		s.Children = append(s.Children, summarizeNode(c))
	}
	return s
}

func TestDocumentMethods(t *testing.T) {
	c := newTestClient(t)
	id := c.open()
	params := map[string]interface{}{"documentId": id}

	var sources struct {
		SampleSources []SampleSource `json:"sampleSources"`
	}
	c.result("retrieveSampleSources", params, &sources)
	if diff := testutil.Diff(sources.SampleSources, []SampleSource{
		{ID: 0, Name: "timer", NumberOfSamples: 3, AverageSamplingRate: 1000, HasStacks: true},
		{ID: 1, Name: "context-switches", NumberOfSamples: 1},
	}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var session struct {
		SessionInfo SessionInfo `json:"sessionInfo"`
	}
	c.result("retrieveSessionInfo", params, &session)
	if session.SessionInfo.CommandLine != "app --serve" || session.SessionInfo.NumberOfSamples != 4 || session.SessionInfo.NumberOfThreads != 3 {
		t.Fatalf("unexpected session info: %+v", session.SessionInfo)
	}

	var system struct {
		SystemInfo SystemInfo `json:"systemInfo"`
	}
	c.result("retrieveSystemInfo", params, &system)
	if diff := testutil.Diff(system.SystemInfo, SystemInfo{Hostname: "builder", Platform: "linux", NumberOfProcessors: 4}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var processes struct {
		Processes []Process `json:"processes"`
	}
	c.result("retrieveProcesses", params, &processes)
	if len(processes.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(processes.Processes))
	}
	var threads []uint64
	for _, th := range processes.Processes[0].Threads {
		threads = append(threads, th.Key)
	}
	if diff := testutil.Diff(threads, []uint64{10, 11}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var closed struct {
		Success bool `json:"success"`
	}
	c.result("closeDocument", params, &closed)
	if !closed.Success {
		t.Fatal("expected the document to be closed")
	}
	if code := c.errorCode("retrieveSessionInfo", params); code != CodeNotFound {
		t.Fatalf("expected code %d, got %d", CodeNotFound, code)
	}
}

func TestCallTreeMethods(t *testing.T) {
	c := newTestClient(t)
	id := c.open()
	params := map[string]interface{}{"documentId": id, "processKey": 1}

	var tree CallTree
	c.result("retrieveCallTree", params, &tree)
	want := nodeSummary{
		Name:  "app (PID: 100)",
		Total: 3,
		Children: []nodeSummary{
			{Name: "main", Total: 3, Self: 1, Children: []nodeSummary{
				{Name: "work", Total: 2, Self: 2},
			}},
		},
	}
	if diff := testutil.Diff(summarizeNode(tree.Root), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if tree.Samples != 2 || tree.Weight != 3 {
		t.Fatalf("unexpected tree totals: %d samples, weight %d", tree.Samples, tree.Weight)
	}
	if main := tree.Root.Children[0]; main.File != "/src/main.c" || main.Hits.TotalPercent != 100 {
		t.Fatalf("unexpected main node: %+v", main)
	}

	var hot CallTree
	c.result("retrieveCallTreeHotPath", map[string]interface{}{"documentId": id, "processKey": "1"}, &hot)
	if diff := testutil.Diff(hot.HotPath, []int{0, 1, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var expanded struct {
		NodeID   int    `json:"nodeId"`
		Children []Node `json:"children"`
	}
	c.result("expandCallTreeNode", map[string]interface{}{"documentId": id, "processKey": 1, "nodeId": 1}, &expanded)
	if len(expanded.Children) != 1 || expanded.Children[0].Name != "work" || expanded.Children[0].HasChildren {
		t.Fatalf("unexpected children: %+v", expanded.Children)
	}
	if code := c.errorCode("expandCallTreeNode", map[string]interface{}{"documentId": id, "processKey": 1, "nodeId": 42}); code != CodeNotFound {
		t.Fatalf("expected code %d, got %d", CodeNotFound, code)
	}

	var exported speedscope.Output
	c.result("exportSpeedscope", params, &exported)
	if len(exported.Profiles) != 1 {
		t.Fatalf("expected one profile, got %d", len(exported.Profiles))
	}
	if diff := testutil.Diff(exported.Profiles[0].Weights, []uint64{1, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if exported.Profiles[0].Unit != speedscope.ValueUnitNone || exported.Profiles[0].EndValue != 3 {
		t.Fatalf("unexpected profile: %+v", exported.Profiles[0])
	}

	var filtered CallTree
	c.result("setSampleFilters", map[string]interface{}{"documentId": id, "threadIds": []uint64{10}}, &struct{}{})
	c.result("retrieveCallTree", params, &filtered)
	if filtered.Root.Hits.TotalSamples != 1 {
		t.Fatalf("expected the filter to apply, got root total %d", filtered.Root.Hits.TotalSamples)
	}
}

func TestFunctionMethods(t *testing.T) {
	c := newTestClient(t)
	id := c.open()

	var page struct {
		Functions      []Function `json:"functions"`
		TotalFunctions int        `json:"totalFunctions"`
	}
	c.result("retrieveFunctionsPage", map[string]interface{}{
		"documentId": id, "processKey": 1, "sortBy": "self", "sortOrder": "desc", "pageSize": 1, "pageIndex": 0,
	}, &page)
	if page.TotalFunctions != 2 || len(page.Functions) != 1 || page.Functions[0].Name != "work" {
		t.Fatalf("unexpected page: %+v", page)
	}
	workID := page.Functions[0].ID

	var edges struct {
		Function Function   `json:"function"`
		Callers  []Function `json:"callers"`
		Callees  []Function `json:"callees"`
	}
	c.result("retrieveCallersCallees", map[string]interface{}{"documentId": id, "processKey": 1, "functionId": workID}, &edges)
	if len(edges.Callers) != 1 || edges.Callers[0].Name != "main" || edges.Callers[0].Hits.TotalSamples != 2 {
		t.Fatalf("unexpected callers: %+v", edges.Callers)
	}
	if len(edges.Callees) != 0 {
		t.Fatalf("expected no callee, got %+v", edges.Callees)
	}

	var lines struct {
		FilePath string     `json:"filePath"`
		Lines    []LineHits `json:"lines"`
	}
	c.result("retrieveLineInfo", map[string]interface{}{"documentId": id, "processKey": 1, "functionId": workID}, &lines)
	if lines.FilePath != "/src/work.c" || len(lines.Lines) != 1 || lines.Lines[0].Line != 10 {
		t.Fatalf("unexpected line info: %+v", lines)
	}

	var files struct {
		Files []File `json:"files"`
	}
	c.result("retrieveFiles", map[string]interface{}{"documentId": id, "processKey": 1}, &files)
	var paths []string
	for _, f := range files.Files {
		paths = append(paths, f.Path)
	}
	if diff := testutil.Diff(paths, []string{"/src/main.c", "/src/work.c"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	var locations struct {
		Locations []Location `json:"locations"`
	}
	c.result("retrieveLocations", map[string]interface{}{"documentId": id, "processKey": 1}, &locations)
	if len(locations.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %+v", locations.Locations)
	}

	var modules struct {
		Modules []Module `json:"modules"`
	}
	c.result("retrieveModules", map[string]interface{}{"documentId": id, "processKey": 1}, &modules)
	if len(modules.Modules) != 1 || modules.Modules[0].Name != "app" {
		t.Fatalf("unexpected modules: %+v", modules.Modules)
	}

	var hottest struct {
		Functions []HotFunction `json:"functions"`
	}
	c.result("retrieveHottestFunctions", map[string]interface{}{"documentId": id, "count": 1}, &hottest)
	if len(hottest.Functions) != 1 || hottest.Functions[0].ProcessKey != 1 || hottest.Functions[0].Name != "work" {
		t.Fatalf("unexpected hottest functions: %+v", hottest.Functions)
	}
}

func TestInvalidParams(t *testing.T) {
	c := newTestClient(t)
	id := c.open()

	tests := []struct {
		name   string
		method string
		params map[string]interface{}
		want   int
	}{
		{name: "missing document", method: "retrieveCallTree", params: map[string]interface{}{"processKey": 1}, want: CodeInvalidParams},
		{name: "missing process", method: "retrieveCallTree", params: map[string]interface{}{"documentId": id}, want: CodeInvalidParams},
		{name: "unknown document", method: "retrieveCallTree", params: map[string]interface{}{"documentId": "nope", "processKey": 1}, want: CodeNotFound},
		{name: "unknown process", method: "retrieveCallTree", params: map[string]interface{}{"documentId": id, "processKey": 9}, want: CodeNotFound},
		{name: "unknown source", method: "retrieveCallTree", params: map[string]interface{}{"documentId": id, "processKey": 1, "sourceId": 5}, want: CodeInvalidParams},
		{name: "source without stacks", method: "retrieveCallTree", params: map[string]interface{}{"documentId": id, "processKey": 1, "sourceId": 1}, want: CodeInvalidParams},
		{name: "bad sort field", method: "retrieveFunctionsPage", params: map[string]interface{}{"documentId": id, "processKey": 1, "sortBy": "size", "pageSize": 1}, want: CodeInvalidParams},
		{name: "bad page size", method: "retrieveFunctionsPage", params: map[string]interface{}{"documentId": id, "processKey": 1, "pageSize": 0}, want: CodeInvalidParams},
		{name: "missing function", method: "retrieveLineInfo", params: map[string]interface{}{"documentId": id, "processKey": 1}, want: CodeInvalidParams},
		{name: "unknown function", method: "retrieveLineInfo", params: map[string]interface{}{"documentId": id, "processKey": 1, "functionId": 99}, want: CodeNotFound},
		{name: "zero count", method: "retrieveHottestFunctions", params: map[string]interface{}{"documentId": id}, want: CodeInvalidParams},
		{name: "inverted time range", method: "setSampleFilters", params: map[string]interface{}{"documentId": id, "minTime": 10, "maxTime": 5}, want: CodeInvalidParams},
		{name: "missing file", method: "readDocument", params: map[string]interface{}{"filePath": "/does/not/exist.json"}, want: CodeNotFound},
		{name: "no summary storage", method: "retrieveAnalysisSummary", params: map[string]interface{}{"documentId": id, "processKey": 1}, want: CodeNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c.t = t
			if code := c.errorCode(test.method, test.params); code != test.want {
				t.Fatalf("expected code %d, got %d", test.want, code)
			}
		})
	}
}
