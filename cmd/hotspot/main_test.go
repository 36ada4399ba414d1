package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	gojson "github.com/goccy/go-json"

	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/rpc"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/trace"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	env, err := newEnvironment(context.Background(), ServiceConfig{
		StorageURL:     "mem://",
		PathMap:        []string{"/build/=/src/"},
		MaxRequestSize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(env.shutdown)
	router, err := env.newRouter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func writeTestTrace(t *testing.T) string {
	t.Helper()
	tr := &trace.Trace{
		Sources:   []samplesource.Source{{ID: 0, Name: "timer", AverageSamplingRate: 1000, HasStacks: true}},
		Processes: []trace.Process{{Key: 1, OSID: 10, Name: "app"}},
		Threads:   []trace.Thread{{Key: 1, ProcessKey: 1, OSID: 11}},
		Modules: []trace.Module{{Module: resolver.Module{
			Name:    "app",
			Base:    0x1000,
			Size:    0x100,
			Symbols: []resolver.Symbol{{Name: "main", Start: 0x1000, File: "/build/main.c"}},
		}}},
		Stacks:  [][]uint64{{0x1010}},
		Samples: []trace.RawSample{{ProcessKey: 1, ThreadKey: 1, StackID: 0}},
	}
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := trace.WriteFile(path, tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func post(t *testing.T, server *httptest.Server, method string, params interface{}, result interface{}) {
	t.Helper()
	p, err := gojson.Marshal(params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := gojson.Marshal(rpc.Request{JSONRPC: rpc.Version, ID: gojson.RawMessage("1"), Method: method, Params: p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, _ = bw.Write(body)
	_ = bw.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/rpc", &compressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("Content-Encoding", "br")
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var decoded struct {
		Result gojson.RawMessage `json:"result"`
		Error  *rpc.Error        `json:"error"`
	}
	if err := gojson.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Error != nil {
		t.Fatalf("%s: unexpected error: %v", method, decoded.Error)
	}
	if err := gojson.Unmarshal(decoded.Result, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)
	resp, err := server.Client().Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.StatusCode)
	}
}

func TestPostRPC(t *testing.T) {
	server := newTestServer(t)

	var opened struct {
		DocumentID string `json:"documentId"`
	}
	post(t, server, "readDocument", map[string]string{"filePath": writeTestTrace(t)}, &opened)

	var tree rpc.CallTree
	post(t, server, "retrieveCallTree", map[string]interface{}{"documentId": opened.DocumentID, "processKey": 1}, &tree)
	if len(tree.Root.Children) != 1 {
		t.Fatalf("expected one child of the root, got %+v", tree.Root)
	}
	if main := tree.Root.Children[0]; main.Name != "main" || main.File != "/src/main.c" {
		t.Fatalf("expected the path map to apply, got %+v", main)
	}

	var summary struct {
		DocumentID string `json:"document_id"`
		Samples    uint64 `json:"samples"`
	}
	post(t, server, "retrieveAnalysisSummary", map[string]interface{}{"documentId": opened.DocumentID, "processKey": 1}, &summary)
	if summary.DocumentID != opened.DocumentID || summary.Samples != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
