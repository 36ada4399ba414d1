package main

import (
	"context"

	gojson "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/getsentry/hotspot/internal/rpc"
)

type tool struct {
	method      string
	description string
	options     []mcp.ToolOption
}

func documentID() mcp.ToolOption {
	return mcp.WithString("documentId", mcp.Required(), mcp.Description("Id returned by readDocument"))
}

func processKey() mcp.ToolOption {
	return mcp.WithNumber("processKey", mcp.Required(), mcp.Description("Key of the process, see retrieveProcesses"))
}

func selection() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("sourceId", mcp.Description("Sample source to analyze, the first source with stacks by default")),
		mcp.WithBoolean("merge", mcp.Description("Merge every source with stacks into one tree")),
		mcp.WithBoolean("normalize", mcp.Description("Convert merged sample weights to nanoseconds")),
	}
}

func processTool(method, description string, options ...mcp.ToolOption) tool {
	options = append([]mcp.ToolOption{documentID(), processKey()}, options...)
	return tool{method: method, description: description, options: append(options, selection()...)}
}

var tools = []tool{
	{
		method:      "readDocument",
		description: "Open a trace (.json, .json.lz4) or pprof profile (.pb.gz, .pprof) for analysis",
		options:     []mcp.ToolOption{mcp.WithString("filePath", mcp.Required(), mcp.Description("Absolute path of the file"))},
	},
	{method: "closeDocument", description: "Close a document", options: []mcp.ToolOption{documentID()}},
	{
		method:      "setSampleFilters",
		description: "Restrict analyses to a time range in nanoseconds and a set of threads",
		options: []mcp.ToolOption{
			documentID(),
			mcp.WithNumber("minTime", mcp.Description("Earliest sample timestamp in nanoseconds")),
			mcp.WithNumber("maxTime", mcp.Description("Latest sample timestamp in nanoseconds")),
			mcp.WithArray("threadIds", mcp.Description("Thread keys to keep"), mcp.Items(map[string]any{"type": "number"})),
		},
	},
	{method: "retrieveSampleSources", description: "List the sample sources of a document", options: []mcp.ToolOption{documentID()}},
	{method: "retrieveSessionInfo", description: "Describe the recording session", options: []mcp.ToolOption{documentID()}},
	{method: "retrieveSystemInfo", description: "Describe the recorded system", options: []mcp.ToolOption{documentID()}},
	{method: "retrieveProcesses", description: "List processes and their threads", options: []mcp.ToolOption{documentID()}},
	processTool("retrieveCallTree", "Return the full call tree of a process"),
	processTool("retrieveCallTreeHotPath", "Return the call tree with only its hot path expanded"),
	processTool("expandCallTreeNode", "Return the children of a call tree node",
		mcp.WithNumber("nodeId", mcp.Required(), mcp.Description("Id of the node to expand"))),
	{
		method:      "retrieveHottestFunctions",
		description: "Return the functions with the most self samples across every process",
		options: append([]mcp.ToolOption{
			documentID(),
			mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of functions to return")),
		}, selection()...),
	},
	processTool("retrieveFunctionsPage", "Return one page of the functions of a process",
		mcp.WithString("sortBy", mcp.Enum("name", "self", "total")),
		mcp.WithString("sortOrder", mcp.Enum("asc", "desc")),
		mcp.WithNumber("pageSize", mcp.Required()),
		mcp.WithNumber("pageIndex"),
	),
	processTool("retrieveCallersCallees", "Return the callers and callees of a function",
		mcp.WithNumber("functionId", mcp.Required(), mcp.Description("Function id, -1 for the process root")),
		mcp.WithNumber("maxEntries", mcp.Description("Maximum callers and callees to return")),
	),
	processTool("retrieveLineInfo", "Return the hits of every line of a function",
		mcp.WithNumber("functionId", mcp.Required())),
	processTool("retrieveFiles", "Return the source files of a process by total hits"),
	processTool("retrieveLocations", "Return the hits per source line",
		mcp.WithNumber("fileId", mcp.Description("Restrict to one file"))),
	processTool("retrieveModules", "Return the modules of a process by total hits"),
	processTool("exportSpeedscope", "Return the call tree of a process as a speedscope document"),
}

// newServer exposes every registered method as a tool taking the method
// parameters as arguments.
func newServer(registry *rpc.Registry) *server.MCPServer {
	s := server.NewMCPServer("hotspot", release, server.WithLogging())
	for _, t := range tools {
		options := append([]mcp.ToolOption{mcp.WithDescription(t.description)}, t.options...)
		s.AddTool(mcp.NewTool(t.method, options...), callMethod(registry, t.method))
	}
	return s
}

func callMethod(registry *rpc.Registry, method string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := gojson.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp := registry.Handle(ctx, rpc.Request{
			JSONRPC: rpc.Version,
			ID:      gojson.RawMessage("1"),
			Method:  method,
			Params:  params,
		})
		if resp.Error != nil {
			return mcp.NewToolResultError(resp.Error.Message), nil
		}
		b, err := gojson.Marshal(resp.Result)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}
