package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/getsentry/hotspot/internal/client"
	"github.com/getsentry/hotspot/internal/rpc"
)

const defaultTimeout = 30 * time.Second

type (
	globals struct {
		out     io.Writer
		host    string
		timeout time.Duration
		retries int
		json    bool
	}

	// target selects the analysis of one process of a document.
	target struct {
		documentID string
		processKey uint64
		sourceID   int
		merge      bool
		normalize  bool
	}

	selectionParams struct {
		DocumentID string  `json:"documentId"`
		ProcessKey *uint64 `json:"processKey,omitempty"`
		SourceID   *int    `json:"sourceId,omitempty"`
		Merge      bool    `json:"merge,omitempty"`
		Normalize  bool    `json:"normalize,omitempty"`
	}
)

func (g *globals) client() (*client.Client, error) {
	return client.New(g.host, client.WithTimeout(g.timeout), client.WithRetries(g.retries))
}

// call runs method and either prints the raw result or decodes it into
// result for the caller to format.
func (g *globals) call(ctx context.Context, method string, params, result interface{}) (bool, error) {
	c, err := g.client()
	if err != nil {
		return false, err
	}
	if !g.json {
		return false, c.Call(ctx, method, params, result)
	}
	var raw gojson.RawMessage
	if err := c.Call(ctx, method, params, &raw); err != nil {
		return false, err
	}
	_, err = fmt.Fprintln(g.out, string(raw))
	return true, err
}

func (t *target) register(set *flag.FlagSet, withProcess bool) {
	set.StringVar(&t.documentID, "doc", "", "document id returned by open")
	if withProcess {
		set.Uint64Var(&t.processKey, "process", 0, "process key")
	}
	set.IntVar(&t.sourceID, "source", -1, "sample source id, the first source with stacks when negative")
	set.BoolVar(&t.merge, "merge", false, "merge every source with stacks")
	set.BoolVar(&t.normalize, "normalize", false, "report merged weights in nanoseconds")
}

func (t target) params(withProcess bool) (selectionParams, error) {
	if t.documentID == "" {
		return selectionParams{}, errors.New("-doc is required")
	}
	p := selectionParams{DocumentID: t.documentID, Merge: t.merge, Normalize: t.normalize}
	if withProcess {
		key := t.processKey
		p.ProcessKey = &key
	}
	if t.sourceID >= 0 {
		id := t.sourceID
		p.SourceID = &id
	}
	return p, nil
}

func newOpenCmd(g *globals) *ffcli.Command {
	return &ffcli.Command{
		Name:       "open",
		ShortUsage: "open <path>",
		ShortHelp:  "Open a trace or pprof profile on the server and print its document id",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			var result struct {
				DocumentID string `json:"documentId"`
			}
			printed, err := g.call(ctx, "readDocument", map[string]string{"filePath": args[0]}, &result)
			if err != nil || printed {
				return err
			}
			_, err = fmt.Fprintln(g.out, result.DocumentID)
			return err
		},
	}
}

func newCloseCmd(g *globals) *ffcli.Command {
	return &ffcli.Command{
		Name:       "close",
		ShortUsage: "close <document id>",
		ShortHelp:  "Close a document",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			_, err := g.call(ctx, "closeDocument", map[string]string{"documentId": args[0]}, nil)
			return err
		},
	}
}

func newProcessesCmd(g *globals) *ffcli.Command {
	var t target
	set := flag.NewFlagSet("processes", flag.ExitOnError)
	t.register(set, false)
	return &ffcli.Command{
		Name:       "processes",
		ShortUsage: "processes -doc <id>",
		ShortHelp:  "List the processes of a document",
		FlagSet:    set,
		Exec: func(ctx context.Context, _ []string) error {
			p, err := t.params(false)
			if err != nil {
				return err
			}
			var result struct {
				Processes []rpc.Process `json:"processes"`
			}
			printed, err := g.call(ctx, "retrieveProcesses", map[string]string{"documentId": p.DocumentID}, &result)
			if err != nil || printed {
				return err
			}
			w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tPID\tTHREADS\tNAME")
			for _, proc := range result.Processes {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", proc.Key, proc.OSID, len(proc.Threads), proc.Name)
			}
			return w.Flush()
		},
	}
}

func newTreeCmd(g *globals) *ffcli.Command {
	var (
		t     target
		full  bool
		depth int
	)
	set := flag.NewFlagSet("tree", flag.ExitOnError)
	t.register(set, true)
	set.BoolVar(&full, "full", false, "print the whole tree instead of the hot path")
	set.IntVar(&depth, "depth", 0, "maximum depth printed, unlimited when 0")
	return &ffcli.Command{
		Name:       "tree",
		ShortUsage: "tree -doc <id> -process <key> [flags]",
		ShortHelp:  "Print the call tree of a process",
		FlagSet:    set,
		Exec: func(ctx context.Context, _ []string) error {
			p, err := t.params(true)
			if err != nil {
				return err
			}
			method := "retrieveCallTreeHotPath"
			if full {
				method = "retrieveCallTree"
			}
			var result rpc.CallTree
			printed, err := g.call(ctx, method, p, &result)
			if err != nil || printed {
				return err
			}
			return printNode(g.out, result.Root, 0, depth)
		},
	}
}

func printNode(w io.Writer, n rpc.Node, level, depth int) error {
	if depth > 0 && level >= depth {
		return nil
	}
	marker := " "
	if n.HasChildren && len(n.Children) == 0 {
		marker = "+"
	}
	_, err := fmt.Fprintf(w, "%6.2f%% %6.2f%% %s%s%s\n",
		n.Hits.TotalPercent, n.Hits.SelfPercent, strings.Repeat("  ", level), marker, n.Name)
	if err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := printNode(w, child, level+1, depth); err != nil {
			return err
		}
	}
	return nil
}

func newTopCmd(g *globals) *ffcli.Command {
	var (
		t     target
		count int
	)
	set := flag.NewFlagSet("top", flag.ExitOnError)
	t.register(set, false)
	set.IntVar(&count, "n", 20, "number of functions")
	return &ffcli.Command{
		Name:       "top",
		ShortUsage: "top -doc <id> [flags]",
		ShortHelp:  "Print the functions with the most self samples across processes",
		FlagSet:    set,
		Exec: func(ctx context.Context, _ []string) error {
			p, err := t.params(false)
			if err != nil {
				return err
			}
			params := struct {
				selectionParams
				Count int `json:"count"`
			}{selectionParams: p, Count: count}
			var result struct {
				Functions []rpc.HotFunction `json:"functions"`
			}
			printed, err := g.call(ctx, "retrieveHottestFunctions", params, &result)
			if err != nil || printed {
				return err
			}
			w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SELF\tSELF%\tPROCESS\tMODULE\tFUNCTION")
			for _, f := range result.Functions {
				fmt.Fprintf(w, "%d\t%.2f\t%d\t%s\t%s\n", f.Hits.SelfSamples, f.Hits.SelfPercent, f.ProcessKey, f.Module, f.Name)
			}
			return w.Flush()
		},
	}
}

func newModulesCmd(g *globals) *ffcli.Command {
	var t target
	set := flag.NewFlagSet("modules", flag.ExitOnError)
	t.register(set, true)
	return &ffcli.Command{
		Name:       "modules",
		ShortUsage: "modules -doc <id> -process <key> [flags]",
		ShortHelp:  "Print the modules of a process by total hits",
		FlagSet:    set,
		Exec: func(ctx context.Context, _ []string) error {
			p, err := t.params(true)
			if err != nil {
				return err
			}
			var result struct {
				Modules []rpc.Module `json:"modules"`
			}
			printed, err := g.call(ctx, "retrieveModules", p, &result)
			if err != nil || printed {
				return err
			}
			w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOTAL\tTOTAL%\tSELF\tMODULE")
			for _, m := range result.Modules {
				fmt.Fprintf(w, "%d\t%.2f\t%d\t%s\n", m.Hits.TotalSamples, m.Hits.TotalPercent, m.Hits.SelfSamples, m.Name)
			}
			return w.Flush()
		},
	}
}

func newExportCmd(g *globals) *ffcli.Command {
	var (
		t      target
		output string
	)
	set := flag.NewFlagSet("export", flag.ExitOnError)
	t.register(set, true)
	set.StringVar(&output, "o", "", "file to write, stdout when empty")
	return &ffcli.Command{
		Name:       "export",
		ShortUsage: "export -doc <id> -process <key> [-o file.speedscope.json]",
		ShortHelp:  "Export the call tree of a process for speedscope",
		FlagSet:    set,
		Exec: func(ctx context.Context, _ []string) error {
			p, err := t.params(true)
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			var raw gojson.RawMessage
			if err := c.Call(ctx, "exportSpeedscope", p, &raw); err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(g.out, string(raw))
				return err
			}
			return os.WriteFile(output, raw, 0o644)
		},
	}
}

// newCallCmd sends any method with JSON params and prints the raw result.
func newCallCmd(g *globals) *ffcli.Command {
	return &ffcli.Command{
		Name:       "call",
		ShortUsage: "call <method> [json params]",
		ShortHelp:  "Call a method and print its JSON result",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 || len(args) > 2 {
				return flag.ErrHelp
			}
			var params interface{}
			if len(args) == 2 {
				if !gojson.Valid([]byte(args[1])) {
					return fmt.Errorf("params are not valid JSON: %s", args[1])
				}
				params = gojson.RawMessage(args[1])
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			var raw gojson.RawMessage
			if err := c.Call(ctx, args[0], params, &raw); err != nil {
				return err
			}
			_, err = fmt.Fprintln(g.out, string(raw))
			return err
		},
	}
}
