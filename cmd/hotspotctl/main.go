// hotspotctl queries a running hotspot server.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/hotspot/internal/logutil"
)

func main() {
	logutil.ConfigureLogger("info")
	if err := newRootCmd(os.Stdout).ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatal().Err(err).Msg("command failed")
		}
	}
}

// newRootCmd builds the command tree. Every flag of the root command can
// also be set through a HOTSPOT_ prefixed environment variable.
func newRootCmd(out io.Writer) *ffcli.Command {
	g := &globals{out: out}
	set := flag.NewFlagSet("hotspotctl", flag.ExitOnError)
	set.StringVar(&g.host, "host", "http://localhost:8080", "address of the hotspot server")
	set.DurationVar(&g.timeout, "timeout", defaultTimeout, "request timeout")
	set.IntVar(&g.retries, "retries", 0, "retries on transport errors")
	set.BoolVar(&g.json, "json", false, "print raw JSON results")

	return &ffcli.Command{
		Name:       "hotspotctl",
		ShortUsage: "hotspotctl [flags] <subcommand> [flags] [args]",
		ShortHelp:  "Open traces and query their analyses on a hotspot server",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix("HOTSPOT")},
		Subcommands: []*ffcli.Command{
			newOpenCmd(g),
			newCloseCmd(g),
			newProcessesCmd(g),
			newTreeCmd(g),
			newTopCmd(g),
			newModulesCmd(g),
			newExportCmd(g),
			newCallCmd(g),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}
