// Package pprofconv converts pprof profiles into trace documents.
//
// pprof locations carry symbols instead of raw addresses. Every frame of
// every location, inlined frames included, gets a synthetic address in a
// per-mapping module so that replay resolves it back to the same symbol.
package pprofconv

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/pprof/profile"

	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/timeutil"
	"github.com/getsentry/hotspot/internal/trace"
)

const (
	// DefaultProcessKey is used for samples without a pid label.
	DefaultProcessKey = 1

	firstAddress = 0x1000
)

type threadKey struct {
	pid int64
	tid int64
}

type converter struct {
	p      *profile.Profile
	t      *trace.Trace
	stacks *trace.StackCache

	// addrs maps a location id to the synthetic addresses of its frames,
	// innermost first.
	addrs   map[uint64][]uint64
	threads map[threadKey]uint64
	next    uint64
}

// ReadFile parses a pprof file, gzip compressed or not.
func ReadFile(name string) (*trace.Trace, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) (*trace.Trace, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("pprofconv: %w: %s", errorutil.ErrInvalidRequest, err.Error())
	}
	return Convert(p)
}

// Convert builds an indexed trace from a parsed profile.
func Convert(p *profile.Profile) (*trace.Trace, error) {
	c := converter{
		p:       p,
		t:       &trace.Trace{},
		stacks:  trace.NewStackCache(),
		addrs:   make(map[uint64][]uint64),
		threads: make(map[threadKey]uint64),
		next:    firstAddress,
	}
	c.session()
	c.modules()
	c.sources()
	c.samples()
	c.t.Stacks = c.stacks.Stacks()
	if err := c.t.Index(); err != nil {
		return nil, err
	}
	return c.t, nil
}

func (c *converter) session() {
	c.t.Session = trace.Session{
		CommandLine: strings.Join(c.p.Comments, " "),
		Runtime:     time.Duration(c.p.DurationNanos),
	}
	if c.p.TimeNanos > 0 {
		c.t.Session.Date = timeutil.Time(time.Unix(0, c.p.TimeNanos).UTC())
	}
	c.t.System = trace.System{Platform: "pprof"}
}

// modules allocates one contiguous address range per mapping. Locations
// without a mapping share an anonymous module.
func (c *converter) modules() {
	byMapping := make(map[*profile.Mapping][]*profile.Location)
	var mappings []*profile.Mapping
	for _, loc := range c.p.Location {
		if _, ok := byMapping[loc.Mapping]; !ok {
			mappings = append(mappings, loc.Mapping)
		}
		byMapping[loc.Mapping] = append(byMapping[loc.Mapping], loc)
	}
	for _, m := range mappings {
		module := resolver.Module{Base: c.next}
		if m != nil && m.File != "" {
			module.Path = m.File
			module.Name = path.Base(m.File)
		}
		for _, loc := range byMapping[m] {
			n := max(len(loc.Line), 1)
			addrs := make([]uint64, 0, n)
			for i := 0; i < n; i++ {
				addr := c.next
				c.next++
				addrs = append(addrs, addr)
				if i >= len(loc.Line) || loc.Line[i].Function == nil {
					continue
				}
				line := loc.Line[i]
				module.Symbols = append(module.Symbols, resolver.Symbol{
					Name:         line.Function.Name,
					Start:        addr,
					Size:         1,
					File:         line.Function.Filename,
					FunctionLine: uint32(line.Function.StartLine),
					Lines:        []resolver.LineEntry{{Address: addr, Line: uint32(line.Line)}},
				})
			}
			c.addrs[loc.ID] = addrs
		}
		module.Size = c.next - module.Base
		if module.Size == 0 {
			continue
		}
		c.t.Modules = append(c.t.Modules, trace.Module{Module: module})
	}
}

// sources creates one sample source per sample type. The average rate is
// the number of samples with a non-zero value per second of profile.
func (c *converter) sources() {
	counts := make([]uint64, len(c.p.SampleType))
	for _, s := range c.p.Sample {
		for i, v := range s.Value {
			if i < len(counts) && v != 0 {
				counts[i]++
			}
		}
	}
	for i, st := range c.p.SampleType {
		source := samplesource.Source{
			ID:              i,
			Name:            st.Type,
			NumberOfSamples: counts[i],
			HasStacks:       true,
		}
		if st.Unit != "" && st.Unit != "count" {
			source.Name = st.Type + " (" + st.Unit + ")"
		}
		if c.p.DurationNanos > 0 {
			source.AverageSamplingRate = float64(counts[i]) / time.Duration(c.p.DurationNanos).Seconds()
		}
		c.t.Sources = append(c.t.Sources, source)
	}
}

func (c *converter) samples() {
	processes := make(map[int64]bool)
	for _, s := range c.p.Sample {
		pid := labelValue(s, "pid", DefaultProcessKey)
		tid := labelValue(s, "tid", 0)
		processes[pid] = true
		thread := c.thread(pid, tid)

		var addrs []uint64
		for _, loc := range s.Location {
			addrs = append(addrs, c.addrs[loc.ID]...)
		}
		stackID := trace.NoStack
		if len(addrs) > 0 {
			stackID = c.stacks.Insert(addrs)
		}
		for i, v := range s.Value {
			if v <= 0 || i >= len(c.t.Sources) {
				continue
			}
			c.t.Samples = append(c.t.Samples, trace.RawSample{
				ProcessKey: uint64(pid),
				ThreadKey:  thread,
				SourceID:   i,
				StackID:    stackID,
				Weight:     uint64(v),
			})
		}
	}

	pids := make([]int64, 0, len(processes))
	for pid := range processes {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		c.t.Processes = append(c.t.Processes, trace.Process{
			Key:     uint64(pid),
			OSID:    uint32(pid),
			Name:    c.processName(),
			EndTime: time.Duration(c.p.DurationNanos),
		})
	}
}

func (c *converter) thread(pid, tid int64) uint64 {
	k := threadKey{pid: pid, tid: tid}
	if key, ok := c.threads[k]; ok {
		return key
	}
	key := uint64(len(c.threads) + 1)
	c.threads[k] = key
	c.t.Threads = append(c.t.Threads, trace.Thread{
		Key:        key,
		ProcessKey: uint64(pid),
		OSID:       uint32(tid),
		EndTime:    time.Duration(c.p.DurationNanos),
	})
	return key
}

// processName is the basename of the main binary, which pprof lists as
// the first mapping.
func (c *converter) processName() string {
	if len(c.p.Mapping) > 0 && c.p.Mapping[0].File != "" {
		return path.Base(c.p.Mapping[0].File)
	}
	return "pprof"
}

func labelValue(s *profile.Sample, key string, fallback int64) int64 {
	if values := s.NumLabel[key]; len(values) > 0 {
		return values[0]
	}
	return fallback
}
