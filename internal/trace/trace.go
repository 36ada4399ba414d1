// Package trace holds the replayable trace document: descriptors of the
// recorded session, the modules mapped into each process, de-duplicated
// stacks of raw instruction addresses and the samples referencing them.
package trace

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/timeutil"
)

// NoStack marks a sample that was recorded without a call stack.
const NoStack = -1

type (
	Session struct {
		CommandLine       string        `json:"command_line"`
		Date              timeutil.Time `json:"date"`
		Runtime           time.Duration `json:"runtime"`
		NumberOfProcesses int           `json:"number_of_processes"`
		NumberOfThreads   int           `json:"number_of_threads"`
		NumberOfSamples   int           `json:"number_of_samples"`
	}

	System struct {
		Hostname           string `json:"hostname"`
		Platform           string `json:"platform"`
		Architecture       string `json:"architecture"`
		CPUName            string `json:"cpu_name"`
		NumberOfProcessors int    `json:"number_of_processors"`
	}

	// Process is identified by Key, unique within a trace. OSID is the
	// process id assigned by the operating system, which may be reused.
	Process struct {
		Key             uint64        `json:"key"`
		OSID            uint32        `json:"os_id"`
		Name            string        `json:"name"`
		StartTime       time.Duration `json:"start_time"`
		EndTime         time.Duration `json:"end_time"`
		ContextSwitches *uint64       `json:"context_switches,omitempty"`
	}

	Thread struct {
		Key             uint64        `json:"key"`
		ProcessKey      uint64        `json:"process_key"`
		OSID            uint32        `json:"os_id"`
		Name            string        `json:"name,omitempty"`
		StartTime       time.Duration `json:"start_time"`
		EndTime         time.Duration `json:"end_time"`
		ContextSwitches *uint64       `json:"context_switches,omitempty"`
	}

	// Module is mapped into the address space of one process. A zero
	// ProcessKey maps it into every process, as kernel images are.
	Module struct {
		ProcessKey uint64 `json:"process_key,omitempty"`
		resolver.Module
	}

	// RawSample references a stack by index. StackID is NoStack when the
	// sample has no call stack. A zero Weight counts as a single sample.
	RawSample struct {
		ProcessKey  uint64 `json:"process_key"`
		ThreadKey   uint64 `json:"thread_key"`
		SourceID    int    `json:"source_id"`
		StackID     int    `json:"stack_id"`
		Weight      uint64 `json:"weight,omitempty"`
		TimestampNS uint64 `json:"timestamp_ns"`
	}

	// Trace is read-only once Index returned successfully.
	Trace struct {
		Session   Session               `json:"session"`
		System    System                `json:"system"`
		Sources   []samplesource.Source `json:"sources"`
		Processes []Process             `json:"processes"`
		Threads   []Thread              `json:"threads"`
		Modules   []Module              `json:"modules"`
		// Stacks hold instruction addresses leaf first, as captured.
		Stacks  [][]uint64  `json:"stacks"`
		Samples []RawSample `json:"samples"`

		indexOnce sync.Once
		indexErr  error
		byProcess map[uint64][]int
	}
)

// EffectiveWeight returns the weight the sample contributes.
func (s RawSample) EffectiveWeight() uint64 {
	if s.Weight == 0 {
		return 1
	}
	return s.Weight
}

func (s RawSample) Timestamp() time.Duration {
	return time.Duration(s.TimestampNS)
}

// Index checks references between samples, stacks and processes and builds
// the per-process sample index. It is safe to call more than once.
func (t *Trace) Index() error {
	t.indexOnce.Do(func() {
		t.indexErr = t.index()
	})
	return t.indexErr
}

func (t *Trace) index() error {
	processes := make(map[uint64]struct{}, len(t.Processes))
	for _, p := range t.Processes {
		if _, exists := processes[p.Key]; exists {
			return fmt.Errorf("trace: %w: duplicate process key %d", errorutil.ErrInvalidRequest, p.Key)
		}
		processes[p.Key] = struct{}{}
	}
	sources := make(map[int]struct{}, len(t.Sources))
	for _, s := range t.Sources {
		sources[s.ID] = struct{}{}
	}
	t.byProcess = make(map[uint64][]int, len(t.Processes))
	for i, s := range t.Samples {
		if _, ok := processes[s.ProcessKey]; !ok {
			return fmt.Errorf("trace: %w: sample %d references unknown process %d", errorutil.ErrInvalidRequest, i, s.ProcessKey)
		}
		if _, ok := sources[s.SourceID]; !ok {
			return fmt.Errorf("trace: %w: sample %d references unknown source %d", errorutil.ErrInvalidRequest, i, s.SourceID)
		}
		if s.StackID != NoStack && (s.StackID < 0 || s.StackID >= len(t.Stacks)) {
			return fmt.Errorf("trace: %w: sample %d references unknown stack %d", errorutil.ErrInvalidRequest, i, s.StackID)
		}
		t.byProcess[s.ProcessKey] = append(t.byProcess[s.ProcessKey], i)
	}
	t.fillSessionCounts()
	return nil
}

func (t *Trace) fillSessionCounts() {
	if t.Session.NumberOfProcesses == 0 {
		t.Session.NumberOfProcesses = len(t.Processes)
	}
	if t.Session.NumberOfThreads == 0 {
		t.Session.NumberOfThreads = len(t.Threads)
	}
	if t.Session.NumberOfSamples == 0 {
		t.Session.NumberOfSamples = len(t.Samples)
	}
	counts := t.CountSamples()
	for i := range t.Sources {
		if t.Sources[i].NumberOfSamples == 0 {
			t.Sources[i].NumberOfSamples = counts[t.Sources[i].ID]
		}
	}
}

// CountSamples returns the number of samples recorded per source id.
func (t *Trace) CountSamples() map[int]uint64 {
	counts := make(map[int]uint64, len(t.Sources))
	for _, s := range t.Samples {
		counts[s.SourceID]++
	}
	return counts
}

// Registry returns the sample sources of the trace.
func (t *Trace) Registry() (*samplesource.Registry, error) {
	return samplesource.NewRegistry(t.Sources...)
}

func (t *Trace) Process(key uint64) (Process, bool) {
	for _, p := range t.Processes {
		if p.Key == key {
			return p, true
		}
	}
	return Process{}, false
}

// ThreadsOf returns the threads of a process ordered by key.
func (t *Trace) ThreadsOf(processKey uint64) []Thread {
	var threads []Thread
	for _, th := range t.Threads {
		if th.ProcessKey == processKey {
			threads = append(threads, th)
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].Key < threads[j].Key
	})
	return threads
}

// SampledProcesses returns the processes that have at least one sample,
// ordered by key.
func (t *Trace) SampledProcesses() []Process {
	var processes []Process
	for _, p := range t.Processes {
		if len(t.byProcess[p.Key]) > 0 {
			processes = append(processes, p)
		}
	}
	sort.Slice(processes, func(i, j int) bool {
		return processes[i].Key < processes[j].Key
	})
	return processes
}

// Resolver returns a symbol table over the modules mapped into a process.
func (t *Trace) Resolver(processKey uint64, paths *resolver.PathMap) (*resolver.SymbolTable, error) {
	var modules []resolver.Module
	for _, m := range t.Modules {
		if m.ProcessKey == 0 || m.ProcessKey == processKey {
			modules = append(modules, m.Module)
		}
	}
	return resolver.NewSymbolTable(modules, paths)
}
