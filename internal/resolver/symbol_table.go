package resolver

import (
	"fmt"
	"path"
	"sort"

	"github.com/ianlancetaylor/demangle"

	"github.com/getsentry/hotspot/internal/frame"
)

type (
	// LineEntry maps the first address of an instruction range to a source
	// line.
	LineEntry struct {
		Address uint64 `json:"address"`
		Line    uint32 `json:"line"`
	}

	Symbol struct {
		Name string `json:"name"`
		// Start is the absolute address of the first instruction.
		Start uint64 `json:"start"`
		// Size of 0 means the symbol extends up to the next one.
		Size         uint64      `json:"size,omitempty"`
		File         string      `json:"file,omitempty"`
		FunctionLine uint32      `json:"function_line,omitempty"`
		Lines        []LineEntry `json:"lines,omitempty"`
	}

	Module struct {
		Name    string   `json:"name"`
		Path    string   `json:"path,omitempty"`
		Base    uint64   `json:"base"`
		Size    uint64   `json:"size"`
		Symbols []Symbol `json:"symbols,omitempty"`
	}

	// SymbolTable resolves addresses against a static set of modules. It is
	// immutable after construction and safe for concurrent use.
	SymbolTable struct {
		modules []Module
		paths   *PathMap
	}
)

// DisplayName returns the module name, falling back to the basename of its
// path.
func (m Module) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Path != "" {
		return path.Base(m.Path)
	}
	return frame.Unknown
}

func (m Module) contains(addr uint64) bool {
	return addr >= m.Base && addr-m.Base < m.Size
}

// NewSymbolTable copies and sorts modules by base address and symbols by
// start address. Symbol names are demangled. When ranges overlap, the module
// with the highest base containing an address wins.
func NewSymbolTable(modules []Module, paths *PathMap) (*SymbolTable, error) {
	sorted := make([]Module, 0, len(modules))
	for _, m := range modules {
		if m.Size == 0 {
			return nil, fmt.Errorf("resolver: module %q at 0x%x has no size", m.DisplayName(), m.Base)
		}
		symbols := make([]Symbol, len(m.Symbols))
		for i, s := range m.Symbols {
			s.Name = demangle.Filter(s.Name)
			if len(s.Lines) > 0 {
				lines := make([]LineEntry, len(s.Lines))
				copy(lines, s.Lines)
				sort.SliceStable(lines, func(i, j int) bool {
					return lines[i].Address < lines[j].Address
				})
				s.Lines = lines
			}
			symbols[i] = s
		}
		sort.SliceStable(symbols, func(i, j int) bool {
			return symbols[i].Start < symbols[j].Start
		})
		m.Symbols = symbols
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Base < sorted[j].Base
	})
	return &SymbolTable{modules: sorted, paths: paths}, nil
}

func (t *SymbolTable) Modules() []Module {
	return t.modules
}

func (t *SymbolTable) Resolve(addr uint64) frame.Frame {
	m := t.findModule(addr)
	if m == nil {
		return frame.Placeholder(addr)
	}
	f := frame.Frame{
		InstructionAddr: addr,
		Symbol:          frame.Unknown,
		Module:          m.DisplayName(),
	}
	s := findSymbol(m.Symbols, addr)
	if s == nil {
		return f
	}
	f.Symbol = s.Name
	f.File = t.paths.Apply(s.File)
	f.FunctionLine = s.FunctionLine
	f.Line = s.FunctionLine
	if i := sort.Search(len(s.Lines), func(i int) bool {
		return s.Lines[i].Address > addr
	}); i > 0 {
		f.Line = s.Lines[i-1].Line
	}
	return f
}

func (t *SymbolTable) findModule(addr uint64) *Module {
	i := sort.Search(len(t.modules), func(i int) bool {
		return t.modules[i].Base > addr
	})
	for j := i - 1; j >= 0; j-- {
		if t.modules[j].contains(addr) {
			return &t.modules[j]
		}
	}
	return nil
}

func findSymbol(symbols []Symbol, addr uint64) *Symbol {
	i := sort.Search(len(symbols), func(i int) bool {
		return symbols[i].Start > addr
	})
	if i == 0 {
		return nil
	}
	s := &symbols[i-1]
	if s.Size != 0 && addr-s.Start >= s.Size {
		return nil
	}
	return s
}
