package frame

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Unknown is the placeholder used for symbols and modules that could not be
// resolved.
const Unknown = "[unknown]"

type (
	// Frame is a best-effort symbolic view of one instruction address.
	Frame struct {
		InstructionAddr uint64 `json:"instruction_addr,omitempty"`
		Symbol          string `json:"symbol"`
		Module          string `json:"module"`
		File            string `json:"file,omitempty"`
		FunctionLine    uint32 `json:"function_line,omitempty"`
		Line            uint32 `json:"line,omitempty"`
	}

	// Key is the call-tree identity of a frame. File and line information
	// never takes part in it.
	Key struct {
		Symbol string `json:"symbol"`
		Module string `json:"module"`
	}
)

// Placeholder returns the frame used for an address nothing is known about.
func Placeholder(addr uint64) Frame {
	return Frame{
		InstructionAddr: addr,
		Symbol:          Unknown,
		Module:          Unknown,
	}
}

func (f Frame) Key() Key {
	return Key{Symbol: f.SymbolName(), Module: f.ModuleName()}
}

// SymbolName returns the symbol, or the placeholder when it is empty.
func (f Frame) SymbolName() string {
	if f.Symbol == "" {
		return Unknown
	}
	return f.Symbol
}

// ModuleName returns the module, or the placeholder when it is empty.
func (f Frame) ModuleName() string {
	if f.Module == "" {
		return Unknown
	}
	return f.Module
}

// HasLocation reports whether the frame carries source file information.
func (f Frame) HasLocation() bool {
	return f.File != ""
}

// IsResolved reports whether a symbol was found for the frame.
func (f Frame) IsResolved() bool {
	return f.Symbol != "" && f.Symbol != Unknown
}

func (k Key) String() string {
	return k.Module + "!" + k.Symbol
}

// Fingerprint hashes the key. Placeholders are hashed with a marker so that
// "A -> unknown -> B" never collides with "A -> B".
func (k Key) Fingerprint() uint64 {
	h := xxhash.New()
	k.WriteToHash(h)
	return h.Sum64()
}

func (k Key) WriteToHash(h *xxhash.Digest) {
	module, symbol := k.Module, k.Symbol
	if module == "" {
		module = "$m"
	}
	if symbol == "" {
		symbol = "$s"
	}
	_, _ = h.WriteString(module)
	_, _ = h.WriteString("!")
	_, _ = h.WriteString(symbol)
}

// AddressString formats the instruction address the way it is displayed to
// users.
func (f Frame) AddressString() string {
	return "0x" + strconv.FormatUint(f.InstructionAddr, 16)
}
