// Package resolver turns instruction addresses into symbolic frames.
//
// A resolver never fails: addresses nothing is known about resolve to a
// placeholder frame so that analyses degrade instead of aborting.
package resolver

import (
	"github.com/getsentry/hotspot/internal/frame"
)

// Resolver maps an instruction address to a best-effort frame.
// Implementations shared between parallel builds must be safe for
// concurrent use.
type Resolver interface {
	Resolve(addr uint64) frame.Frame
}

// Func adapts a function to the Resolver interface.
type Func func(addr uint64) frame.Frame

func (f Func) Resolve(addr uint64) frame.Frame {
	return f(addr)
}

// Placeholders resolves every address to the placeholder frame.
var Placeholders Resolver = Func(frame.Placeholder)
