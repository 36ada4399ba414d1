// Package aggregate folds a call tree into per-file, per-line, per-module
// and per-function hit counts.
//
// Every non-root node contributes its hits once to each view it maps to.
// Entities are numbered in the order they are first referenced while the
// tree is walked depth first, so identical trees yield identical ids.
package aggregate

import (
	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/hitcount"
)

// RootFunctionID is the caller id of functions called directly from the
// process root.
const RootFunctionID = -1

// NoFile is the file id of functions without source information.
const NoFile = -1

type (
	File struct {
		ID   int             `json:"id"`
		Path string          `json:"path"`
		Hits hitcount.Counts `json:"hits"`
	}

	Location struct {
		FileID int             `json:"file_id"`
		Line   uint32          `json:"line"`
		Hits   hitcount.Counts `json:"hits"`
	}

	Module struct {
		ID   int             `json:"id"`
		Name string          `json:"name"`
		Hits hitcount.Counts `json:"hits"`
	}

	// Edge is a caller or callee of a function with the hits of the calls
	// along it.
	Edge struct {
		FunctionID int             `json:"function_id"`
		Hits       hitcount.Counts `json:"hits"`
	}

	LineHits struct {
		Line uint32          `json:"line"`
		Hits hitcount.Counts `json:"hits"`
	}

	Function struct {
		ID       int             `json:"id"`
		ModuleID int             `json:"module_id"`
		Name     string          `json:"name"`
		FileID   int             `json:"file_id"`
		Line     uint32          `json:"line,omitempty"`
		Hits     hitcount.Counts `json:"hits"`
		Callers  []Edge          `json:"callers,omitempty"`
		Callees  []Edge          `json:"callees,omitempty"`
		LineHits []LineHits      `json:"line_hits,omitempty"`
	}

	locationKey struct {
		fileID int
		line   uint32
	}

	// Aggregates are immutable once returned by FromTree.
	Aggregates struct {
		Files     []File
		Locations []Location
		Modules   []Module
		Functions []Function
		// Root holds the callees of the process root. Its hits equal the
		// root node's hits.
		Root Function
		// Total is the total of the tree root, the denominator of every
		// percentage.
		Total uint64

		files     map[string]int
		locations map[locationKey]int
		modules   map[string]int
		functions map[frame.Key]int
	}
)

// File returns the file with the given id.
func (a *Aggregates) File(id int) (File, bool) {
	if id < 0 || id >= len(a.Files) {
		return File{}, false
	}
	return a.Files[id], true
}

// FileByPath returns the file with the given path.
func (a *Aggregates) FileByPath(path string) (File, bool) {
	id, ok := a.files[path]
	if !ok {
		return File{}, false
	}
	return a.Files[id], true
}

func (a *Aggregates) Module(id int) (Module, bool) {
	if id < 0 || id >= len(a.Modules) {
		return Module{}, false
	}
	return a.Modules[id], true
}

func (a *Aggregates) ModuleByName(name string) (Module, bool) {
	id, ok := a.modules[name]
	if !ok {
		return Module{}, false
	}
	return a.Modules[id], true
}

// Function returns the function with the given id. RootFunctionID returns
// the synthetic root function.
func (a *Aggregates) Function(id int) (Function, bool) {
	if id == RootFunctionID {
		return a.Root, true
	}
	if id < 0 || id >= len(a.Functions) {
		return Function{}, false
	}
	return a.Functions[id], true
}

// FunctionByKey returns the function a frame key maps to.
func (a *Aggregates) FunctionByKey(key frame.Key) (Function, bool) {
	id, ok := a.functions[key]
	if !ok {
		return Function{}, false
	}
	return a.Functions[id], true
}

// Location returns the hits of one line of a file.
func (a *Aggregates) Location(fileID int, line uint32) (Location, bool) {
	i, ok := a.locations[locationKey{fileID: fileID, line: line}]
	if !ok {
		return Location{}, false
	}
	return a.Locations[i], true
}

// LocationsOf returns the locations of a file ordered by line.
func (a *Aggregates) LocationsOf(fileID int) []Location {
	var locations []Location
	for _, l := range a.Locations {
		if l.FileID == fileID {
			locations = append(locations, l)
		}
	}
	sortLocations(locations)
	return locations
}
