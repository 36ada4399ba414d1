// Package speedscope exports call trees in the speedscope file format so
// they can be browsed at https://www.speedscope.app.
package speedscope

import (
	"sort"

	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/frame"
)

const (
	Schema   = "https://www.speedscope.app/file-format-schema.json"
	Exporter = "hotspot"

	ValueUnitNone        ValueUnit = "none"
	ValueUnitNanoseconds ValueUnit = "nanoseconds"

	ProfileTypeSampled ProfileType = "sampled"
)

type (
	Frame struct {
		Name string `json:"name"`
		File string `json:"file,omitempty"`
		Line uint32 `json:"line,omitempty"`
	}

	SampledProfile struct {
		Type       ProfileType `json:"type"`
		Name       string      `json:"name"`
		Unit       ValueUnit   `json:"unit"`
		StartValue uint64      `json:"startValue"`
		EndValue   uint64      `json:"endValue"`
		// Samples hold frame indices root first.
		Samples [][]int  `json:"samples"`
		Weights []uint64 `json:"weights"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	ProfileType string
	ValueUnit   string

	Output struct {
		Schema             string           `json:"$schema"`
		Name               string           `json:"name"`
		Exporter           string           `json:"exporter"`
		ActiveProfileIndex int              `json:"activeProfileIndex"`
		Shared             SharedData       `json:"shared"`
		Profiles           []SampledProfile `json:"profiles"`
	}
)

// FromTree emits one weighted sample per node with self hits. Frames are
// shared between nodes with the same key.
func FromTree(t *calltree.Tree, unit ValueUnit) Output {
	o := Output{
		Schema:   Schema,
		Name:     t.Name,
		Exporter: Exporter,
		Shared:   SharedData{Frames: []Frame{}},
	}
	p := SampledProfile{
		Type:    ProfileTypeSampled,
		Name:    t.Name,
		Unit:    unit,
		Samples: [][]int{},
		Weights: []uint64{},
	}

	frames := make(map[frame.Key]int)
	// index of the frame of every node, -1 for the root.
	nodeFrames := make([]int, t.Len())
	t.Walk(func(n *calltree.Node) bool {
		if n.IsRoot() {
			nodeFrames[n.ID] = -1
		} else {
			i, ok := frames[n.Key]
			if !ok {
				i = len(o.Shared.Frames)
				frames[n.Key] = i
				o.Shared.Frames = append(o.Shared.Frames, Frame{
					Name: n.Key.Symbol,
					File: n.Frame.File,
					Line: n.Frame.FunctionLine,
				})
			}
			nodeFrames[n.ID] = i
		}
		if n.Hits.Self == 0 {
			return true
		}
		p.Samples = append(p.Samples, stackOf(t, n, nodeFrames))
		p.Weights = append(p.Weights, n.Hits.Self)
		p.EndValue += n.Hits.Self
		return true
	})

	SortSamplesAlphabetically(p.Samples, p.Weights, o.Shared.Frames)
	o.Profiles = []SampledProfile{p}
	return o
}

func stackOf(t *calltree.Tree, n *calltree.Node, nodeFrames []int) []int {
	path := t.Path(n.ID)[1:]
	stack := make([]int, len(path))
	for i, id := range path {
		stack[i] = nodeFrames[id]
	}
	return stack
}

// SortSamplesAlphabetically orders samples by the names of their frames,
// root first, keeping weights aligned with their samples. A stack sorts
// before the stacks it prefixes.
func SortSamplesAlphabetically(samples [][]int, weights []uint64, frames []Frame) {
	sort.Sort(bySamples{samples: samples, weights: weights, frames: frames})
}

type bySamples struct {
	samples [][]int
	weights []uint64
	frames  []Frame
}

func (s bySamples) Len() int {
	return len(s.samples)
}

func (s bySamples) Swap(i, j int) {
	s.samples[i], s.samples[j] = s.samples[j], s.samples[i]
	s.weights[i], s.weights[j] = s.weights[j], s.weights[i]
}

func (s bySamples) Less(i, j int) bool {
	a, b := s.samples[i], s.samples[j]
	for c := 0; ; c++ {
		switch {
		case len(a) == c:
			return len(b) > c
		case len(b) == c:
			return false
		}
		if na, nb := s.frames[a[c]].Name, s.frames[b[c]].Name; na != nb {
			return na < nb
		}
	}
}
