// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pprofexport converts a sealed callgrind Part into a
// github.com/google/pprof/profile.Profile, so that a Callgrind dump can be
// inspected, merged, or served with the same tooling used for the rest of
// the profiling stack.
package pprofexport

import (
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/parca-dev/callgrind-core/pkg/callgrind"
)

// Export builds a pprof profile for part from every entity graph currently
// holds. part must already be sealed. Each of part's declared events becomes
// a pprof sample type; every line with a cost attributed under part becomes one
// pprof sample, located at its enclosing function and (if present) its home
// file and line number.
func Export(graph *callgrind.Graph, part *callgrind.Part) (*profile.Profile, error) {
	if !part.Sealed() {
		return nil, fmt.Errorf("pprofexport: part %q has not finished loading", part.ID)
	}
	if len(part.Events) == 0 {
		return nil, fmt.Errorf("pprofexport: part %q declares no events", part.ID)
	}

	p := &profile.Profile{
		TimeNanos: 0,
	}
	for _, name := range part.Events {
		p.SampleType = append(p.SampleType, &profile.ValueType{Type: name, Unit: "count"})
	}

	b := &builder{
		profile:   p,
		mappings:  make(map[string]*profile.Mapping),
		functions: make(map[*callgrind.Function]*profile.Function),
	}

	for _, fn := range graph.Functions() {
		b.mappingFor(fn.Object)
		pf := b.functionFor(fn)

		lineSampled := false
		for _, line := range fn.Lines() {
			cost := line.PartCost(part)
			if cost == nil {
				continue
			}
			loc := b.location(fn.Object, pf, int64(line.LineNo))
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    widen(cost),
			})
			lineSampled = true
		}

		// Functions with address info but no line mapping (pure machine-code
		// traces) still need at least one location per instruction so their
		// self cost isn't dropped.
		if !lineSampled {
			for _, in := range fn.Instructions() {
				cost := in.PartCost(part)
				if cost == nil {
					continue
				}
				loc := b.location(fn.Object, pf, 0)
				loc.Address = in.Addr
				p.Sample = append(p.Sample, &profile.Sample{
					Location: []*profile.Location{loc},
					Value:    widen(cost),
				})
			}
		}
	}

	return p, nil
}

// builder accumulates the interned pprof entities (mappings, functions,
// locations) that Export produces, assigning each the small sequential IDs
// pprof's wire format expects.
type builder struct {
	profile *profile.Profile

	mappings  map[string]*profile.Mapping
	functions map[*callgrind.Function]*profile.Function

	nextMappingID  uint64
	nextFunctionID uint64
	nextLocationID uint64
}

func (b *builder) mappingFor(obj *callgrind.Object) *profile.Mapping {
	if obj == nil {
		return nil
	}
	if m, ok := b.mappings[obj.Name]; ok {
		return m
	}
	b.nextMappingID++
	m := &profile.Mapping{ID: b.nextMappingID, File: obj.Name}
	b.mappings[obj.Name] = m
	b.profile.Mapping = append(b.profile.Mapping, m)
	return m
}

func (b *builder) functionFor(fn *callgrind.Function) *profile.Function {
	if pf, ok := b.functions[fn]; ok {
		return pf
	}
	filename := ""
	if fn.File != nil {
		filename = fn.File.Name
	}
	b.nextFunctionID++
	pf := &profile.Function{
		ID:         b.nextFunctionID,
		Name:       fn.Name,
		SystemName: fn.Name,
		Filename:   filename,
	}
	b.functions[fn] = pf
	b.profile.Function = append(b.profile.Function, pf)
	return pf
}

func (b *builder) location(obj *callgrind.Object, pf *profile.Function, lineNo int64) *profile.Location {
	b.nextLocationID++
	loc := &profile.Location{
		ID:      b.nextLocationID,
		Mapping: b.mappingFor(obj),
	}
	if lineNo > 0 {
		loc.Line = []profile.Line{{Function: pf, Line: lineNo}}
	} else {
		loc.Line = []profile.Line{{Function: pf}}
	}
	b.profile.Location = append(b.profile.Location, loc)
	return loc
}

func widen(cost callgrind.CostVector) []int64 {
	out := make([]int64, len(cost))
	for i, c := range cost {
		out[i] = int64(c)
	}
	return out
}
