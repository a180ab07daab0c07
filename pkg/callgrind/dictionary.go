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

package callgrind

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	initialObjectSlots   = 100
	initialFileSlots     = 1000
	initialFunctionSlots = 10000
)

// Dictionary holds the three parallel id->entity compression tables
// (objects, files, functions) that recognize "(N)", "(N) name", and bare
// "name" forms on declaration lines. An id can be re-declared: a later
// "(N) name2" replaces slot N, and subsequent bare "(N)" references resolve
// to whatever is currently bound there. This is per spec, not a bug: the
// source format reuses slot numbers across a part.
type Dictionary struct {
	graph *Graph

	objects   []*Object
	files     []*File
	functions []*Function
}

// NewDictionary creates a dictionary backed by graph, with the tables
// pre-sized the way the source does to avoid early reallocation.
func NewDictionary(graph *Graph) *Dictionary {
	return &Dictionary{
		graph:     graph,
		objects:   make([]*Object, initialObjectSlots),
		files:     make([]*File, initialFileSlots),
		functions: make([]*Function, initialFunctionSlots),
	}
}

// compressionSpec is the parsed form of a declaration/reference value.
type compressionSpec struct {
	index   int
	hasIdx  bool
	name    string
	hasName bool
}

// parseCompressionSpec recognizes "(N) name", "(N)", and bare "name".
func parseCompressionSpec(raw string) (compressionSpec, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '(' {
		return compressionSpec{name: raw, hasName: raw != ""}, nil
	}

	close := strings.IndexByte(raw, ')')
	if close < 2 {
		return compressionSpec{}, fmt.Errorf("invalid compressed format: %q", raw)
	}
	idx, err := strconv.Atoi(raw[1:close])
	if err != nil || idx < 0 {
		return compressionSpec{}, fmt.Errorf("invalid compressed index: %q", raw)
	}

	rest := strings.TrimSpace(raw[close+1:])
	if rest == "" {
		return compressionSpec{index: idx, hasIdx: true}, nil
	}
	return compressionSpec{index: idx, hasIdx: true, name: rest, hasName: true}, nil
}

// grow ensures slots can hold index, doubling the table the way the
// tables are pre-sized: to at least 2*index.
func grow[T any](slots []*T, index int) []*T {
	if index < len(slots) {
		return slots
	}
	newSize := index * 2
	if newSize <= index {
		newSize = index + 1
	}
	grown := make([]*T, newSize)
	copy(grown, slots)
	return grown
}

// Object resolves an object declaration/reference value.
func (d *Dictionary) Object(raw string) (*Object, error) {
	spec, err := parseCompressionSpec(raw)
	if err != nil {
		return nil, err
	}
	if !spec.hasIdx {
		if !spec.hasName {
			return nil, fmt.Errorf("empty object spec")
		}
		return d.graph.GetObject(spec.name), nil
	}
	if spec.hasName {
		o := d.graph.GetObject(spec.name)
		d.objects = grow(d.objects, spec.index)
		d.objects[spec.index] = o
		return o, nil
	}
	if spec.index >= len(d.objects) || d.objects[spec.index] == nil {
		return nil, fmt.Errorf("invalid compressed object index %d", spec.index)
	}
	return d.objects[spec.index], nil
}

// File resolves a file declaration/reference value.
func (d *Dictionary) File(raw string) (*File, error) {
	spec, err := parseCompressionSpec(raw)
	if err != nil {
		return nil, err
	}
	if !spec.hasIdx {
		if !spec.hasName {
			return nil, fmt.Errorf("empty file spec")
		}
		return d.graph.GetFile(spec.name), nil
	}
	if spec.hasName {
		f := d.graph.GetFile(spec.name)
		d.files = grow(d.files, spec.index)
		d.files[spec.index] = f
		return f, nil
	}
	if spec.index >= len(d.files) || d.files[spec.index] == nil {
		return nil, fmt.Errorf("invalid compressed file index %d", spec.index)
	}
	return d.files[spec.index], nil
}

// Function resolves a function declaration/reference value, in the
// context of the given (file, object). The returned *ObjectMismatch is
// non-nil if a recompressed function's bound object differs from object.
func (d *Dictionary) Function(raw string, file *File, object *Object) (*Function, *ObjectMismatch, error) {
	spec, err := parseCompressionSpec(raw)
	if err != nil {
		return nil, nil, err
	}
	if !spec.hasIdx {
		if !spec.hasName {
			return nil, nil, fmt.Errorf("empty function spec")
		}
		fn, mismatch := d.graph.GetFunction(spec.name, file, object)
		return fn, mismatch, nil
	}
	if spec.hasName {
		fn, mismatch := d.graph.GetFunction(spec.name, file, object)
		d.functions = grow(d.functions, spec.index)
		d.functions[spec.index] = fn
		return fn, mismatch, nil
	}
	if spec.index >= len(d.functions) || d.functions[spec.index] == nil {
		return nil, nil, fmt.Errorf("invalid compressed function index %d without definition", spec.index)
	}
	fn := d.functions[spec.index]
	return fn, d.graph.bindFunctionObject(fn, object), nil
}
