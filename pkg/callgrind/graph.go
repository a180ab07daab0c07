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
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Object is a shared library or executable. Identity is its name.
type Object struct {
	Name      string
	functions map[*Function]struct{}
	parts     map[*Part]CostVector
}

// File is a source file. Identity is its name.
type File struct {
	Name  string
	parts map[*Part]CostVector
}

// Function is attributed to one canonical object and one home file.
// Identity is (name, file); the object is not part of the interning key. It
// may be filled in after creation but, once set, is never silently
// overwritten (ObjectMismatch reports the conflict instead).
type Function struct {
	Name   string
	File   *File
	Object *Object

	sources      map[*File]*FunctionSource
	instructions map[uint64]*Instruction
	lines        map[lineKey]*Line
	calling      map[*Function]*Call
	parts        map[*Part]CostVector
}

type lineKey struct {
	file *File
	line uint32
}

// FunctionSource is the per-file projection of a function, needed because
// one function's instructions or lines may be attributed to a file other
// than its home file.
type FunctionSource struct {
	Function *Function
	File     *File
	parts    map[*Part]CostVector
}

// Instruction is a single machine address within a function.
type Instruction struct {
	Function *Function
	Addr     uint64
	Line     *Line
	parts    map[*Part]CostVector
}

// Line is a source line within a function, possibly in a file other than
// the function's home file.
type Line struct {
	Function *Function
	File     *File
	LineNo   uint32
	parts    map[*Part]CostVector
}

// Call is an edge between a caller and callee function, carrying per-part
// call-cost records broken down (optionally) by calling instruction and
// calling line.
type Call struct {
	Caller, Callee *Function
	parts          map[*Part]*CallCost
	instrCosts     map[*Instruction]map[*Part]*CallCost
	lineCosts      map[*Line]map[*Part]*CallCost
}

// CallCost is a call count plus the cost vector incurred across those
// calls, for one part.
type CallCost struct {
	Count uint64
	Cost  CostVector
}

func (c *CallCost) add(count uint64, cost CostVector) {
	c.Count += count
	c.Cost.AddFrom(cost)
}

// Jump is a control-flow transfer between two positions, optionally
// conditional. Identity is (from-function, to-function, source position,
// target position, conditional).
type Jump struct {
	FromFunction *Function
	ToFunction   *Function
	FromPos      Position
	ToPos        Position
	Conditional  bool
	parts        map[*Part]*JumpCost
}

// JumpCost counts how often a jump executed and (for conditional jumps)
// how often it was followed, per part.
type JumpCost struct {
	Executed uint64
	Followed uint64
}

type jumpKey struct {
	from, to    *Function
	fromAddr    uint64
	fromLine    uint32
	toAddr      uint64
	toLine      uint32
	conditional bool
}

// ObjectMismatch reports that a compressed function reference carried an
// object different from the one already bound to that (name, file) pair.
// The first binding wins; this is a Warning, not a Fatal condition.
type ObjectMismatch struct {
	Function *Function
	Found    *Object
	Given    *Object
}

// Graph is the authoritative interning store and sole owner of the entity
// hierarchy. A single canonical entity exists per logical identity; cost
// tables and cursors hold non-owning references into it.
//
// Loads of independent parts may run concurrently as long as each uses its
// own loader instance and all of them share one Graph: mu serializes the
// interning paths so two loaders never race creating the same entity.
type Graph struct {
	mu sync.Mutex

	objects   map[string]*Object
	files     map[string]*File
	functions map[functionKey][]*Function
	jumps     map[jumpKey]*Jump

	callMax CostVector
}

// functionKey keys the function-interning map on an xxhash digest of the
// name instead of the name itself: mangled C++ names in real dumps run to
// hundreds of bytes, and the digest keeps map-key comparisons on the hot
// interning path cheap. Hash collisions are handled by a per-bucket scan.
type functionKey struct {
	nameHash uint64
	file     *File
}

// NewGraph creates an empty graph store.
func NewGraph() *Graph {
	return &Graph{
		objects:   make(map[string]*Object),
		files:     make(map[string]*File),
		functions: make(map[functionKey][]*Function),
		jumps:     make(map[jumpKey]*Jump),
	}
}

// CallMax is the pointwise maximum over every call-cost vector ever
// attributed through this graph, across all parts.
func (g *Graph) CallMax() CostVector {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callMax.Clone()
}

// updateCallMax must be called with g.mu held; the loader's attribution
// path already holds the coarse lock when it lands here.
func (g *Graph) updateCallMax(delta CostVector) {
	g.callMax.MaxFrom(delta)
}

// GetObject intern-or-creates the object named name.
func (g *Graph) GetObject(name string) *Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getObjectLocked(name)
}

func (g *Graph) getObjectLocked(name string) *Object {
	if o, ok := g.objects[name]; ok {
		return o
	}
	o := &Object{
		Name:      name,
		functions: make(map[*Function]struct{}),
		parts:     make(map[*Part]CostVector),
	}
	g.objects[name] = o
	return o
}

// GetFile intern-or-creates the file named name.
func (g *Graph) GetFile(name string) *File {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getFileLocked(name)
}

func (g *Graph) getFileLocked(name string) *File {
	if f, ok := g.files[name]; ok {
		return f
	}
	f := &File{Name: name, parts: make(map[*Part]CostVector)}
	g.files[name] = f
	return f
}

// GetFunction intern-or-creates the function (name, file). If the function
// already exists and has no object bound, object (if non-nil) fills it in.
// If it already has a different, non-nil object bound, the first binding
// wins and a non-nil *ObjectMismatch is returned alongside the function.
func (g *Graph) GetFunction(name string, file *File, object *Object) (*Function, *ObjectMismatch) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := functionKey{nameHash: xxhash.Sum64String(name), file: file}
	for _, fn := range g.functions[key] {
		if fn.Name != name {
			continue
		}
		return fn, g.bindFunctionObjectLocked(fn, object)
	}

	fn := &Function{
		Name:         name,
		File:         file,
		Object:       object,
		sources:      make(map[*File]*FunctionSource),
		instructions: make(map[uint64]*Instruction),
		lines:        make(map[lineKey]*Line),
		calling:      make(map[*Function]*Call),
		parts:        make(map[*Part]CostVector),
	}
	g.functions[key] = append(g.functions[key], fn)
	if object != nil {
		object.functions[fn] = struct{}{}
	}
	return fn, nil
}

// bindFunctionObject fills fn's object if still unset. If fn already has a
// different, non-nil object bound, the first binding wins and the conflict
// is reported as a non-nil *ObjectMismatch. Used by the compression
// dictionary when a recompressed reference carries fresh object context.
func (g *Graph) bindFunctionObject(fn *Function, object *Object) *ObjectMismatch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bindFunctionObjectLocked(fn, object)
}

func (g *Graph) bindFunctionObjectLocked(fn *Function, object *Object) *ObjectMismatch {
	if object == nil || fn.Object == object {
		return nil
	}
	if fn.Object == nil {
		fn.Object = object
		object.functions[fn] = struct{}{}
		return nil
	}
	return &ObjectMismatch{Function: fn, Found: fn.Object, Given: object}
}

// SourceFile returns the per-file projection of fn, creating it lazily on
// first attribution.
func (fn *Function) SourceFile(file *File) *FunctionSource {
	if fs, ok := fn.sources[file]; ok {
		return fs
	}
	fs := &FunctionSource{Function: fn, File: file, parts: make(map[*Part]CostVector)}
	fn.sources[file] = fs
	return fs
}

// InstructionAt returns the instruction at addr within fn, creating it
// lazily on first cost attribution.
func (fn *Function) InstructionAt(addr uint64) *Instruction {
	if in, ok := fn.instructions[addr]; ok {
		return in
	}
	in := &Instruction{Function: fn, Addr: addr, parts: make(map[*Part]CostVector)}
	fn.instructions[addr] = in
	return in
}

// LineAt returns the source line (file, lineNo) within fn, creating it
// lazily on first cost attribution.
func (fn *Function) LineAt(file *File, lineNo uint32) *Line {
	k := lineKey{file: file, line: lineNo}
	if l, ok := fn.lines[k]; ok {
		return l
	}
	l := &Line{Function: fn, File: file, LineNo: lineNo, parts: make(map[*Part]CostVector)}
	fn.lines[k] = l
	return l
}

// Calling returns the call edge from fn to callee, creating it lazily on
// the first "cfn=" + "calls=" line relating the pair.
func (fn *Function) Calling(callee *Function) *Call {
	if c, ok := fn.calling[callee]; ok {
		return c
	}
	c := &Call{
		Caller:     fn,
		Callee:     callee,
		parts:      make(map[*Part]*CallCost),
		instrCosts: make(map[*Instruction]map[*Part]*CallCost),
		lineCosts:  make(map[*Line]map[*Part]*CallCost),
	}
	fn.calling[callee] = c
	return c
}

// getJump intern-or-creates the jump edge for the given endpoints.
func (g *Graph) getJump(from, to *Function, fromPos, toPos Position, conditional bool) *Jump {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getJumpLocked(from, to, fromPos, toPos, conditional)
}

func (g *Graph) getJumpLocked(from, to *Function, fromPos, toPos Position, conditional bool) *Jump {
	k := jumpKey{
		from: from, to: to,
		fromAddr: fromPos.FromAddr, fromLine: fromPos.FromLine,
		toAddr: toPos.FromAddr, toLine: toPos.FromLine,
		conditional: conditional,
	}
	if j, ok := g.jumps[k]; ok {
		return j
	}
	j := &Jump{
		FromFunction: from, ToFunction: to,
		FromPos: fromPos, ToPos: toPos, Conditional: conditional,
		parts: make(map[*Part]*JumpCost),
	}
	g.jumps[k] = j
	return j
}

// Functions returns every function interned in the graph so far. It is a
// hook for external collaborators (annotation, export, cycle detection)
// layered on top of the core; the core itself never needs to enumerate.
func (g *Graph) Functions() []*Function {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Function, 0, len(g.functions))
	for _, bucket := range g.functions {
		out = append(out, bucket...)
	}
	return out
}

// Lines returns every line entity attributed to fn.
func (fn *Function) Lines() []*Line {
	out := make([]*Line, 0, len(fn.lines))
	for _, l := range fn.lines {
		out = append(out, l)
	}
	return out
}

// Instructions returns every instruction entity attributed to fn.
func (fn *Function) Instructions() []*Instruction {
	out := make([]*Instruction, 0, len(fn.instructions))
	for _, in := range fn.instructions {
		out = append(out, in)
	}
	return out
}

// CallEdges returns every outgoing call edge from fn.
func (fn *Function) CallEdges() []*Call {
	out := make([]*Call, 0, len(fn.calling))
	for _, c := range fn.calling {
		out = append(out, c)
	}
	return out
}

// --- per-part cost accumulation helpers ---

func addPartCost(m map[*Part]CostVector, part *Part, delta CostVector) {
	cv, ok := m[part]
	if !ok {
		cv = make(CostVector, len(delta))
	}
	cv.AddFrom(delta)
	m[part] = cv
}

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (o *Object) PartCost(part *Part) CostVector { return o.parts[part] }

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (f *File) PartCost(part *Part) CostVector { return f.parts[part] }

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (fn *Function) PartCost(part *Part) CostVector { return fn.parts[part] }

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (fs *FunctionSource) PartCost(part *Part) CostVector { return fs.parts[part] }

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (in *Instruction) PartCost(part *Part) CostVector { return in.parts[part] }

// PartCost returns the accumulated cost vector for part, or nil if none was
// ever attributed.
func (l *Line) PartCost(part *Part) CostVector { return l.parts[part] }

// PartCost returns the call count and cost vector for part, or nil.
func (c *Call) PartCost(part *Part) *CallCost { return c.parts[part] }

// PartCost returns the executed/followed counters for part, or nil.
func (j *Jump) PartCost(part *Part) *JumpCost { return j.parts[part] }
