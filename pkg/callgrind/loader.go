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
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoEventsHeader is returned when a cost or summary line is reached
// before an "events:" header has been parsed (spec §7, Fatal).
var ErrNoEventsHeader = errors.New("callgrind: no events: header seen before a cost line")

// ErrPartSealed is returned when Load is called again on a part that has
// already finished loading.
var ErrPartSealed = errors.New("callgrind: part is already sealed")

const (
	dummyObject   = "???"
	dummyFile     = "???"
	dummyFunction = "???"
)

// pendingType is the record type armed for the next position+cost line.
type pendingType int

const (
	pendingSelfCost pendingType = iota
	pendingCallCost
	pendingBoringJump
	pendingCondJump
)

// ProgressFunc is invoked when the integer percentage of bytes consumed
// changes. Subscribers must not re-enter the loader.
type ProgressFunc func(percent int)

// EventDecl is a registered "event:<short>[=<formula>][:<long>]" cost-type
// declaration. The core records these but never evaluates formulas: that
// is the event-formula evaluator's job, an external collaborator out of
// scope for this package.
type EventDecl struct {
	Short   string
	Formula string
	Long    string
}

// Loader is the outer decoder: a one-shot, single-threaded state machine
// over one part's lines. Create a fresh Loader per Load call; parallel
// loads of independent parts must each use their own Loader instance (see
// LoadParts for the synchronized multi-part helper).
type Loader struct {
	graph   *Graph
	diag    Diagnostics
	metrics *Metrics
	onProg  ProgressFunc

	dict     *Dictionary
	filename string
	lineNo   int
	part     *Part

	eventsSeen bool
	pending    pendingType

	hasLineInfo, hasAddrInfo bool
	cursor                   Position

	currentObject         *Object
	currentFile           *File
	currentFunction       *Function
	currentFunctionSource *FunctionSource
	currentInstr          *Instruction
	currentLine           *Line

	calledObject   *Object
	calledFile     *File
	calledFunction *Function
	callCount      uint64

	jumpToFile     *File
	jumpToFunction *Function
	jumpsFollowed  uint64
	jumpsExecuted  uint64
	targetPos      Position

	touched     map[*Function]struct{}
	lr          *lineReader
	lastPercent int
}

// NewLoader creates a loader that interns entities into graph and reports
// non-fatal problems to diag. diag may be nil, in which case diagnostics
// are discarded. metrics and onProg may also be nil.
func NewLoader(graph *Graph, diag Diagnostics, metrics *Metrics, onProg ProgressFunc) *Loader {
	if diag == nil {
		diag = discardDiagnostics{}
	}
	return &Loader{
		graph:   graph,
		diag:    diag,
		metrics: metrics,
		onProg:  onProg,
	}
}

// Load reads a Callgrind/Cachegrind dump from r (size bytes long, used only
// for progress reporting) and attributes its contents into part, which
// must not already be sealed (ErrPartSealed otherwise). Load aborts and
// returns a non-nil error for the Fatal conditions in spec §7 and when ctx
// is cancelled; all other problems are reported to the loader's Diagnostics
// sink and recovered from in place.
func (l *Loader) Load(ctx context.Context, filename string, r io.Reader, size int64, part *Part) error {
	if part.sealed {
		return ErrPartSealed
	}

	l.filename = filename
	l.part = part
	l.dict = NewDictionary(l.graph)
	l.hasLineInfo = true // default when no "positions:" line is seen
	l.hasAddrInfo = false
	l.touched = make(map[*Function]struct{})
	l.lastPercent = -1

	lr := newLineReader(r, size)
	l.lr = lr
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, ok, err := lr.next()
		if err != nil {
			return fmt.Errorf("callgrind: reading %s: %w", filename, err)
		}
		if !ok {
			break
		}
		l.lineNo++

		if err := l.processLine(raw); err != nil {
			return err
		}
	}

	if l.onProg != nil && l.lastPercent != 100 {
		l.lastPercent = 100
		l.onProg(100)
	}

	part.sealed = true
	if !part.explicitSummary {
		totals := make(CostVector, len(part.Events))
		l.graph.mu.Lock()
		for fn := range l.touched {
			totals.AddFrom(fn.PartCost(part))
		}
		l.graph.mu.Unlock()
		part.Totals = totals
	}
	l.metrics.observePartLoaded()
	return nil
}

func (l *Loader) processLine(raw []byte) error {
	fs := NewFixString(raw)
	c, ok := fs.First()
	if !ok {
		l.metrics.observeLine("blank")
		return nil // blank line
	}

	if isPositionStart(c) {
		save := fs.Get()
		pos, ok := parsePosition(&fs, l.cursor, l.hasAddrInfo, l.hasLineInfo, l.clampWarning)
		if ok {
			l.cursor = pos
			l.metrics.observeLine("position")
			return l.attributeCost(&fs)
		}
		fs.Set(save)
	}

	l.metrics.observeLine("header")
	return l.dispatchHeader(&fs, c)
}

func isPositionStart(c byte) bool {
	return c == '*' || c == '+' || c == '-' || isDigit(c)
}

func (l *Loader) clampWarning() {
	l.diag.Warnf(l.filename, l.lineNo, "negative line number, clamped to zero")
	l.metrics.observeWarning()
}

// dispatchHeader classifies a non-position line by its first character and
// routes it to the matching header handler.
func (l *Loader) dispatchHeader(fs *FixString, c byte) error {
	fs.StripFirst()

	switch c {
	case 'f':
		if fs.StripPrefix("l=") || fs.StripPrefix("i=") || fs.StripPrefix("e=") {
			l.setFile(fs.Ascii())
			return nil
		}
		if fs.StripPrefix("n=") {
			l.setFunction(fs.Ascii())
			l.reportProgress()
			return nil
		}
	case 'c':
		if fs.StripPrefix("ob=") {
			l.setCalledObject(fs.Ascii())
			return nil
		}
		if fs.StripPrefix("fi=") {
			l.setCalledFile(fs.Ascii())
			return nil
		}
		if fs.StripPrefix("fn=") {
			l.setCalledFunction(fs.Ascii())
			return nil
		}
		if fs.StripPrefix("alls=") {
			fs.StripSpaces()
			count, _ := fs.StripUInt64(false)
			l.callCount = count
			l.pending = pendingCallCost
			return nil
		}
		if fs.StripPrefix("md:") {
			cmd := strings.TrimSpace(fs.Ascii())
			if l.part.Command != "" && l.part.Command != cmd {
				l.diag.Warnf(l.filename, l.lineNo, "redefined cmd:", "was", l.part.Command, "new", cmd)
				l.metrics.observeWarning()
			}
			l.part.Command = cmd
			return nil
		}
		if fs.StripPrefix("reator:") {
			l.part.Creator = strings.TrimSpace(fs.Ascii())
			return nil
		}
	case 'j':
		if fs.StripPrefix("cnd=") {
			followed, ok1 := fs.StripUInt64(false)
			ok2 := fs.StripPrefix("/")
			executed, ok3 := fs.StripUInt64(true)
			pos, ok4 := parsePosition(fs, l.cursor, l.hasAddrInfo, l.hasLineInfo, l.clampWarning)
			if !(ok1 && ok2 && ok3 && ok4) {
				l.diag.Errorf(l.filename, l.lineNo, "invalid jcnd= line")
				l.metrics.observeError()
				return nil
			}
			l.jumpsFollowed = followed
			l.jumpsExecuted = executed
			l.targetPos = pos
			l.pending = pendingCondJump
			return nil
		}
		if fs.StripPrefix("ump=") {
			executed, ok1 := fs.StripUInt64(true)
			pos, ok2 := parsePosition(fs, l.cursor, l.hasAddrInfo, l.hasLineInfo, l.clampWarning)
			if !(ok1 && ok2) {
				l.diag.Errorf(l.filename, l.lineNo, "invalid jump= line")
				l.metrics.observeError()
				return nil
			}
			l.jumpsExecuted = executed
			l.targetPos = pos
			l.pending = pendingBoringJump
			return nil
		}
		if fs.StripPrefix("fi=") {
			f, err := l.dict.File(fs.Ascii())
			if err != nil {
				l.diag.Errorf(l.filename, l.lineNo, "invalid jump target file", "err", err)
				l.metrics.observeError()
				return nil
			}
			l.jumpToFile = f
			return nil
		}
		if fs.StripPrefix("fn=") {
			if l.jumpToFile == nil {
				l.jumpToFile = l.currentFile
			}
			fn, mismatch, err := l.dict.Function(fs.Ascii(), l.jumpToFile, l.currentObject)
			if err != nil {
				l.diag.Errorf(l.filename, l.lineNo, "invalid jump target function", "err", err)
				l.metrics.observeError()
				return nil
			}
			if mismatch != nil {
				l.warnObjectMismatch(mismatch)
			}
			l.jumpToFunction = fn
			return nil
		}
	case 'o':
		if fs.StripPrefix("b=") {
			l.setObject(fs.Ascii())
			return nil
		}
	case '#':
		return nil
	case 't':
		if fs.StripPrefix("otals:") {
			return nil
		}
		if fs.StripPrefix("hread:") {
			l.part.Thread = strings.TrimSpace(fs.Ascii())
			return nil
		}
		if fs.StripPrefix("imeframe (BB):") {
			l.part.Timeframe = strings.TrimSpace(fs.Ascii())
			return nil
		}
	case 'd':
		if fs.StripPrefix("esc:") {
			fs.StripSurroundingSpaces()
			desc := fs.Ascii()
			l.part.Description = append(l.part.Description, desc)
			if rest, ok := strings.CutPrefix(desc, "Trigger:"); ok {
				l.part.Trigger = strings.TrimSpace(rest)
			}
			return nil
		}
	case 'e':
		if fs.StripPrefix("vents:") {
			l.part.Events = strings.Fields(fs.Ascii())
			l.eventsSeen = true
			return nil
		}
		if fs.StripPrefix("vent:") {
			fs.StripSurroundingSpaces()
			n := 0
			for n < fs.Len() && !isSpace(fs.b[n]) && fs.b[n] != '=' && fs.b[n] != ':' {
				n++
			}
			if n == 0 {
				l.diag.Errorf(l.filename, l.lineNo, "invalid event declaration")
				l.metrics.observeError()
				return nil
			}
			name := string(fs.b[:n])
			fs.b = fs.b[n:]
			fs.StripSpaces()
			var formula string
			if c, ok := fs.First(); ok && c == '=' {
				fs.StripFirst()
				f := fs.StripUntil(':')
				f.StripSurroundingSpaces()
				formula = f.Ascii()
			}
			if c, ok := fs.First(); ok && c == ':' {
				fs.StripFirst()
			}
			fs.StripSurroundingSpaces()
			long := fs.Ascii()
			if long == "" {
				long = name
			}
			l.part.EventDecls = append(l.part.EventDecls, EventDecl{Short: name, Formula: formula, Long: long})
			return nil
		}
	case 'p':
		if fs.StripPrefix("art:") {
			n, _ := strconv.Atoi(strings.TrimSpace(fs.Ascii()))
			l.part.PartNumber = n
			return nil
		}
		if fs.StripPrefix("id:") {
			n, _ := strconv.Atoi(strings.TrimSpace(fs.Ascii()))
			l.part.ProcessID = n
			return nil
		}
		if fs.StripPrefix("ositions:") {
			s := fs.Ascii()
			l.hasLineInfo = strings.Contains(s, "line")
			l.hasAddrInfo = strings.Contains(s, "instr")
			l.part.HasLineInfo = l.hasLineInfo
			l.part.HasAddrInfo = l.hasAddrInfo
			return nil
		}
	case 'v':
		if fs.StripPrefix("ersion:") {
			l.part.Version = strings.TrimSpace(fs.Ascii())
			return nil
		}
	case 's':
		if fs.StripPrefix("ummary:") {
			if !l.eventsSeen {
				return ErrNoEventsHeader
			}
			fs.StripSpaces()
			vec, ok := parseCostVector(fs, len(l.part.Events))
			if !ok {
				l.diag.Errorf(l.filename, l.lineNo, "invalid summary: line")
				l.metrics.observeError()
				return nil
			}
			l.part.Totals = vec
			l.part.explicitSummary = true
			return nil
		}
	case 'r':
		if fs.StripPrefix("calls=") {
			l.diag.Warnf(l.filename, l.lineNo, "dump generated by an old version, rcalls= is deprecated; use calls=")
			l.metrics.observeWarning()
			fs.StripSpaces()
			count, _ := fs.StripUInt64(false)
			l.callCount = count
			l.pending = pendingCallCost
			return nil
		}
	}

	l.diag.Warnf(l.filename, l.lineNo, "invalid line", "leading", string(c))
	l.metrics.observeWarning()
	return nil
}

// reportProgress emits a progress event when the integer percent of bytes
// consumed has changed, per spec §5. Invoked on every "fn=" line, matching
// the source's per-function-declaration status update.
func (l *Loader) reportProgress() {
	if l.onProg == nil || l.lr == nil {
		return
	}
	p := l.lr.percent()
	if p != l.lastPercent {
		l.lastPercent = p
		l.onProg(p)
	}
}

func (l *Loader) warnObjectMismatch(m *ObjectMismatch) {
	found := "<nil>"
	if m.Found != nil {
		found = m.Found.Name
	}
	given := "<nil>"
	if m.Given != nil {
		given = m.Given.Name
	}
	l.diag.Warnf(l.filename, l.lineNo, "object mismatch", "function", m.Function.Name, "found", found, "given", given)
	l.metrics.observeWarning()
}

func (l *Loader) setObject(raw string) {
	o, err := l.dict.Object(raw)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid object spec, using dummy", "err", err)
		l.metrics.observeWarning()
		o = l.graph.GetObject(dummyObject)
	}
	l.currentObject = o
	l.currentFunction = nil
	l.currentFunctionSource = nil
}

func (l *Loader) ensureObject() {
	if l.currentObject != nil {
		return
	}
	l.diag.Warnf(l.filename, l.lineNo, "ELF object name not set, using dummy")
	l.metrics.observeWarning()
	l.currentObject = l.graph.GetObject(dummyObject)
}

func (l *Loader) setCalledObject(raw string) {
	o, err := l.dict.Object(raw)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid called object spec, using dummy", "err", err)
		l.metrics.observeWarning()
		o = l.graph.GetObject(dummyObject)
	}
	l.calledObject = o
}

func (l *Loader) setFile(raw string) {
	f, err := l.dict.File(raw)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid file spec, using dummy", "err", err)
		l.metrics.observeWarning()
		f = l.graph.GetFile(dummyFile)
	}
	l.currentFile = f
	l.currentLine = nil
	l.currentInstr = nil
}

func (l *Loader) ensureFile() {
	if l.currentFile != nil {
		return
	}
	l.diag.Warnf(l.filename, l.lineNo, "source file name not set, using dummy")
	l.metrics.observeWarning()
	l.currentFile = l.graph.GetFile(dummyFile)
}

func (l *Loader) setCalledFile(raw string) {
	f, err := l.dict.File(raw)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid called file spec, using dummy", "err", err)
		l.metrics.observeWarning()
		f = l.graph.GetFile(dummyFile)
	}
	l.calledFile = f
}

func (l *Loader) setFunction(raw string) {
	l.ensureFile()
	l.ensureObject()

	fn, mismatch, err := l.dict.Function(raw, l.currentFile, l.currentObject)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid function, using dummy", "err", err)
		l.metrics.observeWarning()
		fn, _ = l.graph.GetFunction(dummyFunction, nil, nil)
	}
	if mismatch != nil {
		l.warnObjectMismatch(mismatch)
	}

	l.currentFunction = fn
	l.currentFunctionSource = nil
	l.currentLine = nil
	l.currentInstr = nil
}

func (l *Loader) ensureFunction() {
	if l.currentFunction != nil {
		return
	}
	l.diag.Warnf(l.filename, l.lineNo, "function name not set, using dummy")
	l.metrics.observeWarning()
	l.currentFunction, _ = l.graph.GetFunction(dummyFunction, nil, nil)
}

func (l *Loader) setCalledFunction(raw string) {
	if l.calledObject == nil {
		l.calledObject = l.currentObject
	}
	if l.calledFile == nil {
		l.calledFile = l.currentFile
	}

	fn, mismatch, err := l.dict.Function(raw, l.calledFile, l.calledObject)
	if err != nil {
		l.diag.Warnf(l.filename, l.lineNo, "invalid called function, using dummy", "err", err)
		l.metrics.observeWarning()
		fn, _ = l.graph.GetFunction(dummyFunction, nil, nil)
	}
	if mismatch != nil {
		l.warnObjectMismatch(mismatch)
	}
	l.calledFunction = fn
}

func (l *Loader) ensureCalledFunction() {
	if l.calledFunction != nil {
		return
	}
	l.diag.Warnf(l.filename, l.lineNo, "called function not set, using dummy")
	l.metrics.observeWarning()
	l.calledFunction, _ = l.graph.GetFunction(dummyFunction, nil, nil)
}

// attributeCost performs cost attribution for a position-prefixed line
// against the currently armed pending record type.
//
// The write path holds the graph's coarse lock: concurrent loaders for
// other parts may be attributing into the same interned entities (see
// LoadParts). The ensure* fallbacks run before the lock is taken because
// they go through the graph's self-locking interning accessors.
func (l *Loader) attributeCost(fs *FixString) error {
	if !l.eventsSeen {
		return ErrNoEventsHeader
	}

	l.ensureFunction()
	if l.currentFunctionSource == nil || l.currentFunctionSource.File != l.currentFile {
		l.ensureFile()
	}
	if l.pending == pendingCallCost {
		l.ensureCalledFunction()
	}

	l.graph.mu.Lock()
	defer l.graph.mu.Unlock()

	if l.currentFunctionSource == nil || l.currentFunctionSource.File != l.currentFile {
		l.currentFunctionSource = l.currentFunction.SourceFile(l.currentFile)
	}

	if l.hasAddrInfo {
		if l.currentInstr == nil || l.currentInstr.Addr != l.cursor.FromAddr {
			l.currentInstr = l.currentFunction.InstructionAt(l.cursor.FromAddr)
		}
	}
	if l.hasLineInfo {
		if l.currentLine == nil || l.currentLine.LineNo != l.cursor.FromLine {
			l.currentLine = l.currentFunction.LineAt(l.currentFile, l.cursor.FromLine)
		}
		if l.hasAddrInfo && l.currentInstr != nil {
			l.currentInstr.Line = l.currentLine
		}
	}

	switch l.pending {
	case pendingSelfCost:
		return l.attributeSelfCost(fs)
	case pendingCallCost:
		err := l.attributeCallCost(fs)
		l.calledFile = nil
		l.calledObject = nil
		l.calledFunction = nil
		l.callCount = 0
		l.pending = pendingSelfCost
		return err
	default: // pendingBoringJump, pendingCondJump
		err := l.attributeJump(fs)
		l.jumpToFunction = nil
		l.jumpToFile = nil
		l.pending = pendingSelfCost
		return err
	}
}

func (l *Loader) attributeSelfCost(fs *FixString) error {
	cost, ok := parseCostVector(fs, len(l.part.Events))
	if !ok {
		l.diag.Errorf(l.filename, l.lineNo, "malformed cost vector")
		l.metrics.observeError()
		return nil
	}

	if l.hasAddrInfo {
		addPartCost(l.currentInstr.parts, l.part, cost)
	}
	if l.hasLineInfo {
		addPartCost(l.currentLine.parts, l.part, cost)
	}
	addPartCost(l.currentFunctionSource.parts, l.part, cost)
	addPartCost(l.currentFunction.parts, l.part, cost)
	if l.currentFunction.Object != nil {
		addPartCost(l.currentFunction.Object.parts, l.part, cost)
	}
	l.touched[l.currentFunction] = struct{}{}
	l.metrics.observeCostLine()
	return nil
}

func (l *Loader) attributeCallCost(fs *FixString) error {
	cost, ok := parseCostVector(fs, len(l.part.Events))
	if !ok {
		l.diag.Errorf(l.filename, l.lineNo, "malformed call cost vector")
		l.metrics.observeError()
		return nil
	}

	call := l.currentFunction.Calling(l.calledFunction)
	cc := getOrCreateCallCost(call.parts, l.part)
	cc.add(l.callCount, cost)
	l.graph.updateCallMax(cost)

	if l.hasAddrInfo && l.currentInstr != nil {
		perInstr, ok := call.instrCosts[l.currentInstr]
		if !ok {
			perInstr = make(map[*Part]*CallCost)
			call.instrCosts[l.currentInstr] = perInstr
		}
		getOrCreateCallCost(perInstr, l.part).add(l.callCount, cost)
	}
	if l.hasLineInfo && l.currentLine != nil {
		perLine, ok := call.lineCosts[l.currentLine]
		if !ok {
			perLine = make(map[*Part]*CallCost)
			call.lineCosts[l.currentLine] = perLine
		}
		getOrCreateCallCost(perLine, l.part).add(l.callCount, cost)
	}

	l.metrics.observeCostLine()
	return nil
}

func getOrCreateCallCost(m map[*Part]*CallCost, part *Part) *CallCost {
	cc, ok := m[part]
	if !ok {
		cc = &CallCost{}
		m[part] = cc
	}
	return cc
}

func (l *Loader) attributeJump(fs *FixString) error {
	if l.jumpToFunction == nil {
		l.jumpToFunction = l.currentFunction
	}
	if l.jumpToFile == nil {
		l.jumpToFile = l.currentFunctionSource.File
	}
	// Ensure the target function has a source projection for its file, for
	// downstream annotation layers; the jump edge itself only needs the
	// positions.
	l.jumpToFunction.SourceFile(l.jumpToFile)

	conditional := l.pending == pendingCondJump
	jump := l.graph.getJumpLocked(l.currentFunction, l.jumpToFunction, l.cursor, l.targetPos, conditional)

	jc, ok := jump.parts[l.part]
	if !ok {
		jc = &JumpCost{}
		jump.parts[l.part] = jc
	}
	jc.Executed += l.jumpsExecuted
	if conditional {
		jc.Followed += l.jumpsFollowed
	}

	l.jumpsExecuted = 0
	l.jumpsFollowed = 0
	l.metrics.observeCostLine()
	return nil
}
