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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadString(t *testing.T, content string) (*Graph, *Part, error) {
	t.Helper()
	graph := NewGraph()
	part := NewPart("p")
	loader := NewLoader(graph, nil, nil, nil)
	err := loader.Load(context.Background(), "test.txt", strings.NewReader(content), int64(len(content)), part)
	return graph, part, err
}

func functionByName(graph *Graph, name string) *Function {
	for _, fn := range graph.Functions() {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// S1: plain self-cost attribution.
func TestScenarioSelfCost(t *testing.T) {
	content := "events: Ir\npositions: line\nfl=a.c\nfn=f\n10 100\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	fns := graph.Functions()
	require.Len(t, fns, 1)
	fn := fns[0]
	require.Equal(t, "f", fn.Name)
	require.Equal(t, "a.c", fn.File.Name)

	lines := fn.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, uint32(10), lines[0].LineNo)
	require.Equal(t, CostVector{100}, lines[0].PartCost(part))

	require.Equal(t, CostVector{100}, part.Totals)
}

// S2: compressed function reference resolves to the same entity.
func TestScenarioCompressedReference(t *testing.T) {
	content := "events: Ir\nfl=(1) a.c\nfn=(1) f\n10 100\nfn=(1)\n11 50\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	fns := graph.Functions()
	require.Len(t, fns, 1)
	fn := fns[0]

	lines := fn.Lines()
	require.Len(t, lines, 2)

	byLine := make(map[uint32]CostVector)
	for _, l := range lines {
		byLine[l.LineNo] = l.PartCost(part)
	}
	require.Equal(t, CostVector{100}, byLine[10])
	require.Equal(t, CostVector{50}, byLine[11])
	require.Equal(t, CostVector{150}, part.Totals)
}

// S3: a call edge carries its own count and cost, independent of the
// caller's self cost recorded at the same line.
func TestScenarioCallEdge(t *testing.T) {
	content := "events: Ir\nob=libA\nfl=a.c\nfn=f\n10 100\ncfn=g\ncalls=3 20\n10 60\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	f := functionByName(graph, "f")
	g := functionByName(graph, "g")
	require.NotNil(t, f)
	require.NotNil(t, g)

	calls := f.CallEdges()
	require.Len(t, calls, 1)
	call := calls[0]
	require.Same(t, g, call.Callee)

	cc := call.PartCost(part)
	require.NotNil(t, cc)
	require.Equal(t, uint64(3), cc.Count)
	require.Equal(t, CostVector{60}, cc.Cost)

	var selfAt10 CostVector
	for _, l := range f.Lines() {
		if l.LineNo == 10 {
			selfAt10 = l.PartCost(part)
		}
	}
	require.Equal(t, CostVector{100}, selfAt10)
}

// S4: an address range with "positions: instr line" produces one
// instruction per address, all attributed to the same line.
func TestScenarioAddressRange(t *testing.T) {
	// The wire format encodes addresses as raw hex digits with no "0x"
	// prefix; 1000(hex) == 0x1000.
	content := "events: Ir\npositions: instr line\nfl=a.c\nfn=f\n1000 10 5\n+4 * 5\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	fns := graph.Functions()
	require.Len(t, fns, 1)
	fn := fns[0]

	instrs := fn.Instructions()
	require.Len(t, instrs, 2)

	byAddr := make(map[uint64]CostVector)
	for _, in := range instrs {
		byAddr[in.Addr] = in.PartCost(part)
		require.NotNil(t, in.Line)
		require.Equal(t, uint32(10), in.Line.LineNo)
	}
	require.Equal(t, CostVector{5}, byAddr[0x1000])
	require.Equal(t, CostVector{5}, byAddr[0x1004])
}

// S5: a conditional jump records followed/executed counters. The jump is
// attributed on the position+cost line following jcnd=, which carries the
// jump's source position (line 15 here).
func TestScenarioConditionalJump(t *testing.T) {
	content := "events: Ir\npositions: line\nfl=a.c\nfn=f\n15 10\njcnd=7/10 20\n15 1\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	fn := functionByName(graph, "f")
	require.NotNil(t, fn)

	pos15 := Position{FromLine: 15, ToLine: 15}
	pos20 := Position{FromLine: 20, ToLine: 20}
	jump := graph.getJump(fn, fn, pos15, pos20, true)

	jc := jump.PartCost(part)
	require.NotNil(t, jc)
	require.Equal(t, uint64(7), jc.Followed)
	require.Equal(t, uint64(10), jc.Executed)
}

// S6: a cost line before any events: header is a fatal error.
func TestScenarioMissingEventsHeader(t *testing.T) {
	content := "fl=a.c\nfn=f\n10 100\n"
	_, _, err := loadString(t, content)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoEventsHeader))
}

// Property 4: cost conservation between the line and instruction
// projections of a function, when both kinds of position info are present.
func TestPropertyCostConservationLineVsInstr(t *testing.T) {
	content := "events: Ir\npositions: instr line\nfl=a.c\nfn=f\n1000 10 5\n+4 * 7\n+4 10 3\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	fn := graph.Functions()[0]

	var lineTotal, instrTotal uint64
	for _, l := range fn.Lines() {
		if c := l.PartCost(part); c != nil {
			lineTotal += c[0]
		}
	}
	for _, in := range fn.Instructions() {
		if c := in.PartCost(part); c != nil {
			instrTotal += c[0]
		}
	}
	require.Equal(t, lineTotal, instrTotal)
}

// Property 5: absent an explicit summary:, part totals equal the pointwise
// sum of per-function projections.
func TestPropertyImplicitTotalsSumFunctions(t *testing.T) {
	content := "events: Ir\nfl=a.c\nfn=f\n10 100\nfn=g\n20 40\n"
	graph, part, err := loadString(t, content)
	require.NoError(t, err)

	var want CostVector
	for _, fn := range graph.Functions() {
		want.AddFrom(fn.PartCost(part))
	}
	require.Equal(t, want, part.Totals)
}

// Property 5 (explicit case): an explicit summary: line wins over the
// computed total and is never overwritten afterwards.
func TestExplicitSummaryLineWins(t *testing.T) {
	content := "events: Ir\nfl=a.c\nfn=f\n10 100\nsummary: 999\n"
	_, part, err := loadString(t, content)
	require.NoError(t, err)
	require.Equal(t, CostVector{999}, part.Totals)
}

// Property 6: reloading the same input into two independent graphs produces
// identical call_max vectors.
func TestPropertyCallMaxIdempotentAcrossLoads(t *testing.T) {
	content := "events: Ir\nfl=a.c\nfn=f\n10 10\ncfn=g\ncalls=1 10\n10 70\n"
	g1, _, err := loadString(t, content)
	require.NoError(t, err)
	g2, _, err := loadString(t, content)
	require.NoError(t, err)

	require.Equal(t, g1.CallMax(), g2.CallMax())
}

// Property 7: a file with no events: header never attributes any cost, even
// when it is otherwise well formed.
func TestPropertyNoEventsHeaderMeansNothingAttributed(t *testing.T) {
	content := "fl=a.c\nfn=f\n10 100\n"
	graph, part, err := loadString(t, content)
	require.Error(t, err)
	for _, fn := range graph.Functions() {
		require.Nil(t, fn.PartCost(part))
	}
}

func TestLoaderRejectsReloadOfSealedPart(t *testing.T) {
	graph := NewGraph()
	part := NewPart("p")
	loader := NewLoader(graph, nil, nil, nil)
	content := "events: Ir\nfl=a.c\nfn=f\n10 1\n"
	require.NoError(t, loader.Load(context.Background(), "t.txt", strings.NewReader(content), int64(len(content)), part))

	loader2 := NewLoader(graph, nil, nil, nil)
	err := loader2.Load(context.Background(), "t.txt", strings.NewReader(content), int64(len(content)), part)
	require.ErrorIs(t, err, ErrPartSealed)
}

func TestLoaderFallsBackToDummyOnMissingFunction(t *testing.T) {
	content := "events: Ir\n10 5\n"
	graph, _, err := loadString(t, content)
	require.NoError(t, err)

	fns := graph.Functions()
	require.Len(t, fns, 1)
	require.Equal(t, dummyFunction, fns[0].Name)
}

func TestLoaderReportsObjectMismatchAsWarningNotFatal(t *testing.T) {
	content := "events: Ir\nob=libA\nfl=(2) a.c\nfn=(1) f\n10 1\nob=libB\nfl=(2)\nfn=(1)\n11 1\n"
	graph, _, err := loadString(t, content)
	require.NoError(t, err)

	// The first object binding must win; the mismatch is only a warning.
	fn := functionByName(graph, "f")
	require.NotNil(t, fn)
	require.Equal(t, "libA", fn.Object.Name)
}

func TestLoaderRedefinedCommandLastWins(t *testing.T) {
	content := "cmd: ls -l\nevents: Ir\ncmd: ls -la\nfl=a.c\nfn=f\n10 1\n"
	_, part, err := loadString(t, content)
	require.NoError(t, err)
	require.Equal(t, "ls -la", part.Command)
}

func TestLoaderProgressCallbackEndsAtHundred(t *testing.T) {
	content := "events: Ir\nfl=a.c\nfn=f\n10 1\nfn=g\n20 2\n"
	graph := NewGraph()
	part := NewPart("p")

	var percents []int
	loader := NewLoader(graph, nil, nil, func(p int) { percents = append(percents, p) })
	require.NoError(t, loader.Load(context.Background(), "t.txt", strings.NewReader(content), int64(len(content)), part))

	require.NotEmpty(t, percents)
	require.Equal(t, 100, percents[len(percents)-1])
}
