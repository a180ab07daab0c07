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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictionaryObjectBindAndReference(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	o, err := d.Object("(3) libc.so")
	require.NoError(t, err)
	require.Equal(t, "libc.so", o.Name)

	ref, err := d.Object("(3)")
	require.NoError(t, err)
	require.Same(t, o, ref)
}

func TestDictionaryObjectBareName(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	a, err := d.Object("a.out")
	require.NoError(t, err)
	b, err := d.Object("a.out")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestDictionaryObjectUnboundReferenceErrors(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	_, err := d.Object("(5)")
	require.Error(t, err)
}

func TestDictionaryFileGrowsBeyondInitialSlots(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	f, err := d.File("(2000) huge.c")
	require.NoError(t, err)
	require.Equal(t, "huge.c", f.Name)

	ref, err := d.File("(2000)")
	require.NoError(t, err)
	require.Same(t, f, ref)
}

func TestDictionaryFunctionFillsInMissingObject(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	file := g.GetFile("main.c")
	fn, mismatch, err := d.Function("(1) main", file, nil)
	require.NoError(t, err)
	require.Nil(t, mismatch)
	require.Nil(t, fn.Object)

	obj := g.GetObject("a.out")
	fn2, mismatch, err := d.Function("(1)", file, obj)
	require.NoError(t, err)
	require.Nil(t, mismatch)
	require.Same(t, fn, fn2)
	require.Same(t, obj, fn.Object)
}

func TestDictionaryFunctionReportsObjectMismatch(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	file := g.GetFile("main.c")
	obj1 := g.GetObject("a.out")
	obj2 := g.GetObject("b.out")

	fn, _, err := d.Function("(1) main", file, obj1)
	require.NoError(t, err)

	fn2, mismatch, err := d.Function("(1)", file, obj2)
	require.NoError(t, err)
	require.Same(t, fn, fn2)
	require.NotNil(t, mismatch)
	require.Same(t, obj1, mismatch.Found)
	require.Same(t, obj2, mismatch.Given)
	// First binding wins.
	require.Same(t, obj1, fn.Object)
}

func TestDictionaryFunctionRedefinitionRebindsSlot(t *testing.T) {
	g := NewGraph()
	d := NewDictionary(g)

	file := g.GetFile("main.c")
	first, _, err := d.Function("(1) foo", file, nil)
	require.NoError(t, err)

	second, _, err := d.Function("(1) bar", file, nil)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, "bar", second.Name)

	ref, _, err := d.Function("(1)", file, nil)
	require.NoError(t, err)
	require.Same(t, second, ref)
}
