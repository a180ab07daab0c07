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

func TestFixStringStripPrefix(t *testing.T) {
	fs := NewFixString([]byte("fn=main"))
	require.True(t, fs.StripPrefix("fn="))
	require.Equal(t, "main", fs.Ascii())

	require.False(t, fs.StripPrefix("x="))
	require.Equal(t, "main", fs.Ascii())
}

func TestFixStringGetSetReentrant(t *testing.T) {
	fs := NewFixString([]byte("10 20 30"))
	saved := fs.Get()

	v, ok := fs.StripUInt64(true)
	require.True(t, ok)
	require.Equal(t, uint64(10), v)

	fs.Set(saved)
	v, ok = fs.StripUInt64(true)
	require.True(t, ok)
	require.Equal(t, uint64(10), v)
}

func TestFixStringStripUInt(t *testing.T) {
	fs := NewFixString([]byte("123abc"))
	v, ok := fs.StripUInt(false)
	require.True(t, ok)
	require.Equal(t, uint32(123), v)
	require.Equal(t, "abc", fs.Ascii())
}

func TestFixStringStripUIntNoDigits(t *testing.T) {
	fs := NewFixString([]byte("abc"))
	_, ok := fs.StripUInt(false)
	require.False(t, ok)
	require.Equal(t, "abc", fs.Ascii())
}

func TestFixStringStripHex64(t *testing.T) {
	fs := NewFixString([]byte("1a2B3c rest"))
	v, ok := fs.StripHex64(true)
	require.True(t, ok)
	require.Equal(t, uint64(0x1a2b3c), v)
	require.Equal(t, "rest", fs.Ascii())
}

func TestFixStringStripName(t *testing.T) {
	fs := NewFixString([]byte("main.c 10"))
	name, ok := fs.StripName()
	require.True(t, ok)
	require.Equal(t, "main.c", name)
	fs.StripSpaces()
	require.Equal(t, "10", fs.Ascii())
}

func TestFixStringStripSurroundingSpaces(t *testing.T) {
	fs := NewFixString([]byte("   Trigger: foo  "))
	fs.StripSurroundingSpaces()
	require.Equal(t, "Trigger: foo", fs.Ascii())
}

func TestFixStringStripUntil(t *testing.T) {
	fs := NewFixString([]byte("formula:rest"))
	head := fs.StripUntil(':')
	require.Equal(t, "formula", head.Ascii())
	require.Equal(t, ":rest", fs.Ascii())
}

func TestFixStringIsEmpty(t *testing.T) {
	fs := NewFixString(nil)
	require.True(t, fs.IsEmpty())
	fs = NewFixString([]byte("x"))
	require.False(t, fs.IsEmpty())
}
