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

// FixString is a zero-copy, mutable view into a line buffer. The Strip*
// methods consume from the front of the view; those that can fail to match
// report whether they matched, and on a non-match leave the view untouched.
// It is re-entrant over the same
// bytes: Get/Set let a caller save the current (ptr, len) pair and restore
// it later so the same cost suffix can be fed to two accumulators.
type FixString struct {
	b []byte
}

// NewFixString wraps a line buffer. The caller retains ownership of b;
// FixString never copies it.
func NewFixString(b []byte) FixString {
	return FixString{b: b}
}

// Len reports the number of remaining bytes in the view.
func (s *FixString) Len() int { return len(s.b) }

// Ascii returns the remaining bytes as a string.
func (s *FixString) Ascii() string { return string(s.b) }

// Get returns the current view, for later restoration via Set.
func (s *FixString) Get() FixString { return FixString{b: s.b} }

// Set restores a previously saved view.
func (s *FixString) Set(saved FixString) { s.b = saved.b }

// First peeks the next byte without consuming it.
func (s *FixString) First() (byte, bool) {
	if len(s.b) == 0 {
		return 0, false
	}
	return s.b[0], true
}

// StripFirst consumes and returns the next byte.
func (s *FixString) StripFirst() (byte, bool) {
	c, ok := s.First()
	if ok {
		s.b = s.b[1:]
	}
	return c, ok
}

// StripPrefix consumes a literal prefix if present.
func (s *FixString) StripPrefix(prefix string) bool {
	if len(s.b) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if s.b[i] != prefix[i] {
			return false
		}
	}
	s.b = s.b[len(prefix):]
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// StripSpaces consumes leading whitespace.
func (s *FixString) StripSpaces() {
	i := 0
	for i < len(s.b) && isSpace(s.b[i]) {
		i++
	}
	s.b = s.b[i:]
}

// stripTrailingSpaces removes trailing whitespace from the view in place.
func (s *FixString) stripTrailingSpaces() {
	i := len(s.b)
	for i > 0 && isSpace(s.b[i-1]) {
		i--
	}
	s.b = s.b[:i]
}

// StripSurroundingSpaces trims both leading and trailing whitespace.
func (s *FixString) StripSurroundingSpaces() {
	s.StripSpaces()
	s.stripTrailingSpaces()
}

// StripUInt decodes an unsigned decimal into a uint32. If skipSpacesAfter is
// true, trailing whitespace is consumed after the digits.
func (s *FixString) StripUInt(skipSpacesAfter bool) (uint32, bool) {
	v, ok := s.stripDigits()
	if !ok {
		return 0, false
	}
	if skipSpacesAfter {
		s.StripSpaces()
	}
	return uint32(v), true
}

// StripUInt64 decodes an unsigned decimal into a uint64.
func (s *FixString) StripUInt64(skipSpacesAfter bool) (uint64, bool) {
	v, ok := s.stripDigits()
	if !ok {
		return 0, false
	}
	if skipSpacesAfter {
		s.StripSpaces()
	}
	return v, true
}

func (s *FixString) stripDigits() (uint64, bool) {
	i := 0
	var v uint64
	for i < len(s.b) && isDigit(s.b[i]) {
		v = v*10 + uint64(s.b[i]-'0')
		i++
	}
	if i == 0 {
		return 0, false
	}
	s.b = s.b[i:]
	return v, true
}

// StripHex64 decodes an unprefixed hexadecimal address.
func (s *FixString) StripHex64(skipSpacesAfter bool) (uint64, bool) {
	i := 0
	var v uint64
	for i < len(s.b) {
		c := s.b[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			goto done
		}
		v = v*16 + d
		i++
	}
done:
	if i == 0 {
		return 0, false
	}
	s.b = s.b[i:]
	if skipSpacesAfter {
		s.StripSpaces()
	}
	return v, true
}

// StripName consumes an identifier: any run of non-space bytes.
func (s *FixString) StripName() (string, bool) {
	i := 0
	for i < len(s.b) && !isSpace(s.b[i]) {
		i++
	}
	if i == 0 {
		return "", false
	}
	name := string(s.b[:i])
	s.b = s.b[i:]
	return name, true
}

// StripUntil slices off and returns the view up to (but excluding) the
// first occurrence of ch, leaving the view positioned at ch (not consumed).
// If ch does not occur, the whole remaining view is returned and consumed.
func (s *FixString) StripUntil(ch byte) FixString {
	i := 0
	for i < len(s.b) && s.b[i] != ch {
		i++
	}
	head := s.b[:i]
	s.b = s.b[i:]
	return FixString{b: head}
}

// IsEmpty reports whether the view has no remaining bytes.
func (s *FixString) IsEmpty() bool { return len(s.b) == 0 }
