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

// Position is an address and/or line-number range identifying where a cost
// was measured. When From == To the position is a single point.
type Position struct {
	FromAddr, ToAddr uint64
	FromLine, ToLine uint32
}

// parsePosition decodes the address and/or line-number prefix of a cost
// line against the running cursor. It is rejection-only: on failure the
// cursor is never touched, so the caller can fall through and try to
// interpret the line as a header line instead.
//
// Columns are parsed address-then-line, in that order, matching the order
// "positions:" declares them.
func parsePosition(line *FixString, cursor Position, hasAddrInfo, hasLineInfo bool, clampWarning func()) (Position, bool) {
	newPos := cursor

	if hasAddrInfo {
		save := line.Get()
		c, ok := line.First()
		if !ok {
			line.Set(save)
			return Position{}, false
		}

		switch {
		case c == '*':
			line.StripFirst()
			newPos.FromAddr = cursor.FromAddr
			newPos.ToAddr = cursor.ToAddr
		case c == '+':
			line.StripFirst()
			diff, ok := line.StripUInt64(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			newPos.FromAddr = cursor.FromAddr + diff
			newPos.ToAddr = newPos.FromAddr
		case c == '-':
			line.StripFirst()
			diff, ok := line.StripUInt64(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			newPos.FromAddr = cursor.FromAddr - diff
			newPos.ToAddr = newPos.FromAddr
		case isHexDigit(c):
			v, ok := line.StripHex64(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			newPos.FromAddr = v
			newPos.ToAddr = v
		default:
			line.Set(save)
			return Position{}, false
		}

		// Optional trailing range.
		if c, ok := line.First(); ok {
			switch c {
			case '+':
				line.StripFirst()
				if diff, ok := line.StripUInt64(true); ok {
					newPos.ToAddr = newPos.FromAddr + diff
				}
			case '-', ':':
				line.StripFirst()
				if v, ok := line.StripHex64(true); ok {
					newPos.ToAddr = v
				}
			}
		}
		line.StripSpaces()
	}

	if hasLineInfo {
		save := line.Get()
		c, ok := line.First()
		if !ok {
			line.Set(save)
			return Position{}, false
		}
		if c > '9' {
			line.Set(save)
			return Position{}, false
		}

		switch {
		case c == '*':
			line.StripFirst()
			newPos.FromLine = cursor.FromLine
			newPos.ToLine = cursor.ToLine
		case c == '+':
			line.StripFirst()
			diff, ok := line.StripUInt(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			newPos.FromLine = cursor.FromLine + diff
			newPos.ToLine = newPos.FromLine
		case c == '-':
			line.StripFirst()
			diff, ok := line.StripUInt(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			if cursor.FromLine < diff {
				if clampWarning != nil {
					clampWarning()
				}
				newPos.FromLine = 0
			} else {
				newPos.FromLine = cursor.FromLine - diff
			}
			newPos.ToLine = newPos.FromLine
		case isDigit(c):
			v, ok := line.StripUInt(false)
			if !ok {
				line.Set(save)
				return Position{}, false
			}
			newPos.FromLine = v
			newPos.ToLine = v
		default:
			line.Set(save)
			return Position{}, false
		}

		// Optional trailing range.
		if c, ok := line.First(); ok {
			switch c {
			case '+':
				line.StripFirst()
				if diff, ok := line.StripUInt(true); ok {
					newPos.ToLine = newPos.FromLine + diff
				}
			case '-', ':':
				line.StripFirst()
				if v, ok := line.StripUInt(true); ok {
					newPos.ToLine = v
				}
			}
		}
		line.StripSpaces()
	}

	return newPos, true
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
