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
	"bytes"
	"io"
)

const detectWindow = 2047

// Detect reports whether r looks like a Callgrind/Cachegrind profile dump:
// the literal "events:" appears at the start of a line within the first
// 2047 bytes. r is read from its current position; callers that need to
// read the rest of the stream afterwards should wrap it in a seeker or
// re-open it.
func Detect(r io.Reader) (bool, error) {
	buf := make([]byte, detectWindow)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	buf = buf[:n]

	const needle = "events:"
	idx := bytes.Index(buf, []byte(needle))
	for idx >= 0 {
		if idx == 0 || buf[idx-1] == '\n' {
			return true, nil
		}
		next := bytes.Index(buf[idx+1:], []byte(needle))
		if next < 0 {
			break
		}
		idx = idx + 1 + next
	}
	return false, nil
}
