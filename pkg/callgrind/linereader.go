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
	"bufio"
	"io"
)

// lineReader yields one logical line at a time from a dump file, tracking
// the byte offset consumed so far for progress reporting. Lines are
// returned without their trailing newline.
type lineReader struct {
	r       *bufio.Reader
	size    int64
	current int64
}

func newLineReader(r io.Reader, size int64) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), size: size}
}

// next reads the next logical line. It returns ok=false at EOF.
func (lr *lineReader) next() (line []byte, ok bool, err error) {
	b, err := lr.r.ReadBytes('\n')
	if len(b) == 0 && err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	lr.current += int64(len(b))
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	if err == io.EOF {
		// Last line had no trailing newline; still valid, next call is EOF.
		return b, true, nil
	}
	return b, true, nil
}

// percent reports the integer percentage of bytes consumed so far, clamped
// to [0, 100]. It returns 0 if the total size is unknown or zero.
func (lr *lineReader) percent() int {
	if lr.size <= 0 {
		return 0
	}
	p := int(100 * lr.current / lr.size)
	if p > 100 {
		p = 100
	}
	return p
}
