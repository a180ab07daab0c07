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
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestLogDiagnosticsWritesLevelledLines(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogfmtLogger(&buf)
	diag := NewLogDiagnostics(logger)

	diag.Warnf("main.c", 10, "clamped", "was", -1)
	diag.Errorf("main.c", 11, "malformed cost vector")

	out := buf.String()
	require.Contains(t, out, "level=warn")
	require.Contains(t, out, "msg=clamped")
	require.Contains(t, out, "line=10")
	require.Contains(t, out, "level=error")
	require.Contains(t, out, "msg=\"malformed cost vector\"")
}

func TestDiscardDiagnosticsNeverPanics(t *testing.T) {
	var d discardDiagnostics
	d.Warnf("x", 1, "m")
	d.Errorf("x", 1, "m")
}

func TestNewLogDiagnosticsNilLoggerFallsBack(t *testing.T) {
	diag := NewLogDiagnostics(nil)
	require.NotPanics(t, func() {
		diag.Warnf("x", 1, "m")
	})
}
