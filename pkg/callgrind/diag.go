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
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Diagnostics is the sink the loader reports non-fatal problems to (spec
// error handling, severities Error and Warning). Fatal conditions abort the
// load and are returned as a Go error instead; they never go through here.
//
// The core never depends on a global logger: every loader is constructed
// with one of these, following the teacher's convention of injecting a
// go-kit log.Logger rather than reaching for a package-level one.
type Diagnostics interface {
	Warnf(file string, line int, msg string, keyvals ...interface{})
	Errorf(file string, line int, msg string, keyvals ...interface{})
}

// NewLogDiagnostics adapts a go-kit logger into a Diagnostics sink.
func NewLogDiagnostics(logger log.Logger) Diagnostics {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &logDiagnostics{logger: logger}
}

type logDiagnostics struct {
	logger log.Logger
}

func (d *logDiagnostics) Warnf(file string, line int, msg string, keyvals ...interface{}) {
	kv := append([]interface{}{"msg", msg, "file", file, "line", line}, keyvals...)
	level.Warn(d.logger).Log(kv...)
}

func (d *logDiagnostics) Errorf(file string, line int, msg string, keyvals ...interface{}) {
	kv := append([]interface{}{"msg", msg, "file", file, "line", line}, keyvals...)
	level.Error(d.logger).Log(kv...)
}

// discardDiagnostics drops everything; used as a safe default when the
// caller passes no Diagnostics and no logger.
type discardDiagnostics struct{}

func (discardDiagnostics) Warnf(string, int, string, ...interface{})  {}
func (discardDiagnostics) Errorf(string, int, string, ...interface{}) {}
