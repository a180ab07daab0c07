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

// Package flags declares the callgrind-inspect command line, following the
// teacher's convention of a single kong-tagged struct per binary.
package flags

import "time"

// Flags is the complete command line of callgrind-inspect.
type Flags struct {
	LogLevel string `kong:"enum='error,warn,info,debug',help='Log level.',default='info'"`

	HTTPAddress string `kong:"help='Address to bind the metrics HTTP server to.',default=':7072'"`

	Wait        bool          `kong:"help='Retry opening each input with backoff if it does not exist yet, for racing a still-running profiler.'"`
	WaitTimeout time.Duration `kong:"help='Maximum total time to retry waiting for an input file before giving up.',default='30s'"`

	PprofOut string `kong:"help='If set, write a pprof-format export to this path instead of printing a summary. With several inputs, one export per part is written to <path>.<part-id>.'"`

	Inputs []string `kong:"arg,optional,help='Callgrind/Cachegrind dump files to load as parts of one trace.'"`
}
