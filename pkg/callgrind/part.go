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

// Part is one contiguous profile dump, identified by an externally
// provided handle (its ID). A Part carries its own event schema, header
// metadata, and totals; it is sealed at the end of a successful load and
// must not be mutated afterwards.
type Part struct {
	ID string

	Version     string
	Creator     string
	Command     string
	Thread      string
	Timeframe   string
	PartNumber  int
	ProcessID   int
	Trigger     string
	Description []string

	Events      []string
	EventDecls  []EventDecl
	HasLineInfo bool
	HasAddrInfo bool

	Totals CostVector

	explicitSummary bool
	sealed          bool
}

// NewPart creates a fresh, unsealed part with the given handle.
func NewPart(id string) *Part {
	return &Part{ID: id}
}

// Sealed reports whether the part has finished loading.
func (p *Part) Sealed() bool { return p.sealed }

// EventIndex returns the column index of the named event, or -1.
func (p *Part) EventIndex(name string) int {
	for i, e := range p.Events {
		if e == name {
			return i
		}
	}
	return -1
}
