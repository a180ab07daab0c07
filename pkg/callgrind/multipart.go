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
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// PartInput names one part file to load: the profiler produces one
// Callgrind dump per thread/process/part, and a trace is the union of all
// of them attributed into a single Graph.
type PartInput struct {
	ID       string
	Filename string
	Reader   io.Reader
	Size     int64
}

// LoadParts loads each input into its own Part, concurrently, into a
// single shared Graph. Per spec §5, each input gets an independent Loader
// (and so its own dictionary and cursor); the Graph's interning paths are
// internally synchronized, so concurrent loaders never race creating the
// same object, file, or function. If any part fails fatally the whole
// call returns its error; parts that had already finished are still
// attached to graph.
func LoadParts(ctx context.Context, graph *Graph, diag Diagnostics, metrics *Metrics, inputs []PartInput) ([]*Part, error) {
	g, ctx := errgroup.WithContext(ctx)
	parts := make([]*Part, len(inputs))

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			part := NewPart(in.ID)
			loader := NewLoader(graph, diag, metrics, nil)
			if err := loader.Load(ctx, in.Filename, in.Reader, in.Size, part); err != nil {
				return fmt.Errorf("loading part %q: %w", in.ID, err)
			}
			parts[i] = part
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}
