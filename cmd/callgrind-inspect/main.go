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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parca-dev/callgrind-core/cmd/callgrind-inspect/flags"
	"github.com/parca-dev/callgrind-core/pkg/callgrind"
	"github.com/parca-dev/callgrind-core/pkg/callgrind/pprofexport"
)

func main() {
	var f flags.Flags
	kong.Parse(&f, kong.Description("Inspect Callgrind/Cachegrind profile dumps."))

	logger := newLogger(f.LogLevel)

	if len(f.Inputs) == 0 {
		level.Error(logger).Log("msg", "no input files given")
		os.Exit(1)
	}

	figure.NewColorFigure("Callgrind Inspect", "standard", "cyan", true).Print()

	reg := prometheus.NewRegistry()
	metrics := callgrind.NewMetrics(reg)

	if err := run(logger, reg, metrics, f); err != nil {
		level.Error(logger).Log("msg", "exiting with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(logLevel string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	var lvl level.Option
	switch logLevel {
	case "error":
		lvl = level.AllowError()
	case "warn":
		lvl = level.AllowWarn()
	case "debug":
		lvl = level.AllowDebug()
	default:
		lvl = level.AllowInfo()
	}
	return level.NewFilter(logger, lvl)
}

func run(logger log.Logger, reg *prometheus.Registry, metrics *callgrind.Metrics, f flags.Flags) error {
	var g okrun.Group
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: f.HTTPAddress, Handler: mux}
	g.Add(func() error {
		level.Info(logger).Log("msg", "starting metrics server", "addr", f.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	})

	g.Add(func() error {
		defer cancel()
		return inspect(ctx, logger, metrics, f)
	}, func(error) {
		cancel()
	})

	g.Add(okrun.SignalHandler(ctx, os.Interrupt))

	return g.Run()
}

// inspect opens every input (retrying with backoff when --wait is set),
// loads them concurrently into one graph, and either writes a pprof export
// or prints a human-readable summary.
func inspect(ctx context.Context, logger log.Logger, metrics *callgrind.Metrics, f flags.Flags) error {
	files := make([]*os.File, 0, len(f.Inputs))
	defer func() {
		for _, file := range files {
			_ = file.Close()
		}
	}()

	inputs := make([]callgrind.PartInput, 0, len(f.Inputs))
	for i, path := range f.Inputs {
		file, size, err := openWithOptionalWait(path, f.Wait, f.WaitTimeout)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		files = append(files, file)
		inputs = append(inputs, callgrind.PartInput{
			ID:       fmt.Sprintf("part-%d", i),
			Filename: path,
			Reader:   file,
			Size:     size,
		})
	}

	graph := callgrind.NewGraph()
	diag := callgrind.NewLogDiagnostics(logger)

	parts, err := callgrind.LoadParts(ctx, graph, diag, metrics, inputs)
	if err != nil {
		return fmt.Errorf("loading parts: %w", err)
	}

	if f.PprofOut != "" {
		return exportPprof(graph, parts, f.PprofOut)
	}
	printSummary(logger, graph, parts)
	return nil
}

// openWithOptionalWait opens path, retrying with exponential backoff while
// the file does not exist yet if wait is set (a profiler may still be
// creating it). It never retries other kinds of errors.
func openWithOptionalWait(path string, wait bool, timeout time.Duration) (*os.File, int64, error) {
	if !wait {
		file, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, 0, err
		}
		return file, info.Size(), nil
	}

	var file *os.File
	var size int64

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return backoff.Permanent(err)
		}
		file, size = f, info.Size()
		return nil
	}, b)
	if err != nil {
		return nil, 0, err
	}
	return file, size, nil
}

func exportPprof(graph *callgrind.Graph, parts []*callgrind.Part, outPath string) error {
	if len(parts) == 1 {
		prof, err := pprofexport.Export(graph, parts[0])
		if err != nil {
			return err
		}
		out, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer out.Close()
		return prof.Write(out)
	}

	for _, part := range parts {
		prof, err := pprofexport.Export(graph, part)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("%s.%s", outPath, part.ID)
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := prof.Write(out); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
	return nil
}

func printSummary(logger log.Logger, graph *callgrind.Graph, parts []*callgrind.Part) {
	for _, part := range parts {
		var totalCost uint64
		for _, c := range part.Totals {
			totalCost += c
		}
		level.Info(logger).Log(
			"msg", "loaded part",
			"part", part.ID,
			"events", fmt.Sprintf("%v", part.Events),
			"command", part.Command,
			"total_cost", humanize.Comma(int64(totalCost)),
		)
	}
	level.Info(logger).Log("msg", "functions interned", "count", humanize.Comma(int64(len(graph.Functions()))))
}
