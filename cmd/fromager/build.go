// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fromager-project/fromager/internal/httpx"
	"github.com/fromager-project/fromager/pkg/acquire"
	"github.com/fromager-project/fromager/pkg/assemble"
	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/fromager-project/fromager/pkg/procbuild"
	"github.com/fromager-project/fromager/pkg/scheduler"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/fromager-project/fromager/pkg/wheelcache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func buildCmd() *cobra.Command {
	var (
		wheelsRepo     string
		settingsDir    string
		globalSettings string
		workDir        string
		pythonExe      string
		logDir         string
		maxJobs        int
		cpuCores       int
		memGB          float64
	)

	cmd := &cobra.Command{
		Use:   "build GRAPH_FILE",
		Short: "Build every wheel named in a previously-emitted graph.json, respecting build order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "opening %s", args[0])
			}
			g := graph.New()
			if err := json.Unmarshal(data, g); err != nil {
				return errors.Wrap(err, "parsing graph.json")
			}

			st, err := settings.Load(globalSettings, settingsDir)
			if err != nil {
				return errors.Wrap(err, "loading settings")
			}

			cache := &wheelcache.Cache{Root: wheelsRepo}
			if err := cache.Init(); err != nil {
				return err
			}

			comps := &assemble.Components{
				Acquirer:   acquire.Acquirer{Client: httpx.BasicClient(http.DefaultClient)},
				Cache:      cache,
				Runner:     procbuild.Runner{PythonExe: pythonExe},
				SourcesDir: filepath.Join(workDir, "src"),
			}

			builder := &wheelBuilder{comps: comps, cache: cache, settings: st}

			sched := &scheduler.Scheduler{
				Graph:           g,
				Builder:         builder,
				ArtifactChecker: builder,
				Limits:          scheduler.Limits{CPUCores: cpuCores, MemoryGB: memGB, MaxJobs: maxJobs},
				PackageLimits:   builder.packageLimits,
				LogDir:          logDir,
			}
			summary, err := sched.Run(cmd.Context())
			if err != nil {
				return err
			}
			return summary.WriteReports(workDir)
		},
	}

	cmd.Flags().StringVar(&wheelsRepo, "wheels-repo", "wheels-repo", "wheel cache root directory")
	cmd.Flags().StringVar(&settingsDir, "settings-dir", "", "per-package settings directory")
	cmd.Flags().StringVar(&globalSettings, "settings-file", "", "global settings YAML file")
	cmd.Flags().StringVar(&workDir, "work-dir", "work-dir", "scratch and output directory")
	cmd.Flags().StringVar(&pythonExe, "python", "python3", "python interpreter used for build subprocesses")
	cmd.Flags().StringVar(&logDir, "log-dir", "work-dir/logs", "per-package build log directory")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 8, "hard cap on concurrent builds")
	cmd.Flags().IntVar(&cpuCores, "cpu-cores", 4, "host CPU cores available to the scheduler")
	cmd.Flags().Float64Var(&memGB, "memory-gb", 8, "host memory in GB available to the scheduler")
	return cmd
}

// wheelBuilder adapts assemble.Components into the scheduler's narrow
// Builder/ArtifactChecker interfaces: it needs the node's parsed version
// and settings, neither of which the scheduler itself tracks.
type wheelBuilder struct {
	comps    *assemble.Components
	cache    *wheelcache.Cache
	settings *settings.Store
}

func (b *wheelBuilder) Build(ctx context.Context, n *graph.Node, logw *os.File) (string, error) {
	version := n.Version.String()
	eff := b.settings.Get(n.CanonicalizedName, "", version)
	sourceRoot := filepath.Join(b.comps.SourcesDir, n.CanonicalizedName+"-"+version)
	return b.comps.BuildWheel(ctx, sourceRoot, eff, eff.ApplicableChangelog(version))
}

func (b *wheelBuilder) HasArtifact(n *graph.Node) bool {
	_, ok := b.cache.HasFingerprint(n.Key)
	return ok
}

func (b *wheelBuilder) packageLimits(canonicalName string) scheduler.PackageLimits {
	eff := b.settings.Get(canonicalName, "", "")
	return scheduler.PackageLimits{
		CPUCoresPerJob: eff.CPUCoresPerJob,
		MemoryPerJobGB: eff.MemoryPerJobGB,
		ExclusiveBuild: eff.ExclusiveBuild,
	}
}
