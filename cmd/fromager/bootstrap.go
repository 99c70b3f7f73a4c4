// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fromager-project/fromager/internal/httpx"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/pkg/acquire"
	"github.com/fromager-project/fromager/pkg/assemble"
	"github.com/fromager-project/fromager/pkg/bootstrap"
	"github.com/fromager-project/fromager/pkg/constraints"
	"github.com/fromager-project/fromager/pkg/procbuild"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/fromager-project/fromager/pkg/resolve"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/fromager-project/fromager/pkg/wheelcache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func bootstrapCmd() *cobra.Command {
	var (
		wheelsRepo      string
		settingsDir     string
		globalSettings  string
		constraintsFile string
		patchesDir      string
		workDir         string
		pythonExe       string
		skipConstraints bool
		previousGraph   string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap REQUIREMENTS_FILE",
		Short: "Recursively resolve, build, and cache wheels for a set of requirements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toplevel, err := readRequirements(args[0])
			if err != nil {
				return err
			}

			st, err := settings.Load(globalSettings, settingsDir)
			if err != nil {
				return errors.Wrap(err, "loading settings")
			}

			var cs *constraints.Store
			if constraintsFile != "" {
				f, err := os.Open(constraintsFile)
				if err != nil {
					return errors.Wrap(err, "opening constraints file")
				}
				defer f.Close()
				cs, err = constraints.Parse(f)
				if err != nil {
					return errors.Wrap(err, "parsing constraints file")
				}
			}

			cache := &wheelcache.Cache{Root: wheelsRepo}
			if err := cache.Init(); err != nil {
				return err
			}

			var client httpx.BasicClient = http.DefaultClient
			comps := &assemble.Components{
				Resolvers: resolve.NewRegistry("pypi",
					resolve.PyPIProvider{},
				),
				Constraints: cs,
				Acquirer: acquire.Acquirer{
					Client:      client,
					SdistsDir:   cache.DownloadsDir(),
					PrebuiltDir: cache.PrebuiltDir(),
					WorkDir:     filepath.Join(workDir, "git"),
				},
				Cache:      cache,
				Runner:     procbuild.Runner{PythonExe: pythonExe},
				SourcesDir: filepath.Join(workDir, "src"),
				PatchesDir: patchesDir,
			}

			o := &bootstrap.Orchestrator{
				Settings:   st,
				Resolver:   comps,
				Acquirer:   comps,
				Patcher:    comps,
				Extractor:  comps,
				EnvBuilder: comps,
				Builder:    comps,
				Cache:      comps,
				BuildDir:   workDir,
				SkipConstraints: skipConstraints,
			}
			if previousGraph != "" {
				prev, err := bootstrap.LoadPrevious(previousGraph, cs)
				if err != nil {
					return err
				}
				o.Previous = prev
			}

			wc := bootstrap.WorkContext{
				Context:     cmd.Context(),
				Environment: pep508.DefaultEnvironment("3.12", "3.12.0", "linux", "cpython"),
			}
			if wc.Context == nil {
				wc.Context = context.Background()
			}
			if err := o.Bootstrap(wc, toplevel); err != nil {
				return err
			}
			return o.EmitResults(workDir, skipConstraints)
		},
	}

	cmd.Flags().StringVar(&wheelsRepo, "wheels-repo", "wheels-repo", "wheel cache root directory")
	cmd.Flags().StringVar(&settingsDir, "settings-dir", "", "per-package settings directory")
	cmd.Flags().StringVar(&globalSettings, "settings-file", "", "global settings YAML file")
	cmd.Flags().StringVar(&constraintsFile, "constraints", "", "constraints.txt file")
	cmd.Flags().StringVar(&patchesDir, "patches-dir", "patches", "patch directory")
	cmd.Flags().StringVar(&workDir, "work-dir", "work-dir", "scratch and output directory")
	cmd.Flags().StringVar(&pythonExe, "python", "python3", "python interpreter used for build subprocesses")
	cmd.Flags().BoolVar(&skipConstraints, "skip-constraints", false, "omit constraints.txt instead of failing on a duplicate resolution")
	cmd.Flags().StringVar(&previousGraph, "previous-bootstrap-file", "", "path to a prior run's graph.json for repeatable builds")
	return cmd
}

// readRequirements parses one PEP 508 toplevel requirement per
// non-comment, non-blank line.
func readRequirements(path string) ([]requirement.Requirement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var out []requirement.Requirement
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := requirement.Parse(line, requirement.TypeToplevel)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing requirement %q", line)
		}
		out = append(out, req)
	}
	return out, sc.Err()
}
