// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package procbuild is the concrete, subprocess-based implementation of
// the black-box PEP-517 builder contract spec.md §1 deliberately specifies
// only at its interface. It shells out to a Python interpreter running the
// standard `pep517`/`build`/`pip` entry points, the way a real bootstrap
// run would; the PEP-517 hook invocation itself stays out of scope beyond
// that process boundary.
package procbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fromager-project/fromager/pkg/buildenv"
	"github.com/pkg/errors"
)

// Runner invokes Python build tooling as subprocesses, streaming output to
// both an in-memory buffer and the process log.
type Runner struct {
	PythonExe string // defaults to "python3"
}

func (r Runner) python() string {
	if r.PythonExe == "" {
		return "python3"
	}
	return r.PythonExe
}

// run executes args with dir as the working directory, mirroring the
// teacher's script-execution helper: output is captured and also streamed
// to the process log for live visibility.
func (r Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	output := new(bytes.Buffer)
	outAndLog := io.MultiWriter(output, log.Default().Writer())
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = outAndLog
	cmd.Stderr = outAndLog
	cmd.Dir = dir
	err := cmd.Run()
	return output.String(), err
}

// GetRequiresForBuildWheel implements extract.Hooks by invoking the
// backend's get_requires_for_build_wheel hook through pypa/build's
// "pyproject_hooks" entry point and parsing one requirement per line of
// stdout.
func (r Runner) GetRequiresForBuildWheel(ctx context.Context, sourceRoot string) ([]string, error) {
	out, err := r.run(ctx, sourceRoot, r.python(), "-m", "pyproject_hooks", "get_requires_for_build_wheel")
	if err != nil {
		return nil, errors.Wrapf(err, "get_requires_for_build_wheel in %s", sourceRoot)
	}
	return splitLines(out), nil
}

// GetRequiresForBuildSdist implements extract.Hooks similarly for
// get_requires_for_build_sdist.
func (r Runner) GetRequiresForBuildSdist(ctx context.Context, sourceRoot string) ([]string, error) {
	out, err := r.run(ctx, sourceRoot, r.python(), "-m", "pyproject_hooks", "get_requires_for_build_sdist")
	if err != nil {
		return nil, errors.Wrapf(err, "get_requires_for_build_sdist in %s", sourceRoot)
	}
	return splitLines(out), nil
}

// BuildSdist implements wheel.Builder by invoking `python -m build --sdist`.
func (r Runner) BuildSdist(ctx context.Context, sourceRoot, outDir string) (string, error) {
	_, err := r.run(ctx, sourceRoot, r.python(), "-m", "build", "--sdist", "--outdir", outDir)
	if err != nil {
		return "", errors.Wrapf(err, "building sdist for %s", sourceRoot)
	}
	return latestArtifact(outDir, ".tar.gz")
}

// BuildWheel implements wheel.Builder by invoking `python -m build --wheel`.
func (r Runner) BuildWheel(ctx context.Context, sourceRoot, outDir string) (string, error) {
	_, err := r.run(ctx, sourceRoot, r.python(), "-m", "build", "--wheel", "--outdir", outDir)
	if err != nil {
		return "", errors.Wrapf(err, "building wheel for %s", sourceRoot)
	}
	return latestArtifact(outDir, ".whl")
}

// InstallOnlyBinary implements buildenv.Installer by invoking pip with
// --only-binary=:all: against the supplied index URLs, in order.
func (r Runner) InstallOnlyBinary(ctx context.Context, reqs []string, indexURLs []string) ([]buildenv.InstalledPackage, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	args := []string{r.python(), "-m", "pip", "install", "--only-binary=:all:", "--report", "-"}
	for i, u := range indexURLs {
		if i == 0 {
			args = append(args, "--index-url", u)
		} else {
			args = append(args, "--extra-index-url", u)
		}
	}
	args = append(args, reqs...)
	out, err := r.run(ctx, "", args...)
	if err != nil {
		return nil, errors.Wrapf(err, "installing %v (searched %v)", reqs, indexURLs)
	}
	return parsePipReport(out), nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func latestArtifact(dir, suffix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s artifact produced in %s", suffix, dir)
	}
	return matches[len(matches)-1], nil
}

// parsePipReport is a placeholder line-oriented parser for pip's
// --report output; a full implementation would decode the JSON install
// report pip emits with --report.
func parsePipReport(out string) []buildenv.InstalledPackage {
	var pkgs []buildenv.InstalledPackage
	for _, line := range splitLines(out) {
		if name, version, ok := strings.Cut(line, "=="); ok {
			pkgs = append(pkgs, buildenv.InstalledPackage{Name: name, Version: version})
		}
	}
	return pkgs
}
