// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the Parallel Build Scheduler (spec.md
// §4.14): given a serialized graph and the wheel cache, it computes the
// ready-to-build frontier and runs a bounded worker pool over it.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Builder builds a single node's wheel, writing its own log output to w and
// returning the resulting wheel path.
type Builder interface {
	Build(ctx context.Context, n *graph.Node, logw *os.File) (wheelPath string, err error)
}

// ArtifactChecker reports whether a node's artifact already exists, locally
// or in a configured remote cache, so it never needs building.
type ArtifactChecker interface {
	HasArtifact(n *graph.Node) bool
}

// Limits bounds worker concurrency from host capacity and per-package
// settings (spec.md §4.14's cpu_cores_per_job / memory_per_job_gb formula).
// A batch of jobs run together uses the smallest worker count that any of
// its packages allows.
type Limits struct {
	CPUCores   int
	MemoryGB   float64
	MaxJobs    int
}

// PackageLimits gives the per-package job-cost settings used to compute how
// many of that package's jobs the host capacity allows concurrently.
type PackageLimits struct {
	CPUCoresPerJob   float64
	MemoryPerJobGB   float64
	ExclusiveBuild   bool
}

// Workers computes min(floor(cores/cpuPerJob), floor(mem/memPerJob), maxJobs),
// spec.md §4.14's concurrency formula. A zero per-job cost is treated as 1
// to avoid division by zero and an unbounded worker count.
func Workers(l Limits, pl PackageLimits) int {
	cpuPerJob := pl.CPUCoresPerJob
	if cpuPerJob <= 0 {
		cpuPerJob = 1
	}
	memPerJob := pl.MemoryPerJobGB
	if memPerJob <= 0 {
		memPerJob = 1
	}
	byCPU := int(float64(l.CPUCores) / cpuPerJob)
	byMem := int(l.MemoryGB / memPerJob)
	n := byCPU
	if byMem < n {
		n = byMem
	}
	if l.MaxJobs > 0 && l.MaxJobs < n {
		n = l.MaxJobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Result is one node's build outcome.
type Result struct {
	Key       string
	WheelPath string
	Err       error
}

// Summary is the end-of-run markdown+JSON failure report (spec.md §4.14).
type Summary struct {
	RunID     string   `json:"run_id"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Pending   []string `json:"pending"`
}

// Scheduler runs nodes of g through builder respecting build-edge ordering
// and exclusive-build draining.
type Scheduler struct {
	Graph           *graph.Graph
	Builder         Builder
	ArtifactChecker ArtifactChecker
	Limits          Limits
	PackageLimits   func(canonicalName string) PackageLimits
	LogDir          string

	mu        sync.Mutex
	done      map[string]bool
	failed    map[string]bool
	results   []Result
}

// ErrBuildFailed wraps a node build failure to distinguish it from
// scheduling errors.
var ErrBuildFailed = errors.New("build failed")

// Run builds every non-ROOT node reachable in g in rounds, respecting
// build-edge predecessors and draining in-flight work before any
// exclusive-build node (spec.md §4.14). After a round in which a node has
// failed, no further round is started; the other jobs of that same round,
// including its exclusive-build nodes, are still started.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	s.done = map[string]bool{graph.RootKey: true}
	s.failed = map[string]bool{}
	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}

	runID := uuid.New().String()
	var pending []string
	for _, n := range s.Graph.Nodes() {
		if n.Key != graph.RootKey {
			pending = append(pending, n.Key)
		}
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		ready, rest := s.partitionReady(pending)
		if len(ready) == 0 {
			return s.summary(runID, pending), errors.Errorf("no progress possible: remaining nodes have unbuilt build-edge predecessors: %v", pending)
		}
		pending = rest

		failedThisRound, err := s.runRound(ctx, ready)
		if err != nil {
			return s.summary(runID, pending), err
		}
		if failedThisRound {
			return s.summary(runID, pending), errors.Wrap(ErrBuildFailed, "one or more builds failed, no new jobs started")
		}
	}
	return s.summary(runID, nil), nil
}

// partitionReady splits pending into nodes whose build-edge predecessors
// are all done, versus everything else.
func (s *Scheduler) partitionReady(pending []string) (ready, rest []string) {
	for _, key := range pending {
		n := s.Graph.Node(key)
		if n == nil {
			continue
		}
		if s.predecessorsSatisfied(key) {
			ready = append(ready, key)
		} else {
			rest = append(rest, key)
		}
	}
	return ready, rest
}

func (s *Scheduler) predecessorsSatisfied(key string) bool {
	for _, e := range s.Graph.Node(key).Edges {
		if e.RequirementType.IsBuildEdge() && !s.done[e.TargetKey] {
			return false
		}
	}
	return true
}

// runRound builds the ready set concurrently, honoring exclusive-build
// draining: an exclusive node is run alone, after every previously
// dispatched job in this call has completed.
func (s *Scheduler) runRound(ctx context.Context, ready []string) (failedAny bool, err error) {
	var normal, exclusive []string
	for _, key := range ready {
		n := s.Graph.Node(key)
		pl := s.packageLimits(n.CanonicalizedName)
		if pl.ExclusiveBuild {
			exclusive = append(exclusive, key)
		} else {
			normal = append(normal, key)
		}
	}

	if len(normal) > 0 {
		failed, err := s.runConcurrent(ctx, normal)
		if err != nil {
			return failed, err
		}
		failedAny = failedAny || failed
	}
	for _, key := range exclusive {
		failed, err := s.runConcurrent(ctx, []string{key})
		if err != nil {
			return failed, err
		}
		failedAny = failedAny || failed
	}
	return failedAny, nil
}

func (s *Scheduler) packageLimits(name string) PackageLimits {
	if s.PackageLimits == nil {
		return PackageLimits{}
	}
	return s.PackageLimits(name)
}

func (s *Scheduler) runConcurrent(ctx context.Context, keys []string) (failedAny bool, err error) {
	workers := Workers(s.Limits, PackageLimits{})
	for _, key := range keys {
		if w := Workers(s.Limits, s.packageLimits(s.Graph.Node(key).CanonicalizedName)); w < workers {
			workers = w
		}
	}
	sem := semaphore.NewWeighted(int64(workers))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return failedAny, err
		}
		wg.Add(1)
		go func(key string) {
			defer sem.Release(1)
			defer wg.Done()
			res := s.buildOne(ctx, key)
			mu.Lock()
			s.results = append(s.results, res)
			if res.Err != nil {
				s.failed[key] = true
				failedAny = true
			} else {
				s.done[key] = true
			}
			mu.Unlock()
		}(key)
	}
	wg.Wait()
	return failedAny, nil
}

func (s *Scheduler) buildOne(ctx context.Context, key string) Result {
	n := s.Graph.Node(key)
	if s.ArtifactChecker != nil && s.ArtifactChecker.HasArtifact(n) {
		return Result{Key: key}
	}
	logPath := filepath.Join(s.LogDir, fmt.Sprintf("%s.log", safeLogName(key)))
	logf, err := os.Create(logPath)
	if err != nil {
		return Result{Key: key, Err: errors.Wrapf(err, "creating log file for %s", key)}
	}
	defer logf.Close()

	wheelPath, err := s.Builder.Build(ctx, n, logf)
	if err != nil {
		return Result{Key: key, Err: errors.Wrapf(err, "building %s", key)}
	}
	return Result{Key: key, WheelPath: wheelPath}
}

func safeLogName(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func (s *Scheduler) summary(runID string, pending []string) *Summary {
	sum := &Summary{RunID: runID, Pending: pending}
	for key := range s.done {
		if key != graph.RootKey {
			sum.Succeeded = append(sum.Succeeded, key)
		}
	}
	for key := range s.failed {
		sum.Failed = append(sum.Failed, key)
	}
	sort.Strings(sum.Succeeded)
	sort.Strings(sum.Failed)
	return sum
}
