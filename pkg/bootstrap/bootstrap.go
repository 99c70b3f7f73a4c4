// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap implements the Bootstrap Orchestrator (spec.md §4.13):
// the recursive per-(name, version) state machine that drives resolution,
// acquisition, patching, dependency extraction, building, and caching for
// a set of top-level requirements, recording the result into a dependency
// graph.
package bootstrap

import (
	"context"
	"sort"
	"sync"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/internal/syncx"
	"github.com/fromager-project/fromager/pkg/buildenv"
	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/fromager-project/fromager/pkg/hooks"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/pkg/errors"
)

// State is a node's position in the per-(name, version) state machine
// (spec.md §4.16).
type State string

const (
	StateUnseen         State = "unseen"
	StateResolving      State = "resolving"
	StateSourceReady    State = "source-ready"
	StateBuildDepsReady State = "build-deps-ready"
	StateBuilt          State = "built"
	StateRecorded       State = "recorded"
	StateFailed         State = "failed"
)

// Fatal error identities from spec.md §7, raised by the orchestrator
// itself rather than a component it calls.
var (
	ErrConstraintConflict    = errors.New("constraint conflict")
	ErrCyclicBuildDependency = errors.New("cyclic build dependency")
)

// Resolver picks a single candidate for req under eff's resolver settings.
// Implementations wrap pkg/resolve's provider registry; the repeatable-build
// override (Orchestrator.Previous) is applied by the Orchestrator before
// Resolve is called.
type Resolver interface {
	Resolve(ctx context.Context, req requirement.Requirement, eff settings.Effective) (requirement.Candidate, error)
}

// Acquirer fetches and unpacks a source tree, returning its root path.
// Implementations wrap pkg/acquire.
type Acquirer interface {
	Acquire(ctx context.Context, c requirement.Candidate, eff settings.Effective) (sourceRoot string, err error)
	// AcquireDirect fetches a direct-URL requirement's source (spec.md
	// §4.5): there is no resolved Candidate yet, since the whole point of a
	// direct-URL requirement is that it bypasses the resolver.
	AcquireDirect(ctx context.Context, d *pep508.DirectURL, name string, eff settings.Effective) (sourceRoot string, err error)
}

// Patcher prepares sourceRoot in place: applies patches, vendor-rust,
// create_files, project_override, and PKG-INFO synthesis. Implementations
// wrap pkg/patch.
type Patcher interface {
	Prepare(sourceRoot, name string, version pep440.Version, eff settings.Effective) error
}

// Extractor runs the three PEP-517 phases plus the install-metadata read.
// Implementations wrap pkg/extract.
type Extractor interface {
	BuildSystemRequires(ctx context.Context, sourceRoot string) ([]string, error)
	BuildBackendRequires(ctx context.Context, sourceRoot string, env *buildenv.Environment) ([]string, []string, error) // wheel, sdist
	InstallRequires(ctx context.Context, artifactPath string) ([]string, error)
	// SourceVersion reads a direct-URL requirement's real version directly
	// out of its acquired source tree's static metadata, before any
	// candidate has ever been resolved for it (spec.md §4.5, §9).
	SourceVersion(ctx context.Context, sourceRoot string) (pep440.Version, error)
}

// EnvBuilder constructs an isolated build environment from currently-built
// wheels. Implementations wrap pkg/buildenv.
type EnvBuilder interface {
	Build(ctx context.Context, root string, reqs []string) (*buildenv.Environment, error)
}

// PackageBuilder produces the sdist then wheel artifact for a prepared
// source tree, renames the wheel with its build tag, injects dist-info
// extras, and moves both into the wheel cache. Implementations wrap
// pkg/wheel.
type PackageBuilder interface {
	BuildSdist(ctx context.Context, sourceRoot string, eff settings.Effective) (sdistPath string, err error)
	BuildWheel(ctx context.Context, sourceRoot string, eff settings.Effective, buildTag int) (wheelPath string, err error)
}

// ArtifactCache checks for and records cached build artifacts.
// Implementations wrap pkg/wheelcache.
type ArtifactCache interface {
	HasFingerprint(cacheKey string) (path string, ok bool)
	AddArtifact(path string) (string, error)
}

// WorkContext is the per-run configuration threaded through recursion
// (spec.md §9's "WorkContext" design note).
type WorkContext struct {
	Context         context.Context
	Environment     pep508.Environment
	Extra           string // active extras for marker evaluation, usually ""
	SdistOnly       bool
	ForceWheelBuild bool
	Variant         string
}

// Orchestrator wires every component seam into the recursive bootstrap
// algorithm of spec.md §4.13.
type Orchestrator struct {
	Settings   *settings.Store
	Resolver   Resolver
	Acquirer   Acquirer
	Patcher    Patcher
	Extractor  Extractor
	EnvBuilder EnvBuilder
	Builder    PackageBuilder
	Cache      ArtifactCache
	Hooks      *hooks.Registry
	Graph      *graph.Graph
	Previous   *Previous // repeatable-build layer, nil if not in use

	// SkipConstraints permits multiple resolved versions of the same
	// canonical name to coexist as distinct graph nodes, instead of
	// treating a second incompatible requirement as a fatal conflict
	// (spec.md §8 Scenario C, --skip-constraints).
	SkipConstraints bool

	mu       sync.Mutex                        // guards Graph inserts and the memo table
	memo     syncx.Map[string, *canonicalGroup] // canonical name -> every node built for it this run
	BuildDir string
}

// canonicalGroup is every nodeState built (or building) for one canonical
// name during this Bootstrap run. Outside --skip-constraints it holds at
// most one live (non-failed) entry; under --skip-constraints it may hold
// several, one per admitted version.
type canonicalGroup struct {
	nodes []*nodeState
}

type nodeState struct {
	version pep440.Version
	key     string
	state   State
	err     error
	done    chan struct{}
}

// ancestorStack tracks, for the call chain currently recursing (this
// package never spawns goroutines, so there is exactly one such chain at a
// time), the in-progress nodeState for every canonical name on the path
// from ROOT to here. It lets recurse short-circuit back onto an ancestor
// instead of waiting on that ancestor's own done channel, which would
// otherwise deadlock (spec.md §9: install-time dependency cycles are
// common and "naturally harmless").
type ancestorStack map[string]*nodeState

func (s ancestorStack) with(name string, ns *nodeState) ancestorStack {
	out := make(ancestorStack, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = ns
	return out
}

// Bootstrap enqueues every toplevel requirement as an edge from ROOT and
// recurses until every reachable node reaches Recorded or Failed (spec.md
// §4.13 step 1).
func (o *Orchestrator) Bootstrap(wc WorkContext, toplevel []requirement.Requirement) error {
	if o.Graph == nil {
		o.Graph = graph.New()
	}
	stack := ancestorStack{}
	for _, req := range toplevel {
		if _, err := o.recurse(wc, graph.RootKey, req, stack); err != nil {
			return err
		}
	}
	return o.Graph.CheckCycles()
}

// recurse drives one requirement through memo-check -> resolve ->
// cache-check -> acquire -> patch -> build-system deps -> build env -> build-backend/
// sdist deps -> build -> cache -> install deps -> Recorded, appending the
// edge from parentKey in every case (spec.md §4.13 steps 1-8). Direct-URL
// requirements (spec.md §4.5) are dispatched to recurseDirect instead,
// since they bypass resolution entirely.
func (o *Orchestrator) recurse(wc WorkContext, parentKey string, req requirement.Requirement, stack ancestorStack) (string, error) {
	if req.Direct != nil {
		return o.recurseDirect(wc, parentKey, req, stack)
	}
	canonical := req.Name

	if ns, inStack := stack[canonical]; inStack {
		return o.shortCircuitCycle(parentKey, canonical, ns, req)
	}

	o.mu.Lock()
	group, ok := o.memo.Load(canonical)
	if !ok {
		group = &canonicalGroup{}
		o.memo.Store(canonical, group)
	}
	candidates := append([]*nodeState(nil), group.nodes...)
	o.mu.Unlock()

	for _, existing := range candidates {
		<-existing.done
		if existing.err != nil {
			continue
		}
		if req.Satisfies(existing.version, req.AdmitsPrerelease()) {
			if err := o.addEdge(parentKey, existing.key, req); err != nil {
				return "", err
			}
			return existing.key, nil
		}
	}
	if !o.SkipConstraints {
		for _, existing := range candidates {
			if existing.err == nil {
				return "", errors.Wrapf(ErrConstraintConflict, "%s: already resolved to %s, incompatible with %s", canonical, existing.version, req.RawRequirement)
			}
		}
	}

	ns := &nodeState{state: StateResolving, done: make(chan struct{})}
	o.mu.Lock()
	group.nodes = append(group.nodes, ns)
	o.mu.Unlock()

	key, err := o.build(wc, req, ns, stack.with(canonical, ns))
	ns.err = err
	if err == nil {
		ns.state = StateRecorded
	} else {
		ns.state = StateFailed
	}
	close(ns.done)
	if err != nil {
		return "", err
	}
	if err := o.addEdge(parentKey, key, req); err != nil {
		return "", err
	}
	return key, nil
}

// shortCircuitCycle handles a requirement whose canonical name is already
// an ancestor of parentKey within this same call chain. Build-type edges
// can never legally cycle (spec.md §3), so those fail fast instead of
// deadlocking on ns.done, which never closes until this whole chain
// unwinds. Non-build (install) edges are "naturally harmless" (spec.md
// §9): the ancestor's key is already assigned by this point in every call
// path that can reach here, so the edge is recorded immediately without
// waiting.
func (o *Orchestrator) shortCircuitCycle(parentKey, canonical string, ns *nodeState, req requirement.Requirement) (string, error) {
	if req.Type.IsBuildEdge() {
		return "", errors.Wrapf(ErrCyclicBuildDependency, "%s: cycle back to %s via a %s edge", canonical, ns.key, req.Type)
	}
	if err := o.addEdge(parentKey, ns.key, req); err != nil {
		return "", err
	}
	return ns.key, nil
}

// recurseDirect implements the direct-URL bypass (spec.md §4.5, §4.13 step
// 1a, §9): acquire first under a provisional graph key, read the real
// version from the acquired tree's own metadata, then rekey the node
// before running the same patch/build/install pipeline every other
// requirement goes through.
func (o *Orchestrator) recurseDirect(wc WorkContext, parentKey string, req requirement.Requirement, stack ancestorStack) (key string, err error) {
	ctx := wc.Context
	canonical := req.Name

	if ns, inStack := stack[canonical]; inStack {
		return o.shortCircuitCycle(parentKey, canonical, ns, req)
	}

	o.mu.Lock()
	group, ok := o.memo.Load(canonical)
	if !ok {
		group = &canonicalGroup{}
		o.memo.Store(canonical, group)
	}
	candidates := append([]*nodeState(nil), group.nodes...)
	o.mu.Unlock()

	for _, existing := range candidates {
		<-existing.done
		if existing.err != nil {
			continue
		}
		if req.Satisfies(existing.version, req.AdmitsPrerelease()) {
			if err := o.addEdge(parentKey, existing.key, req); err != nil {
				return "", err
			}
			return existing.key, nil
		}
	}
	if !o.SkipConstraints {
		for _, existing := range candidates {
			if existing.err == nil {
				return "", errors.Wrapf(ErrConstraintConflict, "%s: already resolved to %s, incompatible with %s", canonical, existing.version, req.RawRequirement)
			}
		}
	}

	ns := &nodeState{state: StateResolving, done: make(chan struct{})}
	o.mu.Lock()
	group.nodes = append(group.nodes, ns)
	o.mu.Unlock()
	defer func() {
		ns.err = err
		if err == nil {
			ns.state = StateRecorded
		} else {
			ns.state = StateFailed
		}
		close(ns.done)
	}()

	eff := o.Settings.Get(canonical, wc.Variant, "")
	provisionalKey := canonical + "@" + directRef(req.Direct)
	o.mu.Lock()
	o.Graph.EnsureProvisional(provisionalKey, canonical)
	o.mu.Unlock()

	sourceRoot, acqErr := o.Acquirer.AcquireDirect(ctx, req.Direct, canonical, eff)
	if acqErr != nil {
		return "", acqErr
	}
	version, verErr := o.Extractor.SourceVersion(ctx, sourceRoot)
	if verErr != nil {
		return "", verErr
	}
	ns.version = version

	realKey := graph.Key(canonical, version)
	eff = o.Settings.Get(canonical, wc.Variant, version.String())
	o.mu.Lock()
	if rekeyErr := o.Graph.Rekey(provisionalKey, realKey); rekeyErr != nil {
		o.mu.Unlock()
		return "", rekeyErr
	}
	node := o.Graph.Node(realKey)
	node.Version = version
	node.DownloadURL = req.Direct.URL
	node.SourceType = directRetrieveMethod(req.Direct.Scheme)
	node.HasPatches = len(eff.Patches) > 0
	o.mu.Unlock()
	ns.key = realKey

	builtKey, buildErr := o.buildFromSource(wc, req, eff, sourceRoot, version, node, stack.with(canonical, ns))
	if buildErr != nil {
		return "", buildErr
	}
	if edgeErr := o.addEdge(parentKey, builtKey, req); edgeErr != nil {
		return "", edgeErr
	}
	return builtKey, nil
}

func directRef(d *pep508.DirectURL) string {
	if d.Ref != "" {
		return d.Ref
	}
	return "HEAD"
}

func directRetrieveMethod(scheme pep508.DirectURLScheme) requirement.RetrieveMethod {
	switch scheme {
	case pep508.SchemeGitHTTP:
		return requirement.MethodGitHTTPS
	case pep508.SchemeGitSSH:
		return requirement.MethodGitSSH
	default:
		return requirement.MethodTarball
	}
}

func (o *Orchestrator) addEdge(parentKey, targetKey string, req requirement.Requirement) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Graph.AddEdge(parentKey, graph.Edge{
		TargetKey:              targetKey,
		RequirementType:        req.Type,
		OriginatingRequirement: req.RawRequirement,
	})
}

// build performs the full per-node pipeline for a single newly-seen
// resolver-driven requirement, recording its node in o.Graph and returning
// its key.
func (o *Orchestrator) build(wc WorkContext, req requirement.Requirement, ns *nodeState, stack ancestorStack) (string, error) {
	ctx := wc.Context
	eff := o.Settings.Get(req.Name, wc.Variant, "")

	candidate, err := o.resolveCandidate(ctx, req, eff)
	if err != nil {
		return "", err
	}
	ns.version = candidate.Version
	eff = o.Settings.Get(req.Name, wc.Variant, candidate.Version.String())

	o.mu.Lock()
	node := o.Graph.EnsureNode(req.Name, candidate.Version)
	node.DownloadURL = candidate.RetrieveURL
	node.SourceType = candidate.RetrieveMethod
	node.HasPatches = len(eff.Patches) > 0
	key := node.Key
	o.mu.Unlock()
	ns.key = key

	fingerprintKey := key // the bare node key; wheel.CacheKey is not called, so settings and patch contents do not affect the lookup
	if cached, ok := o.Cache.HasFingerprint(fingerprintKey); ok {
		node.Prebuilt = false
		return o.recordFromCachedWheel(wc, node, cached, stack)
	}

	sourceRoot, err := o.Acquirer.Acquire(ctx, candidate, eff)
	if err != nil {
		return "", err
	}
	return o.buildFromSource(wc, req, eff, sourceRoot, candidate.Version, node, stack)
}

// buildFromSource runs the patch/build-system/build-env/build-backend/
// build-sdist/build/install pipeline shared by both the resolver-driven
// path (build) and the direct-URL path (recurseDirect), once each has its
// own source tree and a graph node to record into.
func (o *Orchestrator) buildFromSource(wc WorkContext, req requirement.Requirement, eff settings.Effective, sourceRoot string, version pep440.Version, node *graph.Node, stack ancestorStack) (string, error) {
	ctx := wc.Context
	key := node.Key
	buildTag := eff.ApplicableChangelog(version.String())

	if err := o.Patcher.Prepare(sourceRoot, req.Name, version, eff); err != nil {
		return "", err
	}

	buildSystemReqs, err := o.Extractor.BuildSystemRequires(ctx, sourceRoot)
	if err != nil {
		return "", err
	}
	if err := o.recurseAll(wc, key, buildSystemReqs, requirement.TypeBuildSystem, stack); err != nil {
		return "", err
	}

	buildEnv, err := o.EnvBuilder.Build(ctx, o.buildEnvRoot(req.Name, version), nil)
	if err != nil {
		return "", err
	}
	backendReqs, sdistReqs, err := o.Extractor.BuildBackendRequires(ctx, sourceRoot, buildEnv)
	if err != nil {
		return "", err
	}
	if err := o.recurseAll(wc, key, backendReqs, requirement.TypeBuildBackend, stack); err != nil {
		return "", err
	}
	if err := o.recurseAll(wc, key, sdistReqs, requirement.TypeBuildSdist, stack); err != nil {
		return "", err
	}

	var sdistPath string
	if !eff.PreBuilt {
		sdistPath, err = o.Builder.BuildSdist(ctx, sourceRoot, eff)
		if err != nil {
			return "", err
		}
	}
	if eff.PreBuilt && !wc.ForceWheelBuild {
		return key, nil
	}
	if wc.SdistOnly && !wc.ForceWheelBuild {
		installReqs, err := o.Extractor.InstallRequires(ctx, sdistPath)
		if err != nil {
			return "", err
		}
		if err := o.recurseAll(wc, key, installReqs, requirement.TypeInstall, stack); err != nil {
			return "", err
		}
		return key, nil
	}
	wheelPath, err := o.Builder.BuildWheel(ctx, sourceRoot, eff, buildTag)
	if err != nil {
		return "", err
	}
	if _, err := o.Cache.AddArtifact(wheelPath); err != nil {
		return "", err
	}

	if o.Hooks != nil {
		if err := o.Hooks.FirePostBuild(ctx, hooks.BuildContext{WorkDir: sourceRoot, Env: eff.Env}, req, req.Name, version, sdistPath, wheelPath); err != nil {
			return "", err
		}
	}

	installReqs, err := o.Extractor.InstallRequires(ctx, wheelPath)
	if err != nil {
		return "", err
	}
	if o.Hooks != nil {
		if err := o.Hooks.FirePostBootstrap(ctx, hooks.BuildContext{WorkDir: sourceRoot, Env: eff.Env}, req, req.Name, version, sdistPath, wheelPath); err != nil {
			return "", err
		}
	}
	if err := o.recurseAll(wc, key, installReqs, requirement.TypeInstall, stack); err != nil {
		return "", err
	}
	return key, nil
}

// recordFromCachedWheel short-circuits the acquire/patch/build pipeline
// when the wheel cache already holds a matching fingerprint (spec.md
// §4.13 step 2), jumping straight to reading install deps from the cached
// wheel's metadata.
func (o *Orchestrator) recordFromCachedWheel(wc WorkContext, node *graph.Node, wheelPath string, stack ancestorStack) (string, error) {
	installReqs, err := o.Extractor.InstallRequires(wc.Context, wheelPath)
	if err != nil {
		return "", err
	}
	if err := o.recurseAll(wc, node.Key, installReqs, requirement.TypeInstall, stack); err != nil {
		return "", err
	}
	return node.Key, nil
}

func (o *Orchestrator) buildEnvRoot(name string, version pep440.Version) string {
	if o.BuildDir == "" {
		return name + "-" + version.String()
	}
	return o.BuildDir + "/" + name + "-" + version.String()
}

// recurseAll parses raw requirement strings as typ, filters out those
// whose marker does not admit wc's environment, and recurses on each.
func (o *Orchestrator) recurseAll(wc WorkContext, parentKey string, raw []string, typ requirement.Type, stack ancestorStack) error {
	reqs := make([]requirement.Requirement, 0, len(raw))
	for _, r := range raw {
		parsed, err := requirement.Parse(r, typ)
		if err != nil {
			return err
		}
		if parsed.Marker != "" {
			ok, err := pep508.Evaluate(parsed.Marker, wc.Environment, wc.Extra)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		reqs = append(reqs, parsed)
	}
	for _, req := range reqs {
		if _, err := o.recurse(wc, parentKey, req, stack); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) resolveCandidate(ctx context.Context, req requirement.Requirement, eff settings.Effective) (requirement.Candidate, error) {
	if o.Previous != nil {
		if c, ok := o.Previous.Compatible(req); ok {
			return c, nil
		}
	}
	return o.Resolver.Resolve(ctx, req, eff)
}

// BuildOrder returns every non-ROOT node key in a valid topological order
// respecting build edges, ties broken by plain string order of the node key
// ("name==version"), so versions are not compared by PEP 440 order
// (spec.md §4.13).
func (o *Orchestrator) BuildOrder() ([]string, error) {
	return TopologicalOrder(o.Graph)
}

// TopologicalOrder computes a build-edge-respecting linearization of g's
// non-ROOT nodes.
func TopologicalOrder(g *graph.Graph) ([]string, error) {
	nodes := g.Nodes()
	byName := map[string]*graph.Node{}
	for _, n := range nodes {
		byName[n.Key] = n
	}
	remaining := map[string]int{}
	for key, n := range byName {
		if key == graph.RootKey {
			continue
		}
		count := 0
		for _, e := range n.Edges {
			if e.RequirementType.IsBuildEdge() {
				count++
			}
		}
		remaining[key] = count
	}
	var order []string
	for len(remaining) > 0 {
		var ready []string
		for key, c := range remaining {
			if c == 0 {
				ready = append(ready, key)
			}
		}
		if len(ready) == 0 {
			return nil, errors.Wrap(ErrCyclicBuildDependency, "no ready node in build-order computation")
		}
		sort.Strings(ready)
		next := ready[0]
		order = append(order, next)
		delete(remaining, next)
		for key, n := range byName {
			if _, ok := remaining[key]; !ok {
				continue
			}
			for _, e := range n.Edges {
				if e.RequirementType.IsBuildEdge() && e.TargetKey == next {
					remaining[key]--
				}
			}
		}
	}
	return order, nil
}
