// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package acquire implements the Source Acquirer (spec.md §4.6): downloads
// an sdist/archive, clones a git ref, or downloads a prebuilt wheel into the
// appropriate cache directory, atomically via a .tmp-suffixed rename.
package acquire

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fromager-project/fromager/internal/httpx"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
)

// Error kinds from spec.md §7; NetworkError/ChecksumMismatch/ArchiveCorrupt
// are retryable-transient for network conditions and otherwise node-fatal.
var (
	ErrNetwork         = errors.New("network error")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrArchiveCorrupt   = errors.New("archive corrupt")
)

// Acquirer fetches source artifacts into the sdists/wheels caches.
type Acquirer struct {
	Client       httpx.BasicClient
	SdistsDir    string
	PrebuiltDir  string
	WorkDir      string // scratch space for git clones before archiving
}

// Result describes what was acquired.
type Result struct {
	Path           string // final on-disk path
	RetrieveMethod requirement.RetrieveMethod
	SHA256         string
}

// Tarball downloads url into the content-addressed sdists cache under
// filename, streaming to a .tmp suffix and renaming atomically on success.
func (a Acquirer) Tarball(ctx context.Context, url, filename string) (Result, error) {
	if err := os.MkdirAll(a.SdistsDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating sdists dir")
	}
	final := filepath.Join(a.SdistsDir, filename)
	if _, err := os.Stat(final); err == nil {
		sum, err := sha256File(final)
		if err != nil {
			return Result{}, err
		}
		return Result{Path: final, RetrieveMethod: requirement.MethodTarball, SHA256: sum}, nil
	}
	tmp := final + ".tmp"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, errors.Wrap(ErrNetwork, err.Error())
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.Wrapf(ErrNetwork, "GET %s: %s", url, resp.Status)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return Result{}, errors.Wrap(err, "creating temp file")
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), resp.Body)
	cerr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return Result{}, errors.Wrap(ErrArchiveCorrupt, err.Error())
	}
	if cerr != nil {
		os.Remove(tmp)
		return Result{}, errors.Wrap(cerr, "closing temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return Result{}, errors.Wrap(err, "renaming into place")
	}
	return Result{Path: final, RetrieveMethod: requirement.MethodTarball, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Verify checks that a previously downloaded file's SHA-256 matches want
// (when a checksum was supplied by the index, spec.md §4.6).
func Verify(path, want string) error {
	if want == "" {
		return nil
	}
	got, err := sha256File(path)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Wrapf(ErrChecksumMismatch, "%s: want %s got %s", path, want, got)
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GitClone clones repoURL at ref into a fresh worktree under a.WorkDir,
// honoring the submodule policy from settings.GitOptions, then archives the
// worktree into the sdists cache as name-ref.tar equivalent directory copy.
// The returned path is the archived directory inside the sdists cache.
func (a Acquirer) GitClone(ctx context.Context, repoURL, ref, destName string, opts *settings.GitOptions) (Result, error) {
	worktree := filepath.Join(a.WorkDir, destName)
	os.RemoveAll(worktree)
	if err := os.MkdirAll(filepath.Dir(worktree), 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating worktree parent")
	}
	cloneOpts := &git.CloneOptions{URL: repoURL}
	if opts != nil {
		switch opts.SubmodulePolicy {
		case "all":
			cloneOpts.RecurseSubmodules = git.DefaultSubmoduleRecursionDepth
		case "shallow":
			cloneOpts.RecurseSubmodules = 1
		}
	}
	repo, err := git.PlainCloneContext(ctx, worktree, false, cloneOpts)
	if err != nil {
		return Result{}, errors.Wrap(ErrNetwork, err.Error())
	}
	wt, err := repo.Worktree()
	if err != nil {
		return Result{}, errors.Wrap(err, "opening worktree")
	}
	hash, err := resolveRef(repo, ref)
	if err != nil {
		return Result{}, errors.Wrapf(err, "resolving ref %q", ref)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash}); err != nil {
		return Result{}, errors.Wrapf(err, "checking out %q", ref)
	}
	final := filepath.Join(a.SdistsDir, destName)
	os.RemoveAll(final)
	if err := os.MkdirAll(a.SdistsDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating sdists dir")
	}
	tmp := final + ".tmp"
	if err := copyTree(worktree, tmp); err != nil {
		os.RemoveAll(tmp)
		return Result{}, errors.Wrap(err, "archiving git worktree")
	}
	if err := os.Rename(tmp, final); err != nil {
		return Result{}, errors.Wrap(err, "renaming archived worktree into place")
	}
	return Result{Path: final, RetrieveMethod: requirement.MethodGitHTTPS}, nil
}

func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if h, err := repo.ResolveRevision(plumbing.Revision(ref)); err == nil {
		return *h, nil
	}
	if h, err := repo.ResolveRevision(plumbing.Revision("refs/tags/" + ref)); err == nil {
		return *h, nil
	}
	if h, err := repo.ResolveRevision(plumbing.Revision("origin/" + ref)); err == nil {
		return *h, nil
	}
	return plumbing.ZeroHash, errors.Errorf("unresolvable ref %q", ref)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

// Unpack extracts a gzipped tarball at tarballPath into destDir, stripping
// the sdist's single top-level directory (the usual sdist layout), and
// rejecting any entry that would escape destDir (a zip-slip guard; no
// ecosystem tar-extraction library appears anywhere in the retrieval
// pack, so this stays on archive/tar + compress/gzip). The destination is
// addressed through a billy.Filesystem (osfs-backed here) rather than raw
// os calls, so the same extraction routine is exercisable in tests against
// an in-memory memfs root without touching disk; see UnpackFS.
func Unpack(tarballPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(err, "creating destination")
	}
	f, err := os.Open(tarballPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", tarballPath)
	}
	defer f.Close()
	return UnpackFS(f, osfs.New(destDir))
}

// UnpackFS extracts a gzipped tarball read from r into fs (rooted at fs's
// own root, which callers position via osfs.New(dir) or memfs.New()),
// applying the same top-level-strip and zip-slip checks as Unpack.
func UnpackFS(r io.Reader, fs billy.Filesystem) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(ErrArchiveCorrupt, err.Error())
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(ErrArchiveCorrupt, err.Error())
		}
		rel := stripTopLevel(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.ToSlash(rel)
		if strings.HasPrefix(target, "../") || target == ".." {
			return errors.Wrapf(ErrArchiveCorrupt, "entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errors.Wrap(ErrArchiveCorrupt, err.Error())
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

func stripTopLevel(name string) string {
	parts := strings.SplitN(filepath.ToSlash(name), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// PrebuiltWheel downloads a prebuilt wheel into PrebuiltDir/<filename>.
func (a Acquirer) PrebuiltWheel(ctx context.Context, url, filename string) (Result, error) {
	if err := os.MkdirAll(a.PrebuiltDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating prebuilt dir")
	}
	final := filepath.Join(a.PrebuiltDir, filename)
	tmp := final + ".tmp"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, errors.Wrap(ErrNetwork, err.Error())
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, errors.Wrapf(ErrNetwork, "GET %s: %s", url, resp.Status)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return Result{}, errors.Wrap(err, "creating temp file")
	}
	_, err = io.Copy(f, resp.Body)
	cerr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return Result{}, errors.Wrap(ErrArchiveCorrupt, err.Error())
	}
	if cerr != nil {
		os.Remove(tmp)
		return Result{}, errors.Wrap(cerr, "closing temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return Result{}, errors.Wrap(err, "renaming into place")
	}
	return Result{Path: final, RetrieveMethod: requirement.MethodPrebuiltWheel}, nil
}
