// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package wheel implements the Builder (spec.md §4.10): drives sdist/wheel
// builds, renames wheels to inject build tags, and populates the extra
// fromager-* metadata files inside the wheel's dist-info.
package wheel

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Error kinds from spec.md §7 (node-fatal).
var (
	ErrWheelBuildFailed  = errors.New("wheel build failed")
	ErrSdistBuildFailed  = errors.New("sdist build failed")
)

// Builder is the black-box PEP-517 build_sdist/build_wheel contract
// (spec.md §1: the actual hook invocation inside a build subprocess is out
// of scope).
type Builder interface {
	BuildSdist(ctx context.Context, sourceRoot, outDir string) (sdistPath string, err error)
	BuildWheel(ctx context.Context, sourceRoot, outDir string) (wheelPath string, err error)
}

// Filename holds the decomposed parts of a wheel file name
// ({name}-{version}(-{buildtag})-{pytag}-{abitag}-{platformtag}.whl,
// spec.md §3).
type Filename struct {
	Name          string
	Version       string
	BuildTag      int // 0 if absent
	HasBuildTag   bool
	PyTag         string
	ABITag        string
	PlatformTag   string
}

// String renders f back into a wheel file name.
func (f Filename) String() string {
	parts := []string{f.Name, f.Version}
	if f.HasBuildTag {
		parts = append(parts, fmt.Sprintf("%d", f.BuildTag))
	}
	parts = append(parts, f.PyTag, f.ABITag, f.PlatformTag)
	return strings.Join(parts, "-") + ".whl"
}

// ParseFilename decomposes a wheel file name into its parts.
func ParseFilename(name string) (Filename, error) {
	base := strings.TrimSuffix(name, ".whl")
	parts := strings.Split(base, "-")
	if len(parts) < 5 {
		if len(parts) == 4 {
			return Filename{Name: parts[0], Version: parts[1], PyTag: parts[2], ABITag: parts[3], PlatformTag: parts[3]}, nil
		}
		return Filename{}, errors.Errorf("malformed wheel filename %q", name)
	}
	f := Filename{Name: parts[0], Version: parts[1]}
	rest := parts[2:]
	if len(rest) == 4 {
		fmt.Sscanf(rest[0], "%d", &f.BuildTag)
		f.HasBuildTag = true
		rest = rest[1:]
	}
	f.PyTag, f.ABITag, f.PlatformTag = rest[0], rest[1], rest[2]
	return f, nil
}

// RetagBuildTag renames a just-built wheel (whose filename carries no build
// tag, or the wrong one) to carry buildTag, the count of applicable
// changelog entries for this package (spec.md §3 invariant, §8 testable
// property 6). A buildTag of 0 leaves the filename without a build tag
// (dropping any tag it had), so no "-0-" tag is ever written.
func RetagBuildTag(path string, buildTag int) (string, error) {
	dir, name := filepath.Split(path)
	f, err := ParseFilename(name)
	if err != nil {
		return "", err
	}
	f.HasBuildTag = buildTag > 0
	f.BuildTag = buildTag
	newPath := filepath.Join(dir, f.String())
	if newPath == path {
		return path, nil
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", errors.Wrapf(err, "retagging %s", path)
	}
	return newPath, nil
}

// DistInfoExtras is the set of deterministic extra files spec.md §6 says
// are written into every built wheel's dist-info.
type DistInfoExtras struct {
	BuildSettingsYAML    []byte
	SystemRequirements   []string
	BackendRequirements  []string
	SdistRequirements    []string
	ELFRequires          []string // nil when not applicable (non-Linux or no shared objects)
}

// fileNames of the extras, matching spec.md §6 exactly.
const (
	FileBuildSettings   = "fromager-build-settings"
	FileSystemRequires  = "fromager-build-system-requirements.txt"
	FileBackendRequires = "fromager-build-backend-requirements.txt"
	FileSdistRequires   = "fromager-build-sdist-requirements.txt"
	FileELFRequires     = "fromager-elf-requires.txt"
)

// InjectDistInfoExtras rewrites the wheel at path, adding extras's files
// into the "<name>-<version>.dist-info/" directory and replacing the file at
// path in place.
func InjectDistInfoExtras(path string, extras DistInfoExtras) error {
	distInfoDir, err := findDistInfoDir(path)
	if err != nil {
		return errors.Wrap(ErrWheelBuildFailed, err.Error())
	}
	tmp := path + ".tmp"
	if err := rewriteZipWithExtras(path, tmp, distInfoDir, extras); err != nil {
		return errors.Wrap(ErrWheelBuildFailed, err.Error())
	}
	return os.Rename(tmp, path)
}

func findDistInfoDir(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	for _, f := range r.File {
		if idx := strings.Index(f.Name, ".dist-info/"); idx >= 0 {
			return f.Name[:idx+len(".dist-info")], nil
		}
	}
	return "", errors.New("no .dist-info directory found in wheel")
}

func rewriteZipWithExtras(src, dst, distInfoDir string, extras DistInfoExtras) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	w := zip.NewWriter(out)
	for _, f := range r.File {
		if err := copyZipEntry(w, f); err != nil {
			return err
		}
	}
	for name, content := range map[string][]byte{
		distInfoDir + "/" + FileBuildSettings:   extras.BuildSettingsYAML,
		distInfoDir + "/" + FileSystemRequires:  []byte(strings.Join(extras.SystemRequirements, "\n")),
		distInfoDir + "/" + FileBackendRequires: []byte(strings.Join(extras.BackendRequirements, "\n")),
		distInfoDir + "/" + FileSdistRequires:   []byte(strings.Join(extras.SdistRequirements, "\n")),
	} {
		if err := writeZipEntry(w, name, content); err != nil {
			return err
		}
	}
	if extras.ELFRequires != nil {
		if err := writeZipEntry(w, distInfoDir+"/"+FileELFRequires, []byte(strings.Join(extras.ELFRequires, "\n"))); err != nil {
			return err
		}
	}
	return w.Close()
}

func copyZipEntry(w *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	dst, err := w.CreateHeader(&f.FileHeader)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, rc)
	return err
}

func writeZipEntry(w *zip.Writer, name string, content []byte) error {
	f, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(content)
	return err
}

// SettingsSnapshot marshals v (typically an Effective settings record) to
// YAML for the fromager-build-settings dist-info file.
func SettingsSnapshot(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
