// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package assemble

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// readWheelMetadata reads the METADATA file out of a built wheel's
// dist-info directory (spec.md §4.8 install phase).
func readWheelMetadata(wheelPath string) (string, error) {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", wheelPath)
	}
	defer r.Close()
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
	return "", errors.Errorf("no METADATA found in %s", wheelPath)
}

// readSdistPKGInfo reads PKG-INFO from a gzipped sdist tarball, used in
// sdist-only mode (spec.md §4.8).
func readSdistPKGInfo(sdistPath string) (string, error) {
	f, err := os.Open(sdistPath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", sdistPath)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(hdr.Name, "PKG-INFO") {
			data, err := io.ReadAll(tr)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
	return "", errors.Errorf("no PKG-INFO found in %s", sdistPath)
}
