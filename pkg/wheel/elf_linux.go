// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package wheel

import (
	"archive/zip"
	"bytes"
	"debug/elf"
	"io"
	"sort"
	"strings"
)

// nativeDependencies scans every *.so file inside the wheel zip for its
// DT_NEEDED entries, deduplicating the result.
func nativeDependencies(wheelPath string) ([]string, error) {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	seen := map[string]bool{}
	for _, f := range r.File {
		if !strings.Contains(f.Name, ".so") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		needed, err := elfNeeded(bytes.NewReader(data))
		if err != nil {
			continue
		}
		for _, n := range needed {
			seen[n] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func elfNeeded(r io.ReaderAt) ([]string, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.DynString(elf.DT_NEEDED)
}
