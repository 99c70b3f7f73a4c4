// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EmitResults writes graph.json, build-order.json, and constraints.txt
// into dir, each atomically via temp-then-rename (spec.md §5 ordering
// guarantee (d)). When skipConstraints is true and a duplicate resolution
// exists, constraints.txt is skipped and the caller is expected to log a
// warning rather than fail (spec.md §4.13).
func (o *Orchestrator) EmitResults(dir string, skipConstraints bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	graphData, err := o.Graph.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshaling graph")
	}
	if err := atomicWrite(filepath.Join(dir, "graph.json"), graphData); err != nil {
		return err
	}

	order, err := o.BuildOrder()
	if err != nil {
		return errors.Wrap(err, "computing build order")
	}
	orderData, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling build order")
	}
	if err := atomicWrite(filepath.Join(dir, "build-order.json"), orderData); err != nil {
		return err
	}

	dups := o.Graph.ExplainDuplicates()
	if len(dups) > 0 {
		if skipConstraints {
			return nil
		}
		return errors.Wrapf(ErrConstraintConflict, "duplicate resolutions present: %v", dups)
	}
	var buf bytes.Buffer
	if err := o.Graph.ToConstraints(&buf); err != nil {
		return errors.Wrap(err, "rendering constraints.txt")
	}
	return atomicWrite(filepath.Join(dir, "constraints.txt"), buf.Bytes())
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return os.Rename(tmp, path)
}
