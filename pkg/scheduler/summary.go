// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteReports writes summary.json and summary.md into dir (spec.md
// §4.14: "a summary (markdown + JSON) is written").
func (s *Summary) WriteReports(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating summary directory")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling summary")
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0o644); err != nil {
		return errors.Wrap(err, "writing summary.json")
	}

	md := fmt.Sprintf("# Build summary (%s)\n\n", s.RunID)
	md += fmt.Sprintf("- Succeeded: %d\n", len(s.Succeeded))
	md += fmt.Sprintf("- Failed: %d\n", len(s.Failed))
	md += fmt.Sprintf("- Pending: %d\n\n", len(s.Pending))
	if len(s.Failed) > 0 {
		md += "## Failed\n\n"
		for _, k := range s.Failed {
			md += fmt.Sprintf("- %s\n", k)
		}
	}
	return os.WriteFile(filepath.Join(dir, "summary.md"), []byte(md), 0o644)
}
