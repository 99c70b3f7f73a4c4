// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fromager",
	Short: "Bootstrap and build PyPI wheels from source, recursively",
}

func main() {
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(graphCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
