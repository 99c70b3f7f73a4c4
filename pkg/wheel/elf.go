// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package wheel

// NativeDependencies enumerates the DT_NEEDED shared-library dependencies
// of any ELF objects inside the wheel at wheelPath, used to populate
// fromager-elf-requires.txt (spec.md §4.10, §6). No ecosystem ELF-parsing
// library exists in the retrieval pack, so this uses the standard library's
// debug/elf directly on Linux (see DESIGN.md); off Linux it always returns
// an empty list, matching the "on supporting platforms" qualifier in
// spec.md §4.10.
func NativeDependencies(wheelPath string) ([]string, error) {
	return nativeDependencies(wheelPath)
}
