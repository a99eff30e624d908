//go:build windows

/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package capture

import "golang.org/x/sys/windows"

// raiseFileLimit has no RLIMIT_NOFILE equivalent on Windows; instead it
// raises the process working set ceiling so the packet-queue buffers
// (spec.md §4.1) are less likely to be paged out under sustained load.
// Best-effort: failure here is not fatal to Open.
func raiseFileLimit() error {
	const (
		minWorkingSet = 64 * 1024 * 1024
		maxWorkingSet = 256 * 1024 * 1024
	)
	return windows.SetProcessWorkingSetSize(windows.CurrentProcess(), minWorkingSet, maxWorkingSet)
}
