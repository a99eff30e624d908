//go:build unix

/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package capture

import "golang.org/x/sys/unix"

// raiseFileLimit best-effort raises RLIMIT_NOFILE to its hard ceiling
// before opening capture handles. The engine opens two handles per
// instance plus whatever sockets the out-of-core acceptors hold; under
// high packet-queue tuning (spec.md §4.1, 8192-packet queues) a low
// default descriptor limit is an easy way to starve the process of
// capacity it otherwise has room for.
func raiseFileLimit() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}
	if rlim.Cur >= rlim.Max {
		return nil
	}
	rlim.Cur = rlim.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}
