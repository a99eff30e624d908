//go:build unix

/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package rootcert

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// writeKeyFile writes data to path as owner-only (0600), forcing the
// permission via an explicit Umask/Chmod pair rather than trusting the
// process umask alone — a permissive umask (022 is common, but some
// distros ship 002) would otherwise leave the CA's private key
// group-or-world-readable for the brief window between creat() and the
// caller noticing (SPEC_FULL.md §11).
func writeKeyFile(path string, data []byte) error {
	old := unix.Umask(0077)
	defer unix.Umask(old)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("rootcert: open key file: %w", err)
	}
	defer f.Close()

	if err := unix.Chmod(path, 0600); err != nil {
		return fmt.Errorf("rootcert: chmod key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("rootcert: write key file: %w", err)
	}
	return nil
}
