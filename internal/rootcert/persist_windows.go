//go:build windows

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
)

// writeKeyFile has no umask/chmod equivalent on Windows; ACL tightening
// on the key file is left to the embedder's installer, which already
// owns OS trust-store interaction (spec.md §1). The file is written with
// os.WriteFile(path, data, 0600); no ACL is applied.
func writeKeyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("rootcert: write key file: %w", err)
	}
	return nil
}
