/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"time"

	"github.com/divertengine/divertengine/internal/rootcert"
)

// newGeneratedCA builds the default RootCA used when a Config supplies
// none of its own: a freshly generated self-signed CA (spec.md §4.7 start
// sequencing still runs end to end with no embedder-supplied CA).
func newGeneratedCA(org string, validity time.Duration) (RootCA, error) {
	return rootcert.Generate(org, validity)
}
