/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import "errors"

// Fatal init errors (spec.md §7): surfaced by failing Start/Run; the
// engine returns to Stopped.
var (
	ErrCaptureOpenFailed          = errors.New("engine: capture handle open failed")
	ErrMissingFirewallCallback    = errors.New("engine: firewall callback required but not supplied")
	ErrCAUntrusted                = errors.New("engine: root CA could not be established as trusted")
	ErrAlreadyRunning             = errors.New("engine: already running")
	ErrNotRunning                 = errors.New("engine: not running")
	ErrPortsImmutableWhileRunning = errors.New("engine: listener ports may only be changed while stopped")
)
