/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackAcceptor_ListenAssignsEphemeralPort(t *testing.T) {
	a := newStandInAcceptor(0)
	port, err := a.Listen()
	require.NoError(t, err)
	assert.NotZero(t, port)
	assert.NoError(t, a.Close())
}

func TestLoopbackAcceptor_CloseIsIdempotent(t *testing.T) {
	a := newStandInAcceptor(0)
	_, err := a.Listen()
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
