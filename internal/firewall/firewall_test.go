/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthority_Permits(t *testing.T) {
	var calls int
	a := New(func(path string) bool {
		calls++
		return path == "/usr/bin/curl"
	})
	assert.True(t, a.Permits("/usr/bin/curl"))
	assert.False(t, a.Permits("/opt/evil"))
	assert.Equal(t, 2, calls)
}

func TestAuthority_NilCallbackDenies(t *testing.T) {
	a := New(nil)
	assert.False(t, a.Permits("/usr/bin/curl"))
	assert.False(t, a.Required())
}

func TestAuthority_NilAuthorityDenies(t *testing.T) {
	var a *Authority
	assert.False(t, a.Permits("/usr/bin/curl"))
}

func TestAuthority_Required(t *testing.T) {
	a := New(func(string) bool { return true })
	assert.True(t, a.Required())
}
