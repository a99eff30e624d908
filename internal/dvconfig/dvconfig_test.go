/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package dvconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[Global]
HTTP-Listen-Port=8080
HTTPS-Listen-Port=8443
Firewall-Enforce=true
Log-Level=INFO

[Capture "eth0"]
Device=eth0
Snap-Len=65535
Promisc=false
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "divertengine.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0640))
	return path
}

func TestLoad_Basic(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), cfg.HTTP_Listen_Port)
	assert.Equal(t, uint16(8443), cfg.HTTPS_Listen_Port)
	assert.True(t, cfg.Firewall_Enforce)
	assert.Equal(t, "INFO", cfg.Log_Level)

	require.Contains(t, cfg.Captures, "eth0")
	assert.Equal(t, "eth0", cfg.Captures["eth0"].Device)
	assert.Equal(t, 65535, cfg.Captures["eth0"].Snap_Len)
}

func TestLoad_NoCaptureStanzaIsError(t *testing.T) {
	path := writeConfig(t, "[Global]\nHTTP-Listen-Port=8080\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoCaptureStanza)
}

func TestLoad_MissingDeviceIsError(t *testing.T) {
	path := writeConfig(t, "[Global]\n[Capture \"eth0\"]\nSnap-Len=1500\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrBadDevice)
}

func TestLoad_DefaultsSnapLen(t *testing.T) {
	path := writeConfig(t, "[Global]\n[Capture \"eth0\"]\nDevice=eth0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 65535, cfg.Captures["eth0"].Snap_Len)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv(envHTTPPort, "9090")
	t.Setenv(envLogLevel, "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), cfg.HTTP_Listen_Port)
	assert.Equal(t, "DEBUG", cfg.Log_Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	assert.Error(t, err)
}

func TestConfig_Device(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	dev, err := cfg.Device()
	require.NoError(t, err)
	assert.Equal(t, "eth0", dev)
}
