/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package dvconfig loads engine configuration (SPEC_FULL.md §10.2),
// grounded on the teacher's config loading idiom: a gcfg-style INI file
// with a [Global] stanza plus named repeated stanzas
// (networkLog/config.go's "[Sniffer \"name\"]" pattern, here
// "[Capture \"name\"]"), `GRAVWELL_`-prefixed environment overrides
// becoming `DIVERT_`-prefixed ones.
package dvconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 2 * 1024 * 1024

const (
	envHTTPPort  = `DIVERT_HTTP_PORT`
	envHTTPSPort = `DIVERT_HTTPS_PORT`
	envLogLevel  = `DIVERT_LOG_LEVEL`
)

var (
	ErrConfigTooLarge  = errors.New("dvconfig: config file too large")
	ErrNoCaptureStanza = errors.New("dvconfig: no [Capture] stanza specified")
	ErrBadDevice       = errors.New("dvconfig: Capture stanza missing Device")
)

// Global holds the engine-wide settings (the [Global] stanza).
type Global struct {
	HTTP_Listen_Port  uint16
	HTTPS_Listen_Port uint16
	Firewall_Enforce  bool
	Log_Level         string
	Log_File          string
}

// Capture holds one [Capture "name"] stanza: a single pcap device to
// divert TCP on, mirroring one sniffer in the teacher's networkLog.
type Capture struct {
	Device              string
	Snap_Len            int
	Promisc             bool
	BPF_Filter_Override string
}

type fileShape struct {
	Global  Global
	Capture map[string]*Capture
}

// Config is the engine's fully validated configuration.
type Config struct {
	Global
	Captures map[string]*Capture
}

// Load reads and validates path, applying DIVERT_-prefixed environment
// variable overrides the same way the teacher's config.LoadEnvVar does.
func Load(path string) (*Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, ErrConfigTooLarge
	}
	content := make([]byte, fi.Size())
	if _, err := fin.Read(content); err != nil {
		return nil, err
	}

	var fs fileShape
	if err := gcfg.ReadStringInto(&fs, string(content)); err != nil {
		return nil, fmt.Errorf("dvconfig: parse: %w", err)
	}

	applyEnvOverrides(&fs.Global)

	c := &Config{Global: fs.Global, Captures: fs.Capture}
	if err := c.verify(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnvOverrides(g *Global) {
	if v := os.Getenv(envHTTPPort); v != "" {
		var port uint16
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			g.HTTP_Listen_Port = port
		}
	}
	if v := os.Getenv(envHTTPSPort); v != "" {
		var port uint16
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			g.HTTPS_Listen_Port = port
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		g.Log_Level = v
	}
}

func (c *Config) verify() error {
	if len(c.Captures) == 0 {
		return ErrNoCaptureStanza
	}
	for name, cp := range c.Captures {
		if cp.Device == "" {
			return fmt.Errorf("%w: %q", ErrBadDevice, name)
		}
		if cp.Snap_Len == 0 {
			cp.Snap_Len = 65535
		}
	}
	return nil
}

// firstCapture returns the lexicographically-first capture stanza's
// device, used when the engine is given no explicit device override.
// Multiple simultaneous capture devices are a deployment choice left to
// the embedder (the core diverter operates on one TCP handle at a time,
// spec.md §4.1).
func (c *Config) firstCapture() (*Capture, error) {
	var bestName string
	var best *Capture
	for name, cp := range c.Captures {
		if best == nil || name < bestName {
			bestName, best = name, cp
		}
	}
	if best == nil {
		return nil, ErrNoCaptureStanza
	}
	return best, nil
}

// Device returns the capture device to bind, validating it parses as a
// usable interface name (non-empty; actual interface existence is
// checked by the capture package at Open time).
func (c *Config) Device() (string, error) {
	cp, err := c.firstCapture()
	if err != nil {
		return "", err
	}
	return cp.Device, nil
}
