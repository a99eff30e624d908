/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package engine implements the top-level controller spec.md §4.7
// describes: the object embedders start and stop, which sequences the
// root CA, the two listener acceptors, and the Diverter in the documented
// order.
package engine

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/divertengine/divertengine/internal/classifier"
	"github.com/divertengine/divertengine/internal/dvlog"
	"github.com/divertengine/divertengine/internal/firewall"
	"github.com/divertengine/divertengine/internal/metrics"
	"github.com/divertengine/divertengine/internal/resolver"
)

// RootCA is the out-of-core certificate-authority collaborator spec.md §1
// scopes out of the core ("The host-side certificate store... and the
// on-the-fly leaf certificate minting"). Controller only needs the two
// operations it sequences against: establish trust, and hand back the PEM
// an embedder's UI can display (spec.md §6, "get_root_certificate_pem").
type RootCA interface {
	EnsureTrusted() error
	PEM() string
}

// Config is everything Controller needs to assemble an engine instance.
// DefaultHTTPPort/DefaultHTTPSPort of 0 let the acceptors bind an
// ephemeral port (spec.md §6).
type Config struct {
	Device string

	DefaultHTTPPort  uint16
	DefaultHTTPSPort uint16

	// FirewallCheck is the embedder's policy callback (spec.md §4.3). Some
	// platforms require one; FirewallRequired enforces that at Start
	// (spec.md §7, "missing firewall callback").
	FirewallCheck    firewall.CheckFunc
	FirewallRequired bool

	CAOrganization string
	CAValidity     time.Duration

	// HTTPAcceptor/HTTPSAcceptor let an embedder supply its real
	// TLS-terminating listeners. Nil means Controller falls back to a
	// plain stand-in listener (engine.newStandInAcceptor).
	HTTPAcceptor  Acceptor
	HTTPSAcceptor Acceptor

	// CA lets an embedder supply its own RootCA (e.g. one backed by an
	// already-installed enterprise CA). Nil means Controller generates its
	// own self-signed CA via internal/rootcert.
	CA RootCA

	Log *dvlog.Logger
}

// Controller is the engine's top-level Start/Stop/Stats surface (spec.md
// §4.7, §6). It owns one Diverter instance plus the two listener
// acceptors and the root CA collaborator for its lifetime.
type Controller struct {
	cfg Config
	log *dvlog.Logger

	instanceID uuid.UUID

	mtx     sync.Mutex
	running atomic.Bool

	ca            RootCA
	httpAcceptor  Acceptor
	httpsAcceptor Acceptor
	diverter      Diverter

	// newDiverter builds the Diverter Start uses. It defaults to the real
	// pcap-backed constructor; tests in this package override it to inject
	// capture.FakeHandle-backed diverters without a kernel capture session.
	newDiverter func(device string, res classifier.PIDResolver, fw classifier.FirewallAuthority, log *dvlog.Logger) Diverter
}

// New builds a stopped Controller. It does not open any resource; that
// happens in Start.
func New(cfg Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = dvlog.New(nil, dvlog.INFO)
	}
	return &Controller{
		cfg:        cfg,
		log:        log,
		instanceID: uuid.New(),
		newDiverter: func(device string, res classifier.PIDResolver, fw classifier.FirewallAuthority, log *dvlog.Logger) Diverter {
			return newPCAPDiverter(device, res, fw, log)
		},
	}
}

// InstanceID identifies this Controller instance for the lifetime of the
// process, used by embedders correlating log lines across restarts.
func (c *Controller) InstanceID() string { return c.instanceID.String() }

// IsRunning reports whether Start has completed successfully and Stop has
// not yet been called.
func (c *Controller) IsRunning() bool { return c.running.Load() }

// Start sequences engine bring-up exactly as spec.md §4.7 describes: CA
// trust established, then acceptors created and listening, then the
// diverter configured with the acceptors' bound ports and started. Any
// step failing unwinds everything opened so far and returns to Stopped.
func (c *Controller) Start() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.cfg.FirewallRequired && c.cfg.FirewallCheck == nil {
		return ErrMissingFirewallCallback
	}

	ca, err := c.ensureCA()
	if err != nil {
		return err
	}
	if err := ca.EnsureTrusted(); err != nil {
		return fmt.Errorf("%w: %v", ErrCAUntrusted, err)
	}
	c.ca = ca

	httpAcceptor := c.cfg.HTTPAcceptor
	if httpAcceptor == nil {
		httpAcceptor = newStandInAcceptor(c.cfg.DefaultHTTPPort)
	}
	httpPort, err := httpAcceptor.Listen()
	if err != nil {
		return fmt.Errorf("engine: http acceptor listen: %w", err)
	}

	httpsAcceptor := c.cfg.HTTPSAcceptor
	if httpsAcceptor == nil {
		httpsAcceptor = newStandInAcceptor(c.cfg.DefaultHTTPSPort)
	}
	httpsPort, err := httpsAcceptor.Listen()
	if err != nil {
		httpAcceptor.Close()
		return fmt.Errorf("engine: https acceptor listen: %w", err)
	}

	res := resolver.New(int32(os.Getpid()))
	fw := firewall.New(c.cfg.FirewallCheck)

	div := c.newDiverter(c.cfg.Device, res, fw, c.log)
	if err := div.SetHTTPListenerPort(httpPort); err != nil {
		httpAcceptor.Close()
		httpsAcceptor.Close()
		return err
	}
	if err := div.SetHTTPSListenerPort(httpsPort); err != nil {
		httpAcceptor.Close()
		httpsAcceptor.Close()
		return err
	}

	if err := div.Run(); err != nil {
		httpAcceptor.Close()
		httpsAcceptor.Close()
		return err
	}

	c.httpAcceptor = httpAcceptor
	c.httpsAcceptor = httpsAcceptor
	c.diverter = div
	c.running.Store(true)
	c.log.Infof("engine %s started: http=%d https=%d device=%s", c.InstanceID(), httpPort, httpsPort, c.cfg.Device)
	return nil
}

// Stop unwinds Start in reverse order: the diverter first (so no more
// packets are classified against acceptors about to disappear), then both
// acceptors (spec.md §4.7). Stop on an already-stopped Controller is a
// no-op.
func (c *Controller) Stop() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.running.Load() {
		return
	}

	if c.diverter != nil {
		c.diverter.Stop()
	}
	if c.httpAcceptor != nil {
		c.httpAcceptor.Close()
	}
	if c.httpsAcceptor != nil {
		c.httpsAcceptor.Close()
	}
	c.running.Store(false)
	c.log.Infof("engine %s stopped", c.InstanceID())
}

func (c *Controller) ensureCA() (RootCA, error) {
	if c.cfg.CA != nil {
		return c.cfg.CA, nil
	}
	org := c.cfg.CAOrganization
	if org == "" {
		org = "divertengine"
	}
	validity := c.cfg.CAValidity
	if validity <= 0 {
		validity = 10 * 365 * 24 * time.Hour
	}
	return newGeneratedCA(org, validity)
}

// GetHTTPListenerPort returns the HTTP acceptor port of the most recently
// started diverter, or 0 if Start has never succeeded. Stop does not reset
// it.
func (c *Controller) GetHTTPListenerPort() uint16 {
	if c.diverter == nil {
		return 0
	}
	return c.diverter.GetHTTPListenerPort()
}

// GetHTTPSListenerPort returns the HTTPS acceptor port of the most recently
// started diverter, or 0 if Start has never succeeded. Stop does not reset
// it.
func (c *Controller) GetHTTPSListenerPort() uint16 {
	if c.diverter == nil {
		return 0
	}
	return c.diverter.GetHTTPSListenerPort()
}

// GetRootCertificatePEM returns the engine's CA certificate in PEM form
// (spec.md §6), or "" if no CA has been established yet. The CA is kept
// after Stop, and after a Start that failed past the CA trust step.
func (c *Controller) GetRootCertificatePEM() string {
	if c.ca == nil {
		return ""
	}
	return c.ca.PEM()
}

// Stats returns the diverter's current packet counters, or a zero value
// if Start has never succeeded. After Stop it keeps reporting the stopped
// diverter's final counts.
func (c *Controller) Stats() metrics.DiverterStats {
	if c.diverter == nil {
		return metrics.DiverterStats{}
	}
	return c.diverter.Stats()
}
