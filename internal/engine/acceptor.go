/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"net"
	"strconv"
)

// Acceptor is the out-of-core listener socket collaborator (spec.md §1,
// "Listener sockets themselves; the core only knows their port numbers.",
// and §6 "Listener ports": 0 means "let the OS pick an ephemeral port").
// The real implementation — an HTTP/1.x-parsing, TLS-terminating acceptor
// backed by the out-of-core rootcert-minted leaf certificates — lives
// outside this module; Acceptor is the seam engine.Controller depends on
// so its start/stop sequencing (spec.md §4.7) is real without pulling the
// HTTP parser or rule engine into the core.
type Acceptor interface {
	// Listen binds the acceptor's socket, returning the bound port (the
	// OS-chosen ephemeral port if the acceptor was configured with 0).
	Listen() (uint16, error)
	// Close releases the listening socket.
	Close() error
}

// loopbackAcceptor is a minimal stand-in Acceptor used when the embedder
// does not supply its own: it binds a plain TCP listener on 0.0.0.0 (not
// loopback, so the diverter's return-leg rewrite — which keys off a
// non-loopback source per spec.md §8 scenario 6 — has something real to
// bounce packets to) and otherwise does nothing with accepted
// connections. It exists purely so Controller.Start/Stop exercise a real
// listen/close pair; a production embedder replaces it with the actual
// TLS/HTTP acceptor.
type loopbackAcceptor struct {
	requestedPort uint16
	ln            net.Listener
}

func newStandInAcceptor(port uint16) *loopbackAcceptor {
	return &loopbackAcceptor{requestedPort: port}
}

func (a *loopbackAcceptor) Listen() (uint16, error) {
	ln, err := net.Listen("tcp", portAddr(a.requestedPort))
	if err != nil {
		return 0, err
	}
	a.ln = ln
	return uint16(ln.Addr().(*net.TCPAddr).Port), nil
}

func (a *loopbackAcceptor) Close() error {
	if a.ln == nil {
		return nil
	}
	err := a.ln.Close()
	a.ln = nil
	return err
}

func portAddr(port uint16) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(int(port)))
}
