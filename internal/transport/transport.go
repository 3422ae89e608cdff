// Package transport defines the boundary to the remote messaging network.
// The core only sees this interface; the wire protocol, identity keys, and
// QR rendering all live behind it.
package transport

import (
	"context"
	"errors"
)

// Mode selects how a fresh connection authenticates.
type Mode string

const (
	ModeQR   Mode = "qr"
	ModePair Mode = "pair"
)

// ErrPairingUnsupported is returned by RequestPairingCode when the protocol
// version behind the transport cannot issue linking codes.
var ErrPairingUnsupported = errors.New("pairing code not supported by transport")

// EventKind discriminates connection events.
type EventKind string

const (
	EventQR          EventKind = "qr"
	EventOpen        EventKind = "open"
	EventClose       EventKind = "close"
	EventCredentials EventKind = "credentials"
)

// Event is an asynchronous connection notification. QR carries the scannable
// payload, Credentials the opaque blob to persist, Err the close reason.
type Event struct {
	Kind        EventKind
	QR          string
	Credentials []byte
	Err         error
}

// Conn is one live connection. Events is closed after the final close event;
// consumers must drain it promptly and queue long work elsewhere.
type Conn interface {
	Events() <-chan Event

	// SendMessage delivers a text payload to a recipient number.
	SendMessage(ctx context.Context, number, text string) error

	// RequestPairingCode asks the network for a device-linking code for
	// the given number. Fails with ErrPairingUnsupported where the
	// protocol version has no such flow.
	RequestPairingCode(ctx context.Context, number string) (string, error)

	Close() error
}

// Transport dials connections. One logical connection per process; the
// supervisor redials through the same Transport after failures.
type Transport interface {
	Connect(ctx context.Context, mode Mode, number string) (Conn, error)
}
