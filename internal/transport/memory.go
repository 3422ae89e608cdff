package transport

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

const memoryEventBuffer = 16

// Memory is an in-process Transport used in development and tests. It never
// touches the network; tests drive connections through the emit helpers on
// MemoryConn, and a production build plugs a real protocol adapter into the
// same interface.
type Memory struct {
	mu               sync.Mutex
	dialErr          error
	pairingSupported bool
	autoQR           bool
	conns            []*MemoryConn
}

// NewMemory returns a Memory transport that supports pairing codes and emits
// fresh credentials plus a QR payload on every QR-mode dial.
func NewMemory() *Memory {
	return &Memory{pairingSupported: true, autoQR: true}
}

// SetDialError makes subsequent Connect calls fail with err.
func (m *Memory) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// SetPairingSupported toggles RequestPairingCode support.
func (m *Memory) SetPairingSupported(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairingSupported = ok
}

// SetAutoQR toggles the automatic credentials+QR emission on QR-mode dials.
func (m *Memory) SetAutoQR(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoQR = on
}

func (m *Memory) Connect(ctx context.Context, mode Mode, number string) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dialErr != nil {
		return nil, m.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := &MemoryConn{
		mode:             mode,
		number:           number,
		pairingSupported: m.pairingSupported,
		events:           make(chan Event, memoryEventBuffer),
	}
	m.conns = append(m.conns, conn)

	if mode == ModeQR && m.autoQR {
		conn.EmitCredentials(randomBlob())
		conn.EmitQR(randomQRPayload())
	}

	return conn, nil
}

// LastConn returns the most recently dialed connection, or nil.
func (m *Memory) LastConn() *MemoryConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// DialCount reports how many times Connect succeeded.
func (m *Memory) DialCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Message is a payload recorded by MemoryConn.SendMessage.
type Message struct {
	Number string
	Text   string
}

type MemoryConn struct {
	mode             Mode
	number           string
	pairingSupported bool

	mu      sync.Mutex
	closed  bool
	sendErr error
	sent    []Message
	events  chan Event
}

func (c *MemoryConn) Events() <-chan Event { return c.events }

func (c *MemoryConn) SendMessage(ctx context.Context, number, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("send on closed connection")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, Message{Number: number, Text: text})
	return nil
}

func (c *MemoryConn) RequestPairingCode(ctx context.Context, number string) (string, error) {
	if !c.pairingSupported {
		return "", ErrPairingUnsupported
	}
	return "ABCD-EFGH", nil
}

// Close ends the connection quietly, the way a caller-initiated shutdown
// does: a close event with no error, then no more events.
func (c *MemoryConn) Close() error {
	c.emit(Event{Kind: EventClose})
	return nil
}

// Fail simulates an unexpected remote close.
func (c *MemoryConn) Fail(err error) {
	c.emit(Event{Kind: EventClose, Err: err})
}

func (c *MemoryConn) EmitQR(payload string) {
	c.emit(Event{Kind: EventQR, QR: payload})
}

func (c *MemoryConn) EmitOpen() {
	c.emit(Event{Kind: EventOpen})
}

func (c *MemoryConn) EmitCredentials(blob []byte) {
	c.emit(Event{Kind: EventCredentials, Credentials: blob})
}

// SetSendError makes subsequent SendMessage calls fail with err.
func (c *MemoryConn) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a snapshot of delivered messages.
func (c *MemoryConn) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// Mode reports the mode this connection was dialed with.
func (c *MemoryConn) Mode() Mode { return c.mode }

func (c *MemoryConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
	if ev.Kind == EventClose {
		c.closed = true
		close(c.events)
	}
}

func randomBlob() []byte {
	blob := make([]byte, 32)
	rand.Read(blob)
	return blob
}

func randomQRPayload() string {
	ref := make([]byte, 24)
	rand.Read(ref)
	// rendering is the front-end's job; the payload is already a data URL
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString(ref)
}
