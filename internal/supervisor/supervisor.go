// Package supervisor owns the lifecycle of the single transport connection:
// dialing, lifecycle events, bounded reconnection, credential persistence,
// and the cached QR payload. One supervisor per process; the HTTP façade and
// session issuer hold a reference, never a global.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/model"
	"github.com/rahlquantum/pairing-server-go/internal/repository"
	"github.com/rahlquantum/pairing-server-go/internal/transport"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultMaxReconnects  = 10
	defaultStartTimeout   = 60 * time.Second

	persistTimeout  = 10 * time.Second
	changeBuffer    = 64
	subscribeBuffer = 32
)

// StateChange describes one transition. Observers receive every transition
// in order, serially, on a dedicated goroutine.
type StateChange struct {
	From model.ConnectionState `json:"from"`
	To   model.ConnectionState `json:"to"`
	At   time.Time             `json:"at"`
}

// Observer is a state-transition callback.
type Observer func(StateChange)

type Options struct {
	ReconnectDelay time.Duration
	MaxReconnects  int
	StartTimeout   time.Duration
}

type observerEntry struct {
	id int
	fn Observer
}

type Supervisor struct {
	transport transport.Transport
	creds     repository.CredentialStore
	opts      Options

	mu         sync.Mutex
	state      model.ConnectionState
	mode       transport.Mode
	number     string
	conn       transport.Conn
	connID     string
	qr         string
	retryCount int
	lastError  error
	retryTimer *time.Timer
	stopped    bool
	closed     bool
	ready      chan struct{}

	observers  []observerEntry
	nextObsID  int
	changes    chan StateChange
	notifyDone chan struct{}
	closeOnce  sync.Once
}

func New(t transport.Transport, creds repository.CredentialStore, opts Options) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultStartTimeout
	}

	s := &Supervisor{
		transport:  t,
		creds:      creds,
		opts:       opts,
		state:      model.StateDisconnected,
		changes:    make(chan StateChange, changeBuffer),
		notifyDone: make(chan struct{}),
	}
	go s.notify()
	return s
}

// Start dials the transport and blocks until the connection is usable: in QR
// mode until the first QR payload or open, in pair mode until the socket is
// established (open only arrives after the user enters the linking code on
// the phone). Bounded by Options.StartTimeout.
func (s *Supervisor) Start(ctx context.Context, mode transport.Mode, number string) error {
	s.mu.Lock()
	if s.state != model.StateDisconnected {
		s.mu.Unlock()
		return apperrors.AlreadyConnected()
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mode = mode
	s.number = number
	s.retryCount = 0
	s.lastError = nil
	s.stopped = false
	s.qr = ""
	ready := make(chan struct{})
	s.ready = ready
	s.mu.Unlock()

	if err := s.dial(ctx); err != nil {
		return err
	}

	if mode == transport.ModePair {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-time.After(s.opts.StartTimeout):
		return apperrors.ConnectionTimeout()
	case <-ctx.Done():
		return apperrors.ConnectionTimeout().WithCause(ctx.Err())
	}
}

// Stop closes the connection deliberately. No reconnect is scheduled and a
// pending one is suppressed; the supervisor stays Disconnected until the
// next Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	if conn != nil {
		s.setStateLocked(model.StateClosing)
	} else if s.state != model.StateDisconnected {
		s.setStateLocked(model.StateDisconnected)
	}
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("transport close failed")
		}
	}
}

// Shutdown stops the connection and ends observer delivery. The supervisor
// is unusable afterwards; process shutdown only.
func (s *Supervisor) Shutdown() {
	s.Stop()
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.changes)
		<-s.notifyDone
	})
}

// RequestPairingCode asks the transport for a device-linking code. Only
// meaningful while the connection is being established in pair mode.
func (s *Supervisor) RequestPairingCode(ctx context.Context, number string) (string, error) {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if conn == nil || (state != model.StateConnecting && state != model.StateAwaitingPairAck) {
		return "", apperrors.TransportUnavailable()
	}

	code, err := conn.RequestPairingCode(ctx, number)
	if errors.Is(err, transport.ErrPairingUnsupported) {
		return "", apperrors.UnsupportedMode(string(transport.ModePair)).WithCause(err)
	}
	if err != nil {
		return "", apperrors.TransportUnavailable().WithCause(err)
	}

	s.mu.Lock()
	if s.conn == conn {
		s.setStateLocked(model.StateAwaitingPairAck)
	}
	s.mu.Unlock()

	return code, nil
}

// CurrentQR returns the most recent unconsumed QR payload. QRPending while
// the transport has not produced one yet, QRUnavailable when there is no
// QR-mode connection to produce one.
func (s *Supervisor) CurrentQR() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.qr != "" {
		return s.qr, nil
	}
	if s.mode == transport.ModeQR &&
		(s.state == model.StateConnecting || s.state == model.StateAwaitingQR) {
		return "", apperrors.QRPending()
	}
	return "", apperrors.QRUnavailable()
}

// SendMessage delivers a text to a number over the open connection.
func (s *Supervisor) SendMessage(ctx context.Context, number, text string) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if state != model.StateOpen || conn == nil {
		return apperrors.TransportUnavailable()
	}
	return conn.SendMessage(ctx, number, text)
}

// State returns the current connection state.
func (s *Supervisor) State() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot reports state, mode, retry count, and last error for /status.
func (s *Supervisor) Snapshot() (model.ConnectionState, transport.Mode, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.mode, s.retryCount, s.lastError
}

// OnStateChange registers an observer. Observers are called for every
// transition in registration order and never concurrently with each other.
func (s *Supervisor) OnStateChange(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObsID++
	s.observers = append(s.observers, observerEntry{id: s.nextObsID, fn: fn})
}

// Subscribe returns a channel of state changes and a cancel func. Slow
// consumers lose events rather than stalling delivery.
func (s *Supervisor) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, subscribeBuffer)

	s.mu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, fn: func(change StateChange) {
		select {
		case ch <- change:
		default:
			log.Warn().Msg("state change subscriber buffer full, dropping event")
		}
	}})
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Supervisor) dial(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(model.StateConnecting)
	mode, number := s.mode, s.number
	s.mu.Unlock()

	conn, err := s.transport.Connect(ctx, mode, number)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.setStateLocked(model.StateDisconnected)
		s.mu.Unlock()
		return apperrors.TransportUnavailable().WithCause(err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.connID = uuid.NewString()
	connID := s.connID
	s.mu.Unlock()

	log.Info().Str("connId", connID).Str("mode", string(mode)).Msg("transport dialed")

	go s.eventLoop(conn, connID)
	return nil
}

// eventLoop is the single dispatch point for one connection's events; state
// transitions are serialized through it.
func (s *Supervisor) eventLoop(conn transport.Conn, connID string) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case transport.EventQR:
			s.handleQR(connID, ev.QR)
		case transport.EventOpen:
			s.handleOpen(connID)
		case transport.EventCredentials:
			s.persistCredentials(connID, ev.Credentials)
		case transport.EventClose:
			s.handleClose(connID, ev.Err)
			return
		}
	}
	s.handleClose(connID, errors.New("transport event stream ended"))
}

func (s *Supervisor) handleQR(connID, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connID != connID {
		return
	}

	s.qr = payload
	if s.state == model.StateConnecting {
		s.setStateLocked(model.StateAwaitingQR)
	}
	s.signalReadyLocked()
	log.Debug().Str("connId", connID).Msg("qr payload cached")
}

func (s *Supervisor) handleOpen(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connID != connID {
		return
	}

	s.qr = "" // consumed by the successful login
	s.retryCount = 0
	s.lastError = nil
	s.setStateLocked(model.StateOpen)
	s.signalReadyLocked()
	log.Info().Str("connId", connID).Msg("connection open")
}

// persistCredentials must complete before the next event is handled; an
// update that is not durable by the time the transport moves on can be lost
// for good. Persisting twice is harmless.
func (s *Supervisor) persistCredentials(connID string, blob []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.creds.Save(ctx, blob)
	if err != nil {
		err = s.creds.Save(ctx, blob)
	}
	if err != nil {
		log.Error().Err(err).Str("connId", connID).Msg("failed to persist credentials")
		return
	}
	log.Debug().Str("connId", connID).Int("bytes", len(blob)).Msg("credentials persisted")
}

func (s *Supervisor) handleClose(connID string, err error) {
	s.mu.Lock()
	if s.connID != connID {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connID = ""
	manual := s.stopped || s.state == model.StateClosing
	if err != nil {
		s.lastError = err
	}
	s.setStateLocked(model.StateDisconnected)

	if manual {
		s.mu.Unlock()
		log.Info().Msg("connection closed by caller")
		return
	}

	log.Warn().Err(err).Msg("connection closed unexpectedly")
	s.scheduleRetryLocked()
	s.mu.Unlock()
}

// scheduleRetryLocked arms the reconnect timer. Caller holds s.mu.
func (s *Supervisor) scheduleRetryLocked() {
	if s.stopped {
		return
	}
	if s.retryCount >= s.opts.MaxReconnects {
		log.Warn().Int("attempts", s.retryCount).Msg("reconnect budget exhausted, staying disconnected")
		return
	}
	s.retryCount++
	attempt := s.retryCount

	s.retryTimer = time.AfterFunc(s.opts.ReconnectDelay, func() {
		s.mu.Lock()
		if s.stopped || s.state != model.StateDisconnected {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		s.mu.Unlock()

		log.Info().Int("attempt", attempt).Msg("reconnecting")
		if err := s.dial(context.Background()); err != nil {
			s.mu.Lock()
			s.scheduleRetryLocked()
			s.mu.Unlock()
		}
	})
}

func (s *Supervisor) signalReadyLocked() {
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
}

// setStateLocked records a transition and queues it for observers. Caller
// holds s.mu.
func (s *Supervisor) setStateLocked(to model.ConnectionState) {
	from := s.state
	if from == to {
		return
	}
	s.state = to

	if s.closed {
		return
	}
	change := StateChange{From: from, To: to, At: time.Now()}
	select {
	case s.changes <- change:
	default:
		log.Warn().Msg("state change buffer full, dropping transition")
	}
}

func (s *Supervisor) notify() {
	defer close(s.notifyDone)
	for change := range s.changes {
		s.mu.Lock()
		obs := make([]observerEntry, len(s.observers))
		copy(obs, s.observers)
		s.mu.Unlock()

		for _, o := range obs {
			o.fn(change)
		}
	}
}
