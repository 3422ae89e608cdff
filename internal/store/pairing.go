// Package store holds the in-memory table of outstanding pairing codes.
// Entries are single-use and time-bounded; all mutation happens under one
// mutex so Consume is linearizable with respect to itself and Put.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/rahlquantum/pairing-server-go/internal/model"
)

var (
	ErrDuplicateCode = errors.New("pairing code already live")
	ErrCodeNotFound  = errors.New("pairing code not found")
	ErrCodeExpired   = errors.New("pairing code expired")
)

type entry struct {
	number    string
	createdAt time.Time
}

type PairingStore struct {
	mu    sync.Mutex
	codes map[string]*entry
	ttl   time.Duration

	now func() time.Time // injectable for tests
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{
		codes: make(map[string]*entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put inserts a new live code. A collision with a live entry fails with
// ErrDuplicateCode so the caller can regenerate instead of overwriting.
func (s *PairingStore) Put(code, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.codes[code]; ok {
		if now.Sub(e.createdAt) <= s.ttl {
			return ErrDuplicateCode
		}
		// expired leftover; safe to replace
		delete(s.codes, code)
	}

	s.codes[code] = &entry{number: number, createdAt: now}
	return nil
}

// Consume atomically validates the code, removes it, and returns the record.
// Exactly one of two concurrent calls on the same code can succeed; the
// other sees ErrCodeNotFound. Expired entries are removed on sight.
func (s *PairingStore) Consume(code string) (*model.PairingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}

	delete(s.codes, code)

	if s.now().Sub(e.createdAt) > s.ttl {
		return nil, ErrCodeExpired
	}

	return &model.PairingCode{
		Code:      code,
		Number:    e.number,
		CreatedAt: e.createdAt,
		Consumed:  true,
	}, nil
}

// Sweep removes expired, unconsumed entries and reports how many went.
func (s *PairingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, e := range s.codes {
		if now.Sub(e.createdAt) > s.ttl {
			delete(s.codes, code)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries.
func (s *PairingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// SetClock replaces the store's time source. Test hook.
func (s *PairingStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
