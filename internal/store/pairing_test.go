package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPut(t *testing.T) {
	t.Run("inserts a live code", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		require.NoError(t, s.Put("123456", "15551230001"))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("rejects duplicate live code", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		require.NoError(t, s.Put("123456", "15551230001"))
		assert.ErrorIs(t, s.Put("123456", "15559990002"), ErrDuplicateCode)
	})

	t.Run("replaces expired leftover", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		now := time.Now()
		s.SetClock(func() time.Time { return now })

		require.NoError(t, s.Put("123456", "15551230001"))

		now = now.Add(6 * time.Minute)
		require.NoError(t, s.Put("123456", "15559990002"))

		pc, err := s.Consume("123456")
		require.NoError(t, err)
		assert.Equal(t, "15559990002", pc.Number)
	})
}

func TestConsume(t *testing.T) {
	t.Run("returns the record once", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		require.NoError(t, s.Put("123456", "15551230001"))

		pc, err := s.Consume("123456")
		require.NoError(t, err)
		assert.Equal(t, "123456", pc.Code)
		assert.Equal(t, "15551230001", pc.Number)
		assert.True(t, pc.Consumed)

		_, err = s.Consume("123456")
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("unknown code is not found and does not mutate state", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		require.NoError(t, s.Put("123456", "15551230001"))

		_, err := s.Consume("654321")
		assert.ErrorIs(t, err, ErrCodeNotFound)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("valid just inside TTL, expired just past it", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		created := time.Now()
		now := created
		s.SetClock(func() time.Time { return now })

		require.NoError(t, s.Put("111111", "15551230001"))
		require.NoError(t, s.Put("222222", "15551230001"))

		now = created.Add(299 * time.Second)
		_, err := s.Consume("111111")
		assert.NoError(t, err)

		now = created.Add(301 * time.Second)
		_, err = s.Consume("222222")
		assert.ErrorIs(t, err, ErrCodeExpired)

		// expired entry is gone, not lingering
		assert.Equal(t, 0, s.Len())
	})

	t.Run("exactly one concurrent consume succeeds", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		require.NoError(t, s.Put("123456", "15551230001"))

		const workers = 32
		var wg sync.WaitGroup
		results := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Consume("123456")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, ErrCodeNotFound)
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestSweep(t *testing.T) {
	t.Run("removes only expired entries", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		now := time.Now()
		s.SetClock(func() time.Time { return now })

		require.NoError(t, s.Put("111111", "15551230001"))

		now = now.Add(4 * time.Minute)
		require.NoError(t, s.Put("222222", "15551230001"))

		now = now.Add(2 * time.Minute) // first is 6m old, second 2m
		assert.Equal(t, 1, s.Sweep())
		assert.Equal(t, 1, s.Len())

		_, err := s.Consume("111111")
		assert.ErrorIs(t, err, ErrCodeNotFound)
		_, err = s.Consume("222222")
		assert.NoError(t, err)
	})

	t.Run("no-op on empty store", func(t *testing.T) {
		s := NewPairingStore(5 * time.Minute)
		assert.Equal(t, 0, s.Sweep())
	})
}

func TestNoDuplicateLiveEntries(t *testing.T) {
	// Concurrent Put calls on the same code: one wins, the rest regenerate.
	s := NewPairingStore(5 * time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Put("123456", fmt.Sprintf("155512300%02d", i))
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, s.Len())
}
