package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahlquantum/pairing-server-go/internal/store"
)

func TestSweepJob(t *testing.T) {
	t.Run("evicts expired codes on tick", func(t *testing.T) {
		codes := store.NewPairingStore(5 * time.Minute)
		now := time.Now()
		codes.SetClock(func() time.Time { return now })

		require.NoError(t, codes.Put("111111", "15551230001"))
		require.NoError(t, codes.Put("222222", "15551230001"))
		now = now.Add(6 * time.Minute)

		job := NewSweepJob(codes, 10*time.Millisecond)
		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return codes.Len() == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("leaves live codes alone", func(t *testing.T) {
		codes := store.NewPairingStore(5 * time.Minute)
		require.NoError(t, codes.Put("111111", "15551230001"))

		job := NewSweepJob(codes, 10*time.Millisecond)
		job.Start()

		time.Sleep(50 * time.Millisecond)
		job.Stop()

		assert.Equal(t, 1, codes.Len())
	})
}
