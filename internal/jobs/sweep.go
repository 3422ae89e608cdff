package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rahlquantum/pairing-server-go/internal/store"
)

// SweepJob periodically evicts expired pairing codes. Consume also expires
// lazily; the sweep keeps abandoned codes from lingering in between.
type SweepJob struct {
	codes    *store.PairingStore
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(codes *store.PairingStore, interval time.Duration) *SweepJob {
	return &SweepJob{
		codes:    codes,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			if removed := j.codes.Sweep(); removed > 0 {
				log.Info().Int("count", removed).Msg("swept expired pairing codes")
			}
		}
	}
}
