package system

import (
	"time"

	coresys "github.com/shadowd/server/internal/core/system"
)

// TPSRecorder receives one ticks-per-second measurement.
type TPSRecorder interface {
	Record(tps float64)
}

// HealthSystem counts ticks and reports the rate once per window.
// Phase 6 (Cleanup).
type HealthSystem struct {
	monitor TPSRecorder
	window  time.Duration
	now     func() time.Time

	start time.Time
	ticks int
}

func NewHealthSystem(monitor TPSRecorder, now func() time.Time) *HealthSystem {
	if now == nil {
		now = time.Now
	}
	return &HealthSystem{monitor: monitor, window: time.Second, now: now}
}

func (s *HealthSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *HealthSystem) Update(_ time.Duration) {
	now := s.now()
	if s.start.IsZero() {
		s.start = now
		return
	}
	s.ticks++
	elapsed := now.Sub(s.start)
	if elapsed < s.window {
		return
	}
	s.monitor.Record(float64(s.ticks) / elapsed.Seconds())
	s.start = now
	s.ticks = 0
}
