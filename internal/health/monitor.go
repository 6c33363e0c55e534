// Package health tracks the recent tick rate of the game loop and turns it
// into a coarse healthy/unhealthy signal for background work.
package health

import "sync"

// Samples is the smoothing window.
const Samples = 10

// Monitor keeps the last Samples tick-rate measurements. Record runs on the
// game loop; Healthy is read by the scan goroutine.
type Monitor struct {
	mu      sync.Mutex
	samples [Samples]float64
	idx     int
	filled  bool

	nominal float64        // reported while no sample exists
	minTPS  func() float64 // re-read on every check so reloads apply
}

func NewMonitor(nominal float64, minTPS func() float64) *Monitor {
	return &Monitor{nominal: nominal, minTPS: minTPS}
}

// Record adds one ticks-per-second measurement, evicting the oldest.
func (m *Monitor) Record(tps float64) {
	m.mu.Lock()
	m.samples[m.idx] = tps
	m.idx++
	if m.idx >= Samples {
		m.idx = 0
		m.filled = true
	}
	m.mu.Unlock()
}

// TPS returns the mean of the recorded samples.
func (m *Monitor) TPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.idx
	if m.filled {
		n = Samples
	}
	if n == 0 {
		return m.nominal
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += m.samples[i]
	}
	return sum / float64(n)
}

// Healthy reports whether the smoothed rate meets the configured minimum.
func (m *Monitor) Healthy() bool {
	return m.TPS() >= m.minTPS()
}
