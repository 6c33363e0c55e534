package illusion

import "time"

// SampleCooldown picks a wait uniformly from the configured durations
// (seconds). An empty list yields DefaultCooldown.
func SampleCooldown(seconds []int, rng Rand) time.Duration {
	if len(seconds) == 0 {
		return DefaultCooldown
	}
	return time.Duration(seconds[rng.Intn(len(seconds))]) * time.Second
}

// cooldown is the per-observer rarity state kept by the Scanner.
type cooldown struct {
	last time.Time
	wait time.Duration
}

func (c cooldown) elapsed(now time.Time) bool {
	return now.Sub(c.last) >= c.wait
}
