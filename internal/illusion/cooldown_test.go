package illusion

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleCooldownFollowsRandomSequence(t *testing.T) {
	rng := &scriptedRand{ints: []int{1, 0, 0, 1, 1}}
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, SampleCooldown([]int{60, 120}, rng))
	}
	assert.Equal(t, []time.Duration{
		120 * time.Second,
		60 * time.Second,
		60 * time.Second,
		120 * time.Second,
		120 * time.Second,
	}, got)
}

func TestSampleCooldownMatchesSeededSource(t *testing.T) {
	seconds := []int{60, 120}
	rng := rand.New(rand.NewSource(2026))
	twin := rand.New(rand.NewSource(2026))

	for i := 0; i < 50; i++ {
		want := time.Duration(seconds[twin.Intn(len(seconds))]) * time.Second
		assert.Equal(t, want, SampleCooldown(seconds, rng))
	}
}

func TestSampleCooldownEmptyListFallsBack(t *testing.T) {
	assert.Equal(t, DefaultCooldown, SampleCooldown(nil, &scriptedRand{}))
	assert.Equal(t, 300*time.Second, SampleCooldown([]int{}, &scriptedRand{}))
}

func TestCooldownElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cooldown{last: start, wait: time.Minute}
	assert.False(t, c.elapsed(start.Add(59*time.Second)))
	assert.True(t, c.elapsed(start.Add(time.Minute)))
}
