package illusion

import (
	"math"

	"github.com/shadowd/server/internal/geom"
)

// Bounds constrains where an apparition may stand.
type Bounds struct {
	MinDistance     float64
	MaxDistance     float64
	MinAltitude     float64
	MaxAltitude     float64
	FOVExclusionDeg float64
	FOVMarginDeg    float64
	MaxLightLevel   int
	MaxAttempts     int
}

const (
	// DefaultAttempts caps the rejection sampler when Bounds leaves it unset.
	DefaultAttempts = 12

	// Every candidate lands at least this far past the edge of the exclusion cone
	// and at most this far beyond it.
	conePadDeg    = 5.0
	coneSpreadDeg = 120.0
)

// ExclusionHalfAngle returns the half-angle of the forward cone no candidate
// may fall into.
func (b Bounds) ExclusionHalfAngle() float64 {
	return b.FOVExclusionDeg + b.FOVMarginDeg
}

// Solve looks for a dark spot outside the observer's forward cone at a
// bounded horizontal distance. It is a bounded-retry rejection sampler: a
// valid point may exist and still be missed. The returned point, if any,
// satisfies every constraint in b.
func Solve(pose Pose, light LightSampler, b Bounds, rng Rand) (geom.Vec3, bool) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	minDist, maxDist := b.MinDistance, b.MaxDistance
	if maxDist < minDist {
		minDist, maxDist = maxDist, minDist
	}
	if minDist < 0 || b.MaxAltitude < b.MinAltitude {
		return geom.Vec3{}, false
	}

	half := b.ExclusionHalfAngle()
	minOff := half + conePadDeg
	maxOff := math.Min(half+conePadDeg+coneSpreadDeg, 180)
	if minOff > 180 {
		return geom.Vec3{}, false
	}

	lookYaw := pose.Look.Yaw()
	for i := 0; i < attempts; i++ {
		dist := minDist + rng.Float64()*(maxDist-minDist)
		off := (minOff + rng.Float64()*(maxOff-minOff)) * math.Pi / 180
		if rng.Intn(2) == 0 {
			off = -off
		}
		yaw := lookYaw + off
		c := geom.Vec3{
			X: pose.Eye.X + math.Cos(yaw)*dist,
			Y: geom.Clamp(pose.Eye.Y, b.MinAltitude, b.MaxAltitude),
			Z: pose.Eye.Z + math.Sin(yaw)*dist,
		}
		if light.LightAt(c) <= b.MaxLightLevel {
			return c, true
		}
	}
	return geom.Vec3{}, false
}
