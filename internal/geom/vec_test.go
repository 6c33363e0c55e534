package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistances(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}
	assert.Equal(t, 25.0, a.DistSq(b))
	assert.Equal(t, 3.0, a.HorizontalDist(b))
	assert.Equal(t, Vec3{X: 5, Y: 8, Z: 6}, a.Add(b))
}

func TestDirectionFromAngles(t *testing.T) {
	d := DirectionFromAngles(90, 0)
	assert.InDelta(t, 0, d.X, 1e-9)
	assert.InDelta(t, 1, d.Z, 1e-9)

	up := DirectionFromAngles(0, 90)
	assert.InDelta(t, 1, up.Y, 1e-9)
	assert.InDelta(t, 1, math.Sqrt(up.DistSq(Vec3{})), 1e-9)
}

func TestAngleBetweenDegFolds(t *testing.T) {
	assert.InDelta(t, 10, AngleBetweenDeg(math.Pi*175/180, -math.Pi*175/180), 1e-9)
	assert.InDelta(t, 180, AngleBetweenDeg(0, math.Pi), 1e-9)
	assert.InDelta(t, 0, AngleBetweenDeg(2*math.Pi, 0), 1e-9)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
	n := Vec3{X: 3, Z: 4}.Normalize()
	assert.InDelta(t, 0.6, n.X, 1e-9)
	assert.InDelta(t, 0.8, n.Z, 1e-9)
}

func TestAngleByte(t *testing.T) {
	assert.Equal(t, byte(0), AngleByte(0))
	assert.Equal(t, byte(64), AngleByte(math.Pi/2))
	assert.Equal(t, byte(128), AngleByte(math.Pi))
	assert.Equal(t, byte(192), AngleByte(-math.Pi/2))
	assert.Equal(t, byte(0), AngleByte(2*math.Pi))
}
