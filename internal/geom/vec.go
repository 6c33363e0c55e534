package geom

import "math"

// Vec3 is a world-space point or direction. Y is altitude; X/Z span the
// horizontal plane.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// DistSq returns the squared 3-D distance between two points.
func (v Vec3) DistSq(o Vec3) float64 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

// HorizontalDist returns the distance between two points ignoring altitude.
func (v Vec3) HorizontalDist(o Vec3) float64 {
	return math.Hypot(v.X-o.X, v.Z-o.Z)
}

// Yaw returns the horizontal heading of a direction in radians, measured
// from +X toward +Z. A vertical direction yields 0.
func (v Vec3) Yaw() float64 {
	return math.Atan2(v.Z, v.X)
}

// Normalize returns the unit vector of v, or v itself when it has no length.
func (v Vec3) Normalize() Vec3 {
	l := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if l == 0 {
		return v
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// DirectionFromAngles converts yaw/pitch in degrees (yaw 0 = +X, positive
// toward +Z; pitch positive = up) into a unit look vector.
func DirectionFromAngles(yawDeg, pitchDeg float64) Vec3 {
	yaw := yawDeg * math.Pi / 180
	pitch := pitchDeg * math.Pi / 180
	c := math.Cos(pitch)
	return Vec3{X: math.Cos(yaw) * c, Y: math.Sin(pitch), Z: math.Sin(yaw) * c}
}

// AngleBetweenDeg returns the unsigned angle between two headings in degrees,
// folded into [0, 180].
func AngleBetweenDeg(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b)*180/math.Pi, 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AngleByte packs a heading in radians into the 1/256-turn byte used on the
// wire.
func AngleByte(rad float64) byte {
	turns := math.Mod(rad/(2*math.Pi), 1)
	if turns < 0 {
		turns++
	}
	return byte(int(math.Round(turns*256)) & 0xff)
}
