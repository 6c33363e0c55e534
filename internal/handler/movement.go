package handler

import (
	"math"
	"time"

	"github.com/shadowd/server/internal/geom"
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"go.uber.org/zap"
)

// maxCoord bounds accepted positions on every axis.
const maxCoord = 3.0e7

// movePayload is five doubles.
const movePayload = 5 * 8

// HandleMove processes C_MOVE: [F x][F y][F z][F yaw][F pitch].
// The server trusts the client pose; only non-finite or out-of-world values
// are dropped, as are truncated packets.
func HandleMove(sess *net.Session, r *packet.Reader, deps *Deps) {
	if r.Remaining() < movePayload {
		deps.Log.Debug("移動封包過短", zap.Uint64("session", sess.ID), zap.Int("bytes", r.Remaining()))
		return
	}
	x, y, z := r.ReadF(), r.ReadF(), r.ReadF()
	yaw, pitch := r.ReadF(), r.ReadF()

	player := deps.World.GetBySession(sess.ID)
	if player == nil {
		return
	}
	if !finite(x, y, z, yaw, pitch) ||
		math.Abs(x) > maxCoord || math.Abs(y) > maxCoord || math.Abs(z) > maxCoord {
		deps.Log.Warn("移動封包無效", zap.String("player", player.Name))
		return
	}

	yaw = math.Mod(yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	pitch = geom.Clamp(pitch, -90, 90)

	deps.World.UpdatePose(sess.ID, geom.Vec3{X: x, Y: y, Z: z}, yaw, pitch)
	player.LastMoveTime = time.Now().UnixNano()
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
