package handler

import (
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleGameMode processes C_GAMEMODE: [S mode].
func HandleGameMode(sess *net.Session, r *packet.Reader, deps *Deps) {
	mode := normalizeMode(r.ReadS())
	player := deps.World.GetBySession(sess.ID)
	if player == nil || player.Mode == mode {
		return
	}
	deps.Log.Debug("遊戲模式變更", zap.String("player", player.Name),
		zap.String("from", player.Mode), zap.String("to", mode))
	player.Mode = mode
}
