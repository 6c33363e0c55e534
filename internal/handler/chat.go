package handler

import (
	"fmt"
	"strings"

	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"github.com/shadowd/server/internal/world"
	"go.uber.org/zap"
)

// MaxChatLength bounds a chat line in bytes.
const MaxChatLength = 256

// HandleChat processes C_CHAT: [S text]. Lines from GMs starting with "."
// are operator commands; everything else is broadcast to every observer.
func HandleChat(sess *net.Session, r *packet.Reader, deps *Deps) {
	text := strings.TrimSpace(r.ReadS())
	if text == "" {
		return
	}
	if len(text) > MaxChatLength {
		text = text[:MaxChatLength]
	}

	player := deps.World.GetBySession(sess.ID)
	if player == nil {
		return
	}

	if HandleGMCommand(sess, player, text, deps) {
		return
	}

	deps.Log.Debug("C_Chat", zap.String("player", player.Name), zap.String("text", text))
	msg := fmt.Sprintf("<%s> %s", player.Name, text)
	deps.World.AllPlayers(func(other *world.PlayerInfo) {
		sendSystemMessage(other.Session, msg)
	})
}

// HandleQuit processes C_QUIT. Cleanup happens when the input system sees the
// closed session.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info(fmt.Sprintf("玩家登出  session=%d  名稱=%s", sess.ID, sess.Name))
	sess.Close()
}
