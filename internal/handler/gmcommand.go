package handler

import (
	"strings"

	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/world"
	"go.uber.org/zap"
)

// HandleGMCommand runs a "." prefixed chat line through the command
// dispatcher. Returns true if the text was consumed.
func HandleGMCommand(sess *net.Session, player *world.PlayerInfo, text string, deps *Deps) bool {
	if !strings.HasPrefix(text, ".") {
		return false
	}
	if !player.GM {
		deps.Log.Debug("非 GM 嘗試指令", zap.String("player", player.Name), zap.String("text", text))
		sendSystemMessage(sess, "You are not allowed to use commands.")
		return true
	}
	line := strings.TrimSpace(text[1:])
	if line == "" {
		return true
	}
	for _, reply := range deps.Commands.Execute(player.Name, line) {
		sendSystemMessage(sess, reply)
	}
	return true
}
