package handler

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shadowd/server/internal/config"
	"github.com/shadowd/server/internal/core/event"
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"github.com/shadowd/server/internal/world"
	"go.uber.org/zap"
)

// MaxNameLength bounds observer names in characters.
const MaxNameLength = 16

// HandleLogin processes C_LOGIN: [S name][C roster][S mode].
// Clients that keep no player list cannot render apparitions and are refused.
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := strings.TrimSpace(r.ReadS())
	roster := r.ReadC()
	mode := normalizeMode(r.ReadS())

	if reason := validateName(name); reason != "" {
		refuse(sess, deps, name, reason)
		return
	}
	if roster == 0 {
		refuse(sess, deps, name, "client without player list is not supported")
		return
	}
	if deps.World.GetByName(name) != nil {
		refuse(sess, deps, name, "name already online")
		return
	}

	now := time.Now()
	player := &world.PlayerInfo{
		SessionID:    sess.ID,
		Session:      sess,
		ID:           deps.World.NextID(),
		Name:         name,
		Mode:         mode,
		GM:           isGM(deps, name),
		JoinedAt:     now,
		LastMoveTime: now.UnixNano(),
	}
	deps.World.AddPlayer(player)
	sess.Name = name
	sess.SetState(packet.StateInWorld)

	sendLoginOK(sess, player.ID, name)
	event.Emit(deps.Bus, event.ObserverJoined{
		ObserverID: player.ID,
		SessionID:  sess.ID,
		Name:       name,
	})
	deps.Log.Info(fmt.Sprintf("玩家登入  session=%d  名稱=%s  id=%d", sess.ID, name, player.ID),
		zap.String("mode", mode), zap.Bool("gm", player.GM))
}

func validateName(name string) string {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return "empty name"
	case n > MaxNameLength:
		return "name too long"
	case strings.ContainsAny(name, " \t."):
		return "invalid characters in name"
	}
	return ""
}

func refuse(sess *net.Session, deps *Deps, name, reason string) {
	deps.Log.Info("拒絕登入", zap.Uint64("session", sess.ID), zap.String("name", name), zap.String("reason", reason))
	sendDisconnect(sess, reason) // best effort: Close may win the race with the writer
	sess.FlushOutput()
	sess.Close()
}

func isGM(deps *Deps, name string) bool {
	for _, gm := range deps.Config.Current().Server.GMNames {
		if strings.EqualFold(gm, name) {
			return true
		}
	}
	return false
}

func normalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return config.ModeSurvival
	}
	return mode
}
