package system

import (
	"time"

	"github.com/shadowd/server/internal/core/event"
	coresys "github.com/shadowd/server/internal/core/system"
	"github.com/shadowd/server/internal/illusion"
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"github.com/shadowd/server/internal/world"
	"go.uber.org/zap"
)

// SessionSource delivers connection lifecycle from the accept loop.
// *net.Server implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
	NotifyDead(sessionID uint64)
}

// ObserverLeaver drops per-observer illusion state.
type ObserverLeaver interface {
	ObserverLeft(id illusion.ObserverID)
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	maxPerTick int
	world      *world.State
	illusions  ObserverLeaver
	bus        *event.Bus
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	ws *world.State,
	illusions ObserverLeaver,
	bus *event.Bus,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		maxPerTick: maxPerTick,
		world:      ws,
		illusions:  illusions,
		bus:        bus,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.source.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Packets sent just before the close still count (a final move).
			s.drain(sess, "封包分派錯誤 (斷線中)")
			sess.FlushOutput()
			s.handleDisconnect(sess)
			s.source.NotifyDead(id)
			s.store.Remove(id)
			continue
		}
		s.drain(sess, "封包分派錯誤")
	}

	// 提前 flush：登入回覆與聊天訊息立即進入 OutQueue。
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) drain(sess *net.Session, msg string) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug(msg, zap.Uint64("session", sess.ID), zap.Error(err))
			}
		default:
			return
		}
	}
}

// handleDisconnect drops illusion state first, while the name still
// resolves for lifecycle events, then removes the observer.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	p := s.world.GetBySession(sess.ID)
	if p == nil {
		s.log.Debug("未登入連線中斷", zap.Uint64("session", sess.ID))
		return
	}
	s.illusions.ObserverLeft(illusion.ObserverID(p.ID))
	s.world.RemovePlayer(sess.ID)
	event.Emit(s.bus, event.ObserverLeft{
		ObserverID: p.ID,
		SessionID:  sess.ID,
		Name:       p.Name,
	})
	s.log.Info("玩家離線", zap.String("name", p.Name), zap.Int32("id", p.ID),
		zap.Duration("online", time.Since(p.JoinedAt).Round(time.Second)))
}
