package illusion

import (
	"errors"
	"fmt"
	"time"

	"github.com/shadowd/server/internal/geom"
	"go.uber.org/zap"
)

// Roster entries of apparitions carry a blank display name.
const apparitionName = " "

// Sequencer emits the ordered message sequence that opens and closes an
// illusion, and is the only component that moves sessions between states.
// Game loop only.
type Sequencer struct {
	reg       *Registry
	transport Transport // nil: logical-only mode
	sched     Scheduler
	rng       Rand
	settings  func() Settings
	now       func() time.Time
	log       *zap.Logger
}

// NewSequencer builds a sequencer. A nil transport switches it permanently
// to logical-only mode, announced once here.
func NewSequencer(reg *Registry, transport Transport, sched Scheduler, rng Rand, settings func() Settings, now func() time.Time, log *zap.Logger) *Sequencer {
	if now == nil {
		now = time.Now
	}
	if transport == nil {
		log.Warn("幻影傳輸層不可用，僅追蹤邏輯狀態 (不發送封包)")
	}
	return &Sequencer{
		reg:       reg,
		transport: transport,
		sched:     sched,
		rng:       rng,
		settings:  settings,
		now:       now,
		log:       log,
	}
}

// Degraded reports whether the sequencer runs without a transport.
func (s *Sequencer) Degraded() bool { return s.transport == nil }

// OpenIllusion opens a session for obs and shows the apparition at p.
// Fails with ErrAlreadyActive when obs already has one. A send failure
// force-closes the session and is returned wrapped.
func (s *Sequencer) OpenIllusion(obs Observer, p geom.Vec3) (Handle, error) {
	h, err := s.reg.Open(obs.ID)
	if err != nil {
		return Handle{}, err
	}
	cfg := s.settings()

	if s.transport == nil {
		if v, ok := s.reg.transition(obs.ID, h.Serial, StateAnnounced, StateVisible); ok {
			h = v
		}
		s.scheduleRemoval(h, cfg)
		s.log.Debug("幻影開啟 (邏輯模式)", zap.Int32("observer", int32(obs.ID)), zap.Int32("entity", h.EntityID))
		return h, nil
	}

	if s.transport.SupportsRoster() {
		if err := s.transport.PublishIdentity(obs.ID, h.Identity, apparitionName); err != nil {
			return Handle{}, s.abort(h, "roster_add", false, err)
		}
		s.reg.setRoster(obs.ID, h.Serial, true, false)
		h.RosterPublished = true
	}
	if err := s.transport.SpawnEntity(obs.ID, h.EntityID, h.Identity, p); err != nil {
		return Handle{}, s.abort(h, "spawn", false, err)
	}
	if v, ok := s.reg.transition(obs.ID, h.Serial, StateAnnounced, StateVisible); ok {
		h = v
	}
	if err := s.transport.SendMetadata(obs.ID, h.EntityID); err != nil {
		return Handle{}, s.abort(h, "metadata", true, err)
	}
	facing := geom.AngleByte(obs.Eye.Sub(p).Yaw())
	if err := s.transport.SendHeadRotation(obs.ID, h.EntityID, facing); err != nil {
		return Handle{}, s.abort(h, "head_rotation", true, err)
	}

	if h.RosterPublished {
		serial, id := h.Serial, obs.ID
		s.sched.After(cfg.RosterLinger, func() { s.retractRoster(id, serial) })
	}
	s.scheduleRemoval(h, cfg)

	s.log.Debug("幻影開啟",
		zap.Int32("observer", int32(obs.ID)),
		zap.Int32("entity", h.EntityID),
		zap.Stringer("identity", h.Identity),
		zap.Float64("x", p.X), zap.Float64("y", p.Y), zap.Float64("z", p.Z),
	)
	return h, nil
}

// abort force-closes a session whose opening sequence failed midway. While
// the observer is still connected, whatever already reached the client is
// removed on a best-effort basis.
func (s *Sequencer) abort(h Handle, step string, spawned bool, cause error) error {
	s.log.Warn("幻影封包發送失敗，強制關閉",
		zap.Int32("observer", int32(h.Observer)),
		zap.String("step", step),
		zap.Error(cause),
	)
	if !errors.Is(cause, ErrObserverGone) {
		if spawned {
			if err := s.transport.DestroyEntity(h.Observer, h.EntityID); err != nil {
				s.log.Debug("幻影清除失敗",
					zap.Int32("observer", int32(h.Observer)),
					zap.Int32("entity", h.EntityID),
					zap.Error(err),
				)
			}
		}
		if h.RosterPublished {
			if err := s.transport.RetractIdentity(h.Observer, h.Identity); err != nil {
				s.log.Debug("幻影名單撤回失敗",
					zap.Int32("observer", int32(h.Observer)),
					zap.Stringer("identity", h.Identity),
					zap.Error(err),
				)
			}
		}
	}
	s.reg.Close(h.Observer)
	return fmt.Errorf("illusion %s: %w", step, cause)
}

func (s *Sequencer) scheduleRemoval(h Handle, cfg Settings) {
	visible := s.visibleDuration(cfg)
	s.reg.setDeadline(h.Observer, h.Serial, s.now().Add(visible))
	id, serial := h.Observer, h.Serial
	s.sched.After(visible, func() { s.expire(id, serial) })
}

func (s *Sequencer) visibleDuration(cfg Settings) time.Duration {
	lo, hi := cfg.VisibleMin, cfg.VisibleMax
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return time.Duration(lo+s.rng.Intn(hi-lo+1)) * time.Second
}

// retractRoster is the delayed roster removal. It only acts while the same
// session is still visible with its roster entry published.
func (s *Sequencer) retractRoster(id ObserverID, serial uint64) {
	h, ok := s.reg.Lookup(id)
	if !ok || h.Serial != serial || h.State != StateVisible || !h.RosterPublished || h.RosterRetracted {
		return
	}
	if err := s.transport.RetractIdentity(id, h.Identity); err != nil {
		s.log.Warn("幻影名單移除失敗", zap.Int32("observer", int32(id)), zap.Error(err))
		s.reg.Close(id)
		return
	}
	s.reg.setRoster(id, serial, true, true)
}

// expire is the scheduled removal. A session that was already closed, or
// replaced by a newer one, is left alone.
func (s *Sequencer) expire(id ObserverID, serial uint64) {
	if !s.close(id, serial) {
		s.log.Debug("幻影排程移除已失效", zap.Int32("observer", int32(id)), zap.Uint64("serial", serial))
	}
}

// CloseIllusion removes the observer's apparition now. Repeated or late
// calls find nothing to claim and emit nothing. Reports whether a session was
// closed.
func (s *Sequencer) CloseIllusion(id ObserverID) bool {
	return s.close(id, 0)
}

func (s *Sequencer) close(id ObserverID, serial uint64) bool {
	h, ok := s.reg.claim(id, serial)
	if !ok {
		return false
	}
	if s.transport != nil {
		if err := s.transport.DestroyEntity(id, h.EntityID); err != nil {
			s.log.Warn("幻影移除封包發送失敗", zap.Int32("observer", int32(id)), zap.Error(err))
		} else if h.RosterPublished && !h.RosterRetracted {
			if err := s.transport.RetractIdentity(id, h.Identity); err != nil {
				s.log.Warn("幻影名單移除失敗", zap.Int32("observer", int32(id)), zap.Error(err))
			}
		}
	}
	s.reg.transition(id, h.Serial, StateWithdrawing, StateDestroyed)
	s.log.Debug("幻影關閉", zap.Int32("observer", int32(id)), zap.Int32("entity", h.EntityID))
	return true
}

// Forget drops the observer's session without messages, for observers that
// already left.
func (s *Sequencer) Forget(id ObserverID) {
	s.reg.Close(id)
}
