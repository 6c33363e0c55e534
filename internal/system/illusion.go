package system

import (
	"time"

	"github.com/shadowd/server/internal/config"
	"github.com/shadowd/server/internal/core/event"
	coresys "github.com/shadowd/server/internal/core/system"
	"github.com/shadowd/server/internal/illusion"
)

// IllusionDrainer runs handed-off illusion work and due delayed actions.
type IllusionDrainer interface {
	Drain(now time.Time)
}

// IllusionSystem drives the illusion service once per tick. Phase 2 (Update).
type IllusionSystem struct {
	svc IllusionDrainer
	now func() time.Time
}

func NewIllusionSystem(svc IllusionDrainer, now func() time.Time) *IllusionSystem {
	if now == nil {
		now = time.Now
	}
	return &IllusionSystem{svc: svc, now: now}
}

func (s *IllusionSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *IllusionSystem) Update(_ time.Duration) {
	s.svc.Drain(s.now())
}

// SettingsFrom maps the live configuration onto the illusion subsystem.
// The global switch gates the shadow switch.
func SettingsFrom(cfg *config.Config) illusion.Settings {
	sh := cfg.Shadow
	st := illusion.Settings{
		Enabled: cfg.Global.Enabled && sh.Enabled,
		Bounds: illusion.Bounds{
			MinDistance:     sh.DistanceMin,
			MaxDistance:     sh.DistanceMax,
			MinAltitude:     sh.AltitudeMin,
			MaxAltitude:     sh.AltitudeMax,
			FOVExclusionDeg: sh.FOVExclusion,
			FOVMarginDeg:    sh.FOVMargin,
			MaxLightLevel:   sh.MinLightLevel,
			MaxAttempts:     sh.MaxAttempts,
		},
		AloneRadius:     sh.AloneRadius,
		CooldownSeconds: sh.CooldownSeconds,
		RosterLinger:    sh.RosterLinger,
		ExemptModes:     sh.ExemptModes,
	}
	if r := sh.VisibleDurationRange; len(r) == 2 {
		st.VisibleMin, st.VisibleMax = r[0], r[1]
	}
	return st
}

// BindLifecycleEvents turns registry transitions into bus events: a session
// reaching Visible is opened, a removed one is closed. A removal that skipped
// Withdrawing never finished its closing sequence and is flagged Aborted.
// name resolves observer names; transitions happen on the game loop only.
func BindLifecycleEvents(reg *illusion.Registry, bus *event.Bus, name func(id int32) string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	reg.OnTransition(func(h illusion.Handle, from illusion.State) {
		id := int32(h.Observer)
		switch {
		case from == illusion.StateAnnounced && h.State == illusion.StateVisible:
			event.Emit(bus, event.IllusionOpened{
				ObserverID:   id,
				ObserverName: name(id),
				Identity:     h.Identity,
				EntityID:     h.EntityID,
				At:           now(),
			})
		case h.State == illusion.StateDestroyed:
			event.Emit(bus, event.IllusionClosed{
				ObserverID:   id,
				ObserverName: name(id),
				Identity:     h.Identity,
				EntityID:     h.EntityID,
				At:           now(),
				Aborted:      from != illusion.StateWithdrawing,
			})
		}
	})
}
