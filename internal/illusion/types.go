// Package illusion decides when a client-only apparition may appear near an
// observer, where it may stand, and how its appearance and disappearance are
// sequenced on the wire to that single observer.
//
// Two contexts touch this package. The Scanner runs on its own goroutine and
// only computes; everything that reads live world state or emits packets
// (Service.Drain, Service.RequestIllusion, Service.RevealIllusion and the
// Sequencer) runs on the game loop goroutine. The Registry is the only state
// shared by both and is internally locked.
package illusion

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shadowd/server/internal/geom"
)

// ObserverID is the stable identity of a connected observer.
type ObserverID int32

// Observer is a read-only view of a connected observer for one scan.
type Observer struct {
	ID   ObserverID
	Name string
	Feet geom.Vec3 // block position, used for the ambient light sample
	Eye  geom.Vec3
	Look geom.Vec3 // unit vector
	Mode string    // "survival", "creative", "spectator", ...
}

// Pose returns the observer's eye position and look direction.
func (o Observer) Pose() Pose {
	return Pose{Eye: o.Eye, Look: o.Look}
}

// Pose is an eye position plus a unit look direction.
type Pose struct {
	Eye  geom.Vec3
	Look geom.Vec3
}

// Rand is the random source consumed by the solver, sampler and sequencer.
// *math/rand.Rand satisfies it. Implementations need not be goroutine-safe;
// each context owns its own source.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// LightSampler maps a world point to an ambient light level (0-15).
// Implementations must be safe for concurrent use.
type LightSampler interface {
	LightAt(p geom.Vec3) int
}

// Directory enumerates connected observers. Observers is called from the
// scan goroutine and must return a snapshot it will not mutate afterwards.
type Directory interface {
	Observers() []Observer
}

// Locator resolves live observers. Called on the game loop only.
type Locator interface {
	Find(name string) (Observer, bool)
	Get(id ObserverID) (Observer, bool)
}

// Health is a smoothed recent-performance signal.
type Health interface {
	Healthy() bool
}

// ExemptRule lets scripts veto observers beyond the configured exempt modes.
type ExemptRule interface {
	IsExempt(o Observer) bool
}

// Scheduler runs fn on the game loop after d. Scheduled actions cannot be
// cancelled; they re-check session state when they run.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Transport emits the low-level messages of an illusion to exactly one
// observer. Called on the game loop only.
type Transport interface {
	// SupportsRoster reports whether the client keeps an identity roster
	// (player list) that must be populated before an entity can render.
	SupportsRoster() bool
	PublishIdentity(to ObserverID, identity uuid.UUID, name string) error
	SpawnEntity(to ObserverID, entityID int32, identity uuid.UUID, at geom.Vec3) error
	SendMetadata(to ObserverID, entityID int32) error
	SendHeadRotation(to ObserverID, entityID int32, yaw byte) error
	RetractIdentity(to ObserverID, identity uuid.UUID) error
	DestroyEntity(to ObserverID, entityID int32) error
}

var (
	// ErrAlreadyActive is returned by Registry.Open when the observer already
	// has a session. Callers must close it first.
	ErrAlreadyActive = errors.New("illusion already active for observer")
	// ErrObserverGone is returned by transports when the target disconnected.
	ErrObserverGone = errors.New("observer gone")
	// ErrUnknownObserver is returned by Service requests naming nobody online.
	ErrUnknownObserver = errors.New("unknown observer")
	// ErrNoPlacement is returned when the solver found no candidate.
	ErrNoPlacement = errors.New("no placement found")
	// ErrExempt is returned when a forced request targets an exempt observer.
	ErrExempt = errors.New("observer is exempt")
)

// DefaultCooldown applies when no cooldown durations are configured.
const DefaultCooldown = 300 * time.Second

// Settings is the hot-reloadable configuration surface of the subsystem.
type Settings struct {
	Enabled         bool
	Bounds          Bounds
	AloneRadius     float64
	CooldownSeconds []int
	VisibleMin      int // seconds
	VisibleMax      int // seconds
	RosterLinger    time.Duration
	ExemptModes     []string
}

func (s Settings) exemptMode(mode string) bool {
	for _, m := range s.ExemptModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Work is a unit handed from the scan goroutine to the game loop.
type Work struct {
	Observer ObserverID
	Point    geom.Vec3
	Issued   time.Time
}
