package system

import (
	"time"

	coresys "github.com/shadowd/server/internal/core/system"
	"github.com/shadowd/server/internal/world"
)

// SnapshotSystem publishes the observer snapshot read by the scan goroutine.
// Phase 3 (PostUpdate).
type SnapshotSystem struct {
	world *world.State
}

func NewSnapshotSystem(ws *world.State) *SnapshotSystem {
	return &SnapshotSystem{world: ws}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SnapshotSystem) Update(_ time.Duration) {
	s.world.PublishSnapshot()
}
