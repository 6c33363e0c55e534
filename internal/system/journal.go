package system

import (
	"time"

	"github.com/shadowd/server/internal/core/event"
	coresys "github.com/shadowd/server/internal/core/system"
	"github.com/shadowd/server/internal/persist"
)

// JournalQueue accepts audit rows without blocking. *persist.JournalWriter
// implements it.
type JournalQueue interface {
	Enqueue(e persist.JournalEntry) bool
}

// JournalSystem collects illusion lifecycle events and hands them to the
// journal writer. Phase 5 (Persist).
type JournalSystem struct {
	queue   JournalQueue
	pending []persist.JournalEntry
}

func NewJournalSystem(bus *event.Bus, queue JournalQueue) *JournalSystem {
	s := &JournalSystem{queue: queue}
	event.Subscribe(bus, func(ev event.IllusionOpened) {
		s.pending = append(s.pending, persist.JournalEntry{
			Kind:         persist.KindOpened,
			ObserverID:   ev.ObserverID,
			ObserverName: ev.ObserverName,
			Identity:     ev.Identity,
			EntityID:     ev.EntityID,
			At:           ev.At,
		})
	})
	event.Subscribe(bus, func(ev event.IllusionClosed) {
		kind := persist.KindClosed
		if ev.Aborted {
			kind = persist.KindAborted
		}
		s.pending = append(s.pending, persist.JournalEntry{
			Kind:         kind,
			ObserverID:   ev.ObserverID,
			ObserverName: ev.ObserverName,
			Identity:     ev.Identity,
			EntityID:     ev.EntityID,
			At:           ev.At,
		})
	})
	return s
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	for _, e := range s.pending {
		s.queue.Enqueue(e)
	}
	s.pending = s.pending[:0]
}
