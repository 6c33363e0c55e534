package illusion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of an illusion session. The zero value,
// StateInactive, is never stored: it stands for "no record".
type State int

const (
	StateInactive    State = iota
	StateAnnounced         // identity allocated and published, entity not spawned
	StateVisible           // entity spawn sent
	StateWithdrawing       // removal sent, roster retraction pending
	StateDestroyed         // terminal; record removed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateAnnounced:
		return "Announced"
	case StateVisible:
		return "Visible"
	case StateWithdrawing:
		return "Withdrawing"
	case StateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Entity handles are drawn from [entityIDBase, EntityIDLimit). Observer IDs
// must be allocated at or above EntityIDLimit so the two never meet.
const (
	entityIDBase = 1000
	entityIDSpan = math.MaxInt32 / 2

	EntityIDLimit = entityIDBase + entityIDSpan
)

// Handle is a copy of a session record. Holding one never keeps the session
// alive; re-read it through Lookup.
type Handle struct {
	Observer        ObserverID
	Identity        uuid.UUID
	EntityID        int32
	State           State
	CreatedAt       time.Time
	DestroyAt       time.Time // zero until the removal is scheduled
	Serial          uint64
	RosterPublished bool
	RosterRetracted bool
}

// TransitionFunc observes every state change. from is StateInactive for a
// freshly opened session.
type TransitionFunc func(h Handle, from State)

// Registry owns all illusion sessions, at most one per observer. Safe for
// concurrent use; state transitions are reserved to the Sequencer.
type Registry struct {
	mu       sync.Mutex
	sessions map[ObserverID]*Handle
	entities map[int32]ObserverID
	serial   uint64
	rng      Rand
	now      func() time.Time
	hooks    []TransitionFunc
	newID    func() uuid.UUID
}

// NewRegistry creates an empty registry. rng is only touched under the lock.
func NewRegistry(rng Rand, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[ObserverID]*Handle),
		entities: make(map[int32]ObserverID),
		rng:      rng,
		now:      now,
		newID:    uuid.New,
	}
}

// OnTransition registers a hook. Hooks run outside the lock, on whichever
// goroutine performed the transition.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Open allocates a fresh identity and entity handle for id and records the
// session as Announced.
func (r *Registry) Open(id ObserverID) (Handle, error) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("open observer %d: %w", id, ErrAlreadyActive)
	}
	r.serial++
	h := &Handle{
		Observer:  id,
		Identity:  r.freshIdentity(),
		EntityID:  r.freshEntityID(),
		State:     StateAnnounced,
		CreatedAt: r.now(),
		Serial:    r.serial,
	}
	r.sessions[id] = h
	r.entities[h.EntityID] = id
	out := *h
	hooks := r.hooks
	r.mu.Unlock()

	notify(hooks, out, StateInactive)
	return out, nil
}

func (r *Registry) freshIdentity() uuid.UUID {
	for {
		id := r.newID()
		clash := false
		for _, s := range r.sessions {
			if s.Identity == id {
				clash = true
				break
			}
		}
		if !clash {
			return id
		}
	}
}

func (r *Registry) freshEntityID() int32 {
	for {
		id := int32(r.rng.Intn(entityIDSpan) + entityIDBase)
		if _, taken := r.entities[id]; !taken {
			return id
		}
	}
}

// Lookup returns a copy of the observer's session, if any.
func (r *Registry) Lookup(id ObserverID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sessions[id]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// Active returns copies of all live sessions.
func (r *Registry) Active() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, *h)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close drops the observer's session without emitting anything. Closing a
// missing session is a no-op.
func (r *Registry) Close(id ObserverID) {
	r.mu.Lock()
	h, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	from := h.State
	h.State = StateDestroyed
	r.removeLocked(h)
	out := *h
	hooks := r.hooks
	r.mu.Unlock()

	notify(hooks, out, from)
}

func (r *Registry) removeLocked(h *Handle) {
	delete(r.sessions, h.Observer)
	delete(r.entities, h.EntityID)
}

// update applies fn to the live record matching id and serial (serial 0
// matches any) and fires hooks when fn changed the state. fn returns false to
// reject the update.
func (r *Registry) update(id ObserverID, serial uint64, fn func(h *Handle) bool) (Handle, bool) {
	r.mu.Lock()
	h, ok := r.sessions[id]
	if !ok || (serial != 0 && h.Serial != serial) {
		r.mu.Unlock()
		return Handle{}, false
	}
	from := h.State
	if !fn(h) {
		r.mu.Unlock()
		return Handle{}, false
	}
	if h.State == StateDestroyed {
		r.removeLocked(h)
	}
	out := *h
	hooks := r.hooks
	r.mu.Unlock()

	if out.State != from {
		notify(hooks, out, from)
	}
	return out, true
}

func (r *Registry) transition(id ObserverID, serial uint64, from, to State) (Handle, bool) {
	return r.update(id, serial, func(h *Handle) bool {
		if h.State != from {
			return false
		}
		h.State = to
		return true
	})
}

// claim moves a live, not yet withdrawing session to Withdrawing. Only the
// caller that wins the claim may emit the removal.
func (r *Registry) claim(id ObserverID, serial uint64) (Handle, bool) {
	return r.update(id, serial, func(h *Handle) bool {
		if h.State != StateAnnounced && h.State != StateVisible {
			return false
		}
		h.State = StateWithdrawing
		return true
	})
}

func (r *Registry) setDeadline(id ObserverID, serial uint64, at time.Time) {
	r.update(id, serial, func(h *Handle) bool {
		h.DestroyAt = at
		return true
	})
}

func (r *Registry) setRoster(id ObserverID, serial uint64, published, retracted bool) {
	r.update(id, serial, func(h *Handle) bool {
		h.RosterPublished = published
		h.RosterRetracted = retracted
		return true
	})
}

func notify(hooks []TransitionFunc, h Handle, from State) {
	for _, fn := range hooks {
		fn(h, from)
	}
}
