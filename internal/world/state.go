package world

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/shadowd/server/internal/geom"
	"github.com/shadowd/server/internal/illusion"
	"github.com/shadowd/server/internal/net"
)

// EyeHeight is the distance from an observer's feet to its eyes.
const EyeHeight = 1.62

// PlayerInfo holds in-memory data for a connected observer.
// Accessed only from the game loop goroutine.
type PlayerInfo struct {
	SessionID uint64
	Session   *net.Session
	ID        int32 // observer ID, also the player's object ID in packets
	Name      string
	Pos       geom.Vec3 // feet
	Yaw       float64   // degrees
	Pitch     float64   // degrees
	Mode      string
	GM        bool
	JoinedAt  time.Time

	LastMoveTime int64 // unix nanos of the last accepted move
}

// Eye returns the eye position.
func (p *PlayerInfo) Eye() geom.Vec3 {
	return p.Pos.Add(geom.Vec3{Y: EyeHeight})
}

// Observer converts the player to the read-only view used by the illusion
// subsystem.
func (p *PlayerInfo) Observer() illusion.Observer {
	return illusion.Observer{
		ID:   illusion.ObserverID(p.ID),
		Name: p.Name,
		Feet: p.Pos,
		Eye:  p.Eye(),
		Look: geom.DirectionFromAngles(p.Yaw, p.Pitch),
		Mode: p.Mode,
	}
}

// State tracks every connected observer. All methods except Observers are
// game loop only.
type State struct {
	bySession map[uint64]*PlayerInfo
	byID      map[int32]*PlayerInfo
	byName    map[string]*PlayerInfo // lower-cased name

	nextID int32

	snapshot atomic.Pointer[[]illusion.Observer]
}

func NewState() *State {
	s := &State{
		bySession: make(map[uint64]*PlayerInfo),
		byID:      make(map[int32]*PlayerInfo),
		byName:    make(map[string]*PlayerInfo),
		nextID:    illusion.EntityIDLimit - 1,
	}
	empty := []illusion.Observer{}
	s.snapshot.Store(&empty)
	return s
}

// NextID allocates an observer ID. IDs start at illusion.EntityIDLimit, above
// every apparition entity handle.
func (s *State) NextID() int32 {
	s.nextID++
	return s.nextID
}

// AddPlayer registers a player.
func (s *State) AddPlayer(p *PlayerInfo) {
	s.bySession[p.SessionID] = p
	s.byID[p.ID] = p
	s.byName[strings.ToLower(p.Name)] = p
}

// RemovePlayer removes a player and returns it, or nil if unknown.
func (s *State) RemovePlayer(sessionID uint64) *PlayerInfo {
	p, ok := s.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(s.bySession, sessionID)
	delete(s.byID, p.ID)
	delete(s.byName, strings.ToLower(p.Name))
	return p
}

func (s *State) GetBySession(sessionID uint64) *PlayerInfo {
	return s.bySession[sessionID]
}

func (s *State) GetByID(id int32) *PlayerInfo {
	return s.byID[id]
}

// GetByName looks a player up case-insensitively.
func (s *State) GetByName(name string) *PlayerInfo {
	return s.byName[strings.ToLower(name)]
}

// UpdatePose moves a player and turns its head.
func (s *State) UpdatePose(sessionID uint64, pos geom.Vec3, yaw, pitch float64) {
	p := s.bySession[sessionID]
	if p == nil {
		return
	}
	p.Pos = pos
	p.Yaw = yaw
	p.Pitch = pitch
}

func (s *State) PlayerCount() int {
	return len(s.bySession)
}

// AllPlayers iterates all connected players.
func (s *State) AllPlayers(fn func(*PlayerInfo)) {
	for _, p := range s.bySession {
		fn(p)
	}
}

// PublishSnapshot stores an immutable copy of every observer for the scan
// goroutine. Called once per tick.
func (s *State) PublishSnapshot() {
	snap := make([]illusion.Observer, 0, len(s.bySession))
	for _, p := range s.bySession {
		snap = append(snap, p.Observer())
	}
	s.snapshot.Store(&snap)
}

// Observers returns the last published snapshot. Safe from any goroutine;
// the slice must not be modified.
func (s *State) Observers() []illusion.Observer {
	return *s.snapshot.Load()
}

// Find resolves a live observer by name.
func (s *State) Find(name string) (illusion.Observer, bool) {
	p := s.GetByName(name)
	if p == nil {
		return illusion.Observer{}, false
	}
	return p.Observer(), true
}

// Get resolves a live observer by ID.
func (s *State) Get(id illusion.ObserverID) (illusion.Observer, bool) {
	p := s.byID[int32(id)]
	if p == nil {
		return illusion.Observer{}, false
	}
	return p.Observer(), true
}
