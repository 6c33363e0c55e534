package illusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shadowd/server/internal/core/timer"
	"github.com/shadowd/server/internal/geom"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

// flatLight returns the same level everywhere.
type flatLight int

func (l flatLight) LightAt(geom.Vec3) int { return int(l) }

// lightFunc adapts a function to LightSampler.
type lightFunc func(geom.Vec3) int

func (f lightFunc) LightAt(p geom.Vec3) int { return f(p) }

// countingLight counts samples.
type countingLight struct {
	mu    sync.Mutex
	level int
	n     int
}

func (c *countingLight) LightAt(geom.Vec3) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.level
}

// scriptedRand replays fixed values; Float64 defaults to 0.5 once exhausted
// and Intn to 0.
type scriptedRand struct {
	ints   []int
	floats []float64
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.5
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

type health bool

func (h health) Healthy() bool { return bool(h) }

// clock is a manually advanced time source shared by the registry,
// sequencer and timer queue.
type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// call is one recorded transport message.
type call struct {
	Op       string
	To       ObserverID
	EntityID int32
}

// recordingTransport records every message and can fail a chosen op.
type recordingTransport struct {
	roster bool
	calls  []call
	failOp string
	failEr error
	// cleanupErr fails destroy and roster_remove.
	cleanupErr error
}

func (t *recordingTransport) SupportsRoster() bool { return t.roster }

func (t *recordingTransport) record(op string, to ObserverID, entityID int32) error {
	if op == t.failOp {
		return t.failEr
	}
	if t.cleanupErr != nil && (op == "destroy" || op == "roster_remove") {
		return t.cleanupErr
	}
	t.calls = append(t.calls, call{Op: op, To: to, EntityID: entityID})
	return nil
}

func (t *recordingTransport) PublishIdentity(to ObserverID, _ uuid.UUID, _ string) error {
	return t.record("roster_add", to, 0)
}

func (t *recordingTransport) SpawnEntity(to ObserverID, entityID int32, _ uuid.UUID, _ geom.Vec3) error {
	return t.record("spawn", to, entityID)
}

func (t *recordingTransport) SendMetadata(to ObserverID, entityID int32) error {
	return t.record("metadata", to, entityID)
}

func (t *recordingTransport) SendHeadRotation(to ObserverID, entityID int32, _ byte) error {
	return t.record("head", to, entityID)
}

func (t *recordingTransport) RetractIdentity(to ObserverID, _ uuid.UUID) error {
	return t.record("roster_remove", to, 0)
}

func (t *recordingTransport) DestroyEntity(to ObserverID, entityID int32) error {
	return t.record("destroy", to, entityID)
}

func (t *recordingTransport) ops() []string {
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.Op
	}
	return out
}

func (t *recordingTransport) count(op string) int {
	n := 0
	for _, c := range t.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// directory is a fixed set of observers serving both Directory and Locator.
type directory struct {
	list []Observer
}

func (d *directory) Observers() []Observer { return d.list }

func (d *directory) Find(name string) (Observer, bool) {
	for _, o := range d.list {
		if o.Name == name {
			return o, true
		}
	}
	return Observer{}, false
}

func (d *directory) Get(id ObserverID) (Observer, bool) {
	for _, o := range d.list {
		if o.ID == id {
			return o, true
		}
	}
	return Observer{}, false
}

// observerAt builds a survival observer standing at feet and facing +X.
func observerAt(id ObserverID, feet geom.Vec3) Observer {
	return Observer{
		ID:   id,
		Name: fmt.Sprintf("obs%d", id),
		Feet: feet,
		Eye:  feet.Add(geom.Vec3{Y: 1.62}),
		Look: geom.Vec3{X: 1},
		Mode: "survival",
	}
}

func testBounds() Bounds {
	return Bounds{
		MinDistance:     20,
		MaxDistance:     40,
		MinAltitude:     2,
		MaxAltitude:     60,
		FOVExclusionDeg: 30,
		FOVMarginDeg:    8,
		MaxLightLevel:   7,
		MaxAttempts:     12,
	}
}

func testSettings() Settings {
	return Settings{
		Enabled:         true,
		Bounds:          testBounds(),
		AloneRadius:     40,
		CooldownSeconds: []int{60, 120},
		VisibleMin:      1,
		VisibleMax:      3,
		RosterLinger:    750 * time.Millisecond,
		ExemptModes:     []string{"creative", "spectator"},
	}
}

// transitionLog collects registry transitions as "from>to" strings.
type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) hook(h Handle, from State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, from.String()+">"+h.State.String())
}

func (l *transitionLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

// sequencerFixture assembles a sequencer on a manual clock.
type sequencerFixture struct {
	clock  *clock
	timers *timer.Queue
	reg    *Registry
	seq    *Sequencer
	log    *transitionLog
}

func newSequencerFixture(tr Transport, rng Rand, settings Settings) *sequencerFixture {
	c := newClock()
	q := timer.NewQueue(c.Now)
	reg := NewRegistry(rng, c.Now)
	tl := &transitionLog{}
	reg.OnTransition(tl.hook)
	seq := NewSequencer(reg, tr, q, rng, func() Settings { return settings }, c.Now, nopLogger())
	return &sequencerFixture{clock: c, timers: q, reg: reg, seq: seq, log: tl}
}

// advance moves the clock and runs due actions.
func (f *sequencerFixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.timers.RunDue(f.clock.Now())
}

// admissible reports whether p satisfies every placement constraint for pose.
func admissible(pose Pose, p geom.Vec3, light LightSampler, b Bounds) bool {
	const eps = 1e-9
	d := p.HorizontalDist(pose.Eye)
	if d < b.MinDistance-eps || d > b.MaxDistance+eps {
		return false
	}
	if p.Y < b.MinAltitude-eps || p.Y > b.MaxAltitude+eps {
		return false
	}
	if light.LightAt(p) > b.MaxLightLevel {
		return false
	}
	bearing := p.Sub(pose.Eye).Yaw()
	return geom.AngleBetweenDeg(bearing, pose.Look.Yaw()) > b.ExclusionHalfAngle()
}
