package illusion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shadowd/server/internal/geom"
	"go.uber.org/zap"
)

// DefaultScanInterval is the period of the background scan.
const DefaultScanInterval = 15 * time.Second

// Scanner periodically walks every connected observer off the game loop and
// hands "open an illusion for X at P" to the game loop. It never emits
// packets and never mutates sessions; it only reads the Registry.
type Scanner struct {
	dir      Directory
	light    LightSampler
	health   Health
	reg      *Registry
	settings func() Settings
	exempt   ExemptRule // optional
	out      chan<- Work
	log      *zap.Logger

	mu        sync.Mutex // guards cooldowns and rng (MarkIllusion runs on the game loop)
	cooldowns map[ObserverID]cooldown
	rng       Rand
}

// ScannerDeps groups the collaborators of a Scanner.
type ScannerDeps struct {
	Directory Directory
	Light     LightSampler
	Health    Health
	Registry  *Registry
	Settings  func() Settings
	Exempt    ExemptRule
	Rand      Rand
	Out       chan<- Work
	Log       *zap.Logger
}

func NewScanner(d ScannerDeps) *Scanner {
	return &Scanner{
		dir:       d.Directory,
		light:     d.Light,
		health:    d.Health,
		reg:       d.Registry,
		settings:  d.Settings,
		exempt:    d.Exempt,
		out:       d.Out,
		log:       d.Log,
		cooldowns: make(map[ObserverID]cooldown),
		rng:       d.Rand,
	}
}

// Run ticks until ctx is done. interval is re-read after every tick so a
// config reload takes effect on the next period.
func (s *Scanner) Run(ctx context.Context, interval func() time.Duration) error {
	for {
		d := interval()
		if d <= 0 {
			d = DefaultScanInterval
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case now := <-t.C:
			s.Tick(now)
		}
	}
}

// Tick evaluates the current observer snapshot and hands off the results.
// Returns the number of work units handed off.
func (s *Scanner) Tick(now time.Time) int {
	handed := 0
	for _, w := range s.Evaluate(now, s.dir.Observers()) {
		select {
		case s.out <- w:
			handed++
		default:
			s.log.Debug("幻影工作佇列已滿，略過", zap.Int32("observer", int32(w.Observer)))
		}
	}
	return handed
}

// Evaluate decides, for each observer, whether an apparition should open now
// and where. Accepted observers have their cooldown recorded immediately.
func (s *Scanner) Evaluate(now time.Time, observers []Observer) []Work {
	cfg := s.settings()
	if !cfg.Enabled {
		return nil
	}
	if s.health != nil && !s.health.Healthy() {
		s.log.Debug("伺服器負載過高，略過幻影掃描")
		return nil
	}

	var out []Work
	for i := range observers {
		w, ok, err := s.evaluateOne(now, cfg, observers, i)
		if err != nil {
			s.log.Warn("幻影掃描錯誤", zap.Int32("observer", int32(observers[i].ID)), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, w)
		}
	}
	return out
}

func (s *Scanner) evaluateOne(now time.Time, cfg Settings, all []Observer, i int) (w Work, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			ok = false
		}
	}()

	o := all[i]
	id := zap.Int32("observer", int32(o.ID))
	if cfg.exemptMode(o.Mode) || (s.exempt != nil && s.exempt.IsExempt(o)) {
		return Work{}, false, nil
	}
	if lvl := s.light.LightAt(o.Feet); lvl > cfg.Bounds.MaxLightLevel {
		return Work{}, false, nil
	}
	if !s.cooldownElapsed(o.ID, now) {
		s.log.Debug("幻影冷卻中", id)
		return Work{}, false, nil
	}
	if _, active := s.reg.Lookup(o.ID); active {
		return Work{}, false, nil
	}
	if !alone(all, i, cfg.AloneRadius) {
		s.log.Debug("附近有其他玩家，略過幻影", id)
		return Work{}, false, nil
	}

	p, found := s.solve(o.Pose(), cfg.Bounds)
	if !found {
		s.log.Debug("找不到幻影位置", id)
		return Work{}, false, nil
	}
	s.MarkIllusion(o.ID, now)
	return Work{Observer: o.ID, Point: p, Issued: now}, true, nil
}

func (s *Scanner) solve(pose Pose, b Bounds) (geom.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Solve(pose, s.light, b, s.rng)
}

// alone reports whether no other observer is strictly within radius of all[i].
func alone(all []Observer, i int, radius float64) bool {
	r2 := radius * radius
	for j := range all {
		if j == i {
			continue
		}
		if all[j].Feet.DistSq(all[i].Feet) < r2 {
			return false
		}
	}
	return true
}

func (s *Scanner) cooldownElapsed(id ObserverID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cooldowns[id]
	return !ok || c.elapsed(now)
}

// MarkIllusion records an illusion for id at now and samples its next wait.
func (s *Scanner) MarkIllusion(id ObserverID, now time.Time) {
	cfg := s.settings()
	s.mu.Lock()
	s.cooldowns[id] = cooldown{last: now, wait: SampleCooldown(cfg.CooldownSeconds, s.rng)}
	s.mu.Unlock()
}

// Cooldown returns the observer's last illusion time and current wait.
func (s *Scanner) Cooldown(id ObserverID) (last time.Time, wait time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cooldowns[id]
	return c.last, c.wait, ok
}

// Forget drops the cooldown of an observer that left.
func (s *Scanner) Forget(id ObserverID) {
	s.mu.Lock()
	delete(s.cooldowns, id)
	s.mu.Unlock()
}
