package illusion

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service wires the subsystem together and exposes it to the game loop and
// to operator commands.
type Service struct {
	reg      *Registry
	seq      *Sequencer
	scan     *Scanner
	timers   interface{ RunDue(time.Time) int }
	work     chan Work
	locator  Locator
	light    LightSampler
	exempt   ExemptRule
	settings func() Settings
	rng      Rand // game loop source
	now      func() time.Time
	log      *zap.Logger
}

// ServiceDeps groups everything NewService needs.
type ServiceDeps struct {
	Directory Directory
	Locator   Locator
	Light     LightSampler
	Health    Health
	Exempt    ExemptRule
	Transport Transport // nil selects logical-only mode
	Timers    interface {
		Scheduler
		RunDue(time.Time) int
	}
	Settings  func() Settings
	ScanRand  Rand // owned by the scan goroutine
	LoopRand  Rand // owned by the game loop
	QueueSize int
	Now       func() time.Time
	Log       *zap.Logger
}

func NewService(d ServiceDeps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 64
	}
	work := make(chan Work, d.QueueSize)
	reg := NewRegistry(d.LoopRand, d.Now)
	seq := NewSequencer(reg, d.Transport, d.Timers, d.LoopRand, d.Settings, d.Now, d.Log)
	scan := NewScanner(ScannerDeps{
		Directory: d.Directory,
		Light:     d.Light,
		Health:    d.Health,
		Registry:  reg,
		Settings:  d.Settings,
		Exempt:    d.Exempt,
		Rand:      d.ScanRand,
		Out:       work,
		Log:       d.Log,
	})
	return &Service{
		reg:      reg,
		seq:      seq,
		scan:     scan,
		timers:   d.Timers,
		work:     work,
		locator:  d.Locator,
		light:    d.Light,
		exempt:   d.Exempt,
		settings: d.Settings,
		rng:      d.LoopRand,
		now:      d.Now,
		log:      d.Log,
	}
}

func (s *Service) Registry() *Registry   { return s.reg }
func (s *Service) Scanner() *Scanner     { return s.scan }
func (s *Service) Sequencer() *Sequencer { return s.seq }

// Active returns the number of live sessions.
func (s *Service) Active() int { return s.reg.Len() }

// Degraded reports whether the service runs without a transport.
func (s *Service) Degraded() bool { return s.seq.Degraded() }

// Drain runs handed-off work and due delayed actions. Called once per tick on
// the game loop.
func (s *Service) Drain(now time.Time) {
	for {
		select {
		case w := <-s.work:
			s.handle(w)
		default:
			s.timers.RunDue(now)
			return
		}
	}
}

func (s *Service) handle(w Work) {
	obs, ok := s.locator.Get(w.Observer)
	if !ok {
		s.log.Debug("幻影目標已離線", zap.Int32("observer", int32(w.Observer)))
		return
	}
	if _, err := s.seq.OpenIllusion(obs, w.Point); err != nil {
		s.logOpenError(obs, err)
	}
}

func (s *Service) logOpenError(obs Observer, err error) {
	if errors.Is(err, ErrAlreadyActive) {
		s.log.Error("幻影重複開啟", zap.String("name", obs.Name), zap.Error(err))
		return
	}
	s.log.Warn("幻影開啟失敗", zap.String("name", obs.Name), zap.Error(err))
}

// RequestIllusion forces an apparition for the named observer using the live
// pose. Cooldown, aloneness and health are not consulted; placement
// constraints still apply. Game loop only.
func (s *Service) RequestIllusion(name string) (Handle, error) {
	obs, ok := s.locator.Find(name)
	if !ok {
		s.log.Info("幻影請求: 找不到玩家", zap.String("name", name))
		return Handle{}, fmt.Errorf("request %q: %w", name, ErrUnknownObserver)
	}
	cfg := s.settings()
	if cfg.exemptMode(obs.Mode) || (s.exempt != nil && s.exempt.IsExempt(obs)) {
		return Handle{}, fmt.Errorf("request %q: %w", name, ErrExempt)
	}
	p, found := Solve(obs.Pose(), s.light, cfg.Bounds, s.rng)
	if !found {
		s.log.Debug("幻影請求: 找不到位置", zap.String("name", name))
		return Handle{}, fmt.Errorf("request %q: %w", name, ErrNoPlacement)
	}
	h, err := s.seq.OpenIllusion(obs, p)
	if err != nil {
		s.logOpenError(obs, err)
		return Handle{}, err
	}
	s.scan.MarkIllusion(obs.ID, s.now())
	return h, nil
}

// RevealIllusion removes the named observer's apparition immediately. It
// reports whether one was showing. Game loop only.
func (s *Service) RevealIllusion(name string) (bool, error) {
	obs, ok := s.locator.Find(name)
	if !ok {
		s.log.Info("幻影揭露: 找不到玩家", zap.String("name", name))
		return false, fmt.Errorf("reveal %q: %w", name, ErrUnknownObserver)
	}
	return s.seq.CloseIllusion(obs.ID), nil
}

// ObserverLeft drops all state kept for a disconnected observer.
func (s *Service) ObserverLeft(id ObserverID) {
	s.seq.Forget(id)
	s.scan.Forget(id)
}

// Shutdown closes every live illusion. Returns the number closed.
func (s *Service) Shutdown() int {
	n := 0
	for _, h := range s.reg.Active() {
		if s.seq.CloseIllusion(h.Observer) {
			n++
		}
	}
	return n
}
