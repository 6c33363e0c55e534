package config

import (
	"sync"
	"sync/atomic"
)

// Store holds the live configuration. Readers on any goroutine get an
// immutable snapshot; writers replace it wholesale.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
	mu   sync.Mutex // serializes Reload and Update
}

func NewStore(path string, cfg *Config) *Store {
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s
}

// Current returns the active snapshot. Callers must not modify it.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Reload re-reads the file. On error the active snapshot is kept.
func (s *Store) Reload() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	cfg.Server.Version = s.cur.Load().Server.Version
	s.cur.Store(cfg)
	return cfg, nil
}

// Update applies fn to a copy of the active snapshot and publishes it.
func (s *Store) Update(fn func(c *Config)) *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.Load().clone()
	fn(next)
	s.cur.Store(next)
	return next
}

func (c *Config) clone() *Config {
	out := *c
	out.Server.GMNames = append([]string(nil), c.Server.GMNames...)
	out.Shadow.CooldownSeconds = append([]int(nil), c.Shadow.CooldownSeconds...)
	out.Shadow.VisibleDurationRange = append([]int(nil), c.Shadow.VisibleDurationRange...)
	out.Shadow.ExemptModes = append([]string(nil), c.Shadow.ExemptModes...)
	return &out
}
