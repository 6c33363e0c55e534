package data

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/shadowd/server/internal/geom"
	"gopkg.in/yaml.v3"
)

// MaxLight is the brightest level a sample can report.
const MaxLight = 15

type point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// LightZone is an axis-aligned box with a fixed light level.
type LightZone struct {
	Name  string `yaml:"name"`
	Min   point  `yaml:"min"`
	Max   point  `yaml:"max"`
	Level int    `yaml:"level"`
}

func (z *LightZone) contains(p geom.Vec3) bool {
	return p.X >= z.Min.X && p.X <= z.Max.X &&
		p.Y >= z.Min.Y && p.Y <= z.Max.Y &&
		p.Z >= z.Min.Z && p.Z <= z.Max.Z
}

type lightFile struct {
	Ambient   int         `yaml:"ambient"`
	SkyLight  int         `yaml:"sky_light"`  // at or above SkyHeight
	SkyHeight float64     `yaml:"sky_height"` // 0 disables sky light
	Zones     []LightZone `yaml:"zones"`
}

// LightTable samples ambient light from light_zones.yaml. Safe for
// concurrent use; Reload swaps the whole table.
type LightTable struct {
	path string
	cur  atomic.Pointer[lightFile]
}

// LoadLightTable loads light_zones.yaml.
func LoadLightTable(path string) (*LightTable, error) {
	t := &LightTable{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the file; the old table stays active on error.
func (t *LightTable) Reload() error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read light zones: %w", err)
	}
	f, err := parseLightFile(raw)
	if err != nil {
		return err
	}
	t.cur.Store(f)
	return nil
}

func parseLightFile(raw []byte) (*lightFile, error) {
	var f lightFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse light zones: %w", err)
	}
	f.Ambient = clampLevel(f.Ambient)
	f.SkyLight = clampLevel(f.SkyLight)
	for i := range f.Zones {
		z := &f.Zones[i]
		if z.Max.X < z.Min.X || z.Max.Y < z.Min.Y || z.Max.Z < z.Min.Z {
			return nil, fmt.Errorf("light zone %q: max below min", z.Name)
		}
		z.Level = clampLevel(z.Level)
	}
	return &f, nil
}

func clampLevel(l int) int {
	if l < 0 {
		return 0
	}
	if l > MaxLight {
		return MaxLight
	}
	return l
}

// LightAt returns the level of the last zone listed that contains p. Outside
// every zone it is the ambient level, raised to the sky light at or above
// the sky height.
func (t *LightTable) LightAt(p geom.Vec3) int {
	f := t.cur.Load()
	for i := len(f.Zones) - 1; i >= 0; i-- {
		if z := &f.Zones[i]; z.contains(p) {
			return z.Level
		}
	}
	if f.SkyHeight > 0 && p.Y >= f.SkyHeight && f.SkyLight > f.Ambient {
		return f.SkyLight
	}
	return f.Ambient
}

// Count returns the number of zones loaded.
func (t *LightTable) Count() int {
	return len(t.cur.Load().Zones)
}
