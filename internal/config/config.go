package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. SHADOWD_SHADOW_ENABLED.
const EnvPrefix = "SHADOWD_"

type Config struct {
	Server   ServerConfig   `toml:"server"   envPrefix:"SERVER_"`
	Network  NetworkConfig  `toml:"network"  envPrefix:"NETWORK_"`
	Logging  LoggingConfig  `toml:"logging"  envPrefix:"LOGGING_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DATABASE_"`
	Console  ConsoleConfig  `toml:"console"  envPrefix:"CONSOLE_"`
	Global   GlobalConfig   `toml:"global"   envPrefix:"GLOBAL_"`
	Shadow   ShadowConfig   `toml:"shadow"   envPrefix:"SHADOW_"`
	Data     DataConfig     `toml:"data"     envPrefix:"DATA_"`
}

type ServerConfig struct {
	Name      string   `toml:"name"     env:"NAME"`
	GMNames   []string `toml:"gm_names" env:"GM_NAMES" envSeparator:","` // may use "." commands in chat
	Version   string   `toml:"-"`
	StartTime int64    `toml:"-"` // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address"         env:"BIND_ADDRESS"`
	TickRate          time.Duration `toml:"tick_rate"            env:"TICK_RATE"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	PacketsPerSecond  int           `toml:"packets_per_second"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

// DatabaseConfig configures the illusion journal. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"               env:"DSN"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	JournalBuffer   int           `toml:"journal_buffer"`
}

type ConsoleConfig struct {
	BindAddress  string `toml:"bind_address"  env:"BIND_ADDRESS"`
	PasswordHash string `toml:"password_hash" env:"PASSWORD_HASH"` // bcrypt; empty disables the console
}

type GlobalConfig struct {
	Enabled bool    `toml:"enabled" env:"ENABLED"`
	MinTPS  float64 `toml:"min_tps" env:"MIN_TPS"`
}

type ShadowConfig struct {
	Enabled   bool `toml:"enabled"   env:"ENABLED"`
	Transport bool `toml:"transport" env:"TRANSPORT"` // false runs the subsystem without emitting packets

	// MinLightLevel is the darkest-allowed threshold: a spot qualifies when
	// its light level does not exceed it.
	MinLightLevel int     `toml:"min_light_level" env:"MIN_LIGHT_LEVEL"`
	DistanceMin   float64 `toml:"distance_min"`
	DistanceMax   float64 `toml:"distance_max"`
	AltitudeMin   float64 `toml:"altitude_min"`
	AltitudeMax   float64 `toml:"altitude_max"`
	FOVExclusion  float64 `toml:"fov_exclusion_deg"` // half-angle of the forward cone
	FOVMargin     float64 `toml:"fov_margin_deg"`
	MaxAttempts   int     `toml:"max_attempts"`
	AloneRadius   float64 `toml:"alone_radius" env:"ALONE_RADIUS"`

	CooldownSeconds      []int         `toml:"cooldown_seconds"       env:"COOLDOWN_SECONDS" envSeparator:","`
	VisibleDurationRange []int         `toml:"visible_duration_range"`
	RosterLinger         time.Duration `toml:"roster_linger"`
	ScanInterval         time.Duration `toml:"scan_interval" env:"SCAN_INTERVAL"`
	ExemptModes          []string      `toml:"exempt_modes"  env:"EXEMPT_MODES" envSeparator:","`
	QueueSize            int           `toml:"queue_size"`
}

// Game modes reported by clients.
const (
	ModeSurvival  = "survival"
	ModeCreative  = "creative"
	ModeSpectator = "spectator"
)

type DataConfig struct {
	LightZones string `toml:"light_zones" env:"LIGHT_ZONES"`
	ScriptsDir string `toml:"scripts_dir" env:"SCRIPTS_DIR"`
}

// Load reads path over the defaults and then applies SHADOWD_* environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// Validate rejects settings the subsystem cannot run with.
func (c *Config) Validate() error {
	s := c.Shadow
	if s.DistanceMin < 0 || s.DistanceMax < s.DistanceMin {
		return fmt.Errorf("shadow.distance_min/max: invalid range %.1f-%.1f", s.DistanceMin, s.DistanceMax)
	}
	if s.AltitudeMax < s.AltitudeMin {
		return fmt.Errorf("shadow.altitude_min/max: invalid range %.1f-%.1f", s.AltitudeMin, s.AltitudeMax)
	}
	if s.MinLightLevel < 0 || s.MinLightLevel > 15 {
		return fmt.Errorf("shadow.min_light_level: %d out of 0-15", s.MinLightLevel)
	}
	if r := s.VisibleDurationRange; len(r) != 2 || r[0] <= 0 || r[1] < r[0] {
		return fmt.Errorf("shadow.visible_duration_range: want [min, max] seconds, got %v", r)
	}
	for _, sec := range s.CooldownSeconds {
		if sec <= 0 {
			return fmt.Errorf("shadow.cooldown_seconds: non-positive entry %d", sec)
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "shadowd",
		},
		Network: NetworkConfig{
			BindAddress:       "0.0.0.0:7101",
			TickRate:          50 * time.Millisecond,
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 32,
			PacketsPerSecond:  60,
			WriteTimeout:      10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
			JournalBuffer:   256,
		},
		Console: ConsoleConfig{
			BindAddress: "127.0.0.1:7102",
		},
		Global: GlobalConfig{
			Enabled: true,
			MinTPS:  18,
		},
		Shadow: ShadowConfig{
			Enabled:              true,
			Transport:            true,
			MinLightLevel:        7,
			DistanceMin:          20,
			DistanceMax:          40,
			AltitudeMin:          2,
			AltitudeMax:          60,
			FOVExclusion:         30,
			FOVMargin:            8,
			MaxAttempts:          12,
			AloneRadius:          40,
			CooldownSeconds:      []int{300, 420, 600, 900},
			VisibleDurationRange: []int{1, 3},
			RosterLinger:         750 * time.Millisecond,
			ScanInterval:         15 * time.Second,
			ExemptModes:          []string{ModeCreative, ModeSpectator},
			QueueSize:            64,
		},
		Data: DataConfig{
			LightZones: "data/yaml/light_zones.yaml",
			ScriptsDir: "scripts",
		},
	}
}
