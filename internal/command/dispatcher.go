// Package command implements the operator commands shared by the console
// and in-game GM chat.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shadowd/server/internal/config"
	"github.com/shadowd/server/internal/illusion"
	"go.uber.org/zap"
)

// Illusions is the part of the illusion service commands drive.
type Illusions interface {
	RequestIllusion(name string) (illusion.Handle, error)
	RevealIllusion(name string) (bool, error)
	Active() int
	Degraded() bool
}

// Health reports the smoothed tick rate.
type Health interface {
	TPS() float64
	Healthy() bool
}

// Dispatcher parses and runs operator commands. Game loop only: shadow
// commands open and close illusions directly.
type Dispatcher struct {
	illusions Illusions
	health    Health
	store     *config.Store
	reload    func() error // config, light zones and scripts
	observers func() int
	log       *zap.Logger
}

// Deps groups the collaborators of a Dispatcher.
type Deps struct {
	Illusions Illusions
	Health    Health
	Store     *config.Store
	Reload    func() error
	Observers func() int
	Log       *zap.Logger
}

func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		illusions: d.Illusions,
		health:    d.Health,
		store:     d.Store,
		reload:    d.Reload,
		observers: d.Observers,
		log:       d.Log,
	}
}

// Execute runs one command line and returns the reply lines. who names the
// operator for the audit log.
func (d *Dispatcher) Execute(who, line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]
	d.log.Info("執行指令", zap.String("operator", who), zap.String("line", line))

	switch name {
	case "shadow":
		return d.shadow(args)
	case "paranoia":
		return d.paranoia(args)
	case "status":
		return d.status()
	case "help":
		return helpLines
	}
	return []string{"Unknown command: " + name + " (try help)"}
}

var helpLines = []string{
	"shadow start|once <player>  show an apparition now",
	"shadow stop|reveal <player> remove a showing apparition",
	"shadow reload               reload configuration",
	"paranoia [toggle|reload]    version, global switch, reload",
	"status                      tick rate and illusion counts",
}

func (d *Dispatcher) shadow(args []string) []string {
	if len(args) == 0 {
		return []string{"Usage: shadow start|once|stop|reveal <player> | shadow reload"}
	}
	sub := strings.ToLower(args[0])
	switch sub {
	case "start", "once":
		if len(args) < 2 {
			return []string{"Usage: shadow start|once <player>"}
		}
		return []string{d.request(args[1])}
	case "stop", "reveal":
		if len(args) < 2 {
			return []string{"Usage: shadow " + sub + " <player>"}
		}
		return []string{d.reveal(sub, args[1])}
	case "reload":
		return []string{d.doReload()}
	}
	return []string{"Unknown shadow subcommand: " + sub}
}

func (d *Dispatcher) request(target string) string {
	_, err := d.illusions.RequestIllusion(target)
	switch {
	case err == nil:
		return "Shadow spawn requested for " + target
	case errors.Is(err, illusion.ErrUnknownObserver):
		return "Player not found"
	case errors.Is(err, illusion.ErrAlreadyActive):
		return "A shadow is already showing for " + target
	case errors.Is(err, illusion.ErrExempt):
		return target + " is exempt from shadows"
	case errors.Is(err, illusion.ErrNoPlacement):
		return "No dark spot found near " + target + ", try again"
	}
	return "Shadow failed: " + err.Error()
}

func (d *Dispatcher) reveal(sub, target string) string {
	shown, err := d.illusions.RevealIllusion(target)
	if errors.Is(err, illusion.ErrUnknownObserver) {
		return "Player not found"
	}
	if err != nil {
		return "Command error: " + err.Error()
	}
	if !shown {
		return "No shadow showing for " + target
	}
	if sub == "reveal" {
		return "Shadow revealed for " + target
	}
	return "Shadow removed for " + target
}

func (d *Dispatcher) doReload() string {
	if err := d.reload(); err != nil {
		d.log.Warn("重新載入失敗", zap.Error(err))
		return "Reload failed: " + err.Error()
	}
	return "Config reloaded."
}

func (d *Dispatcher) paranoia(args []string) []string {
	if len(args) == 0 {
		cfg := d.store.Current()
		return []string{fmt.Sprintf("%s v%s", cfg.Server.Name, cfg.Server.Version)}
	}
	switch strings.ToLower(args[0]) {
	case "toggle":
		next := d.store.Update(func(c *config.Config) {
			c.Global.Enabled = !c.Global.Enabled
		})
		return []string{fmt.Sprintf("Global enabled=%t", next.Global.Enabled)}
	case "reload":
		return []string{d.doReload()}
	}
	return []string{"Usage: paranoia [toggle|reload]"}
}

func (d *Dispatcher) status() []string {
	cfg := d.store.Current()
	mode := "packets"
	if d.illusions.Degraded() {
		mode = "logical-only"
	}
	return []string{
		fmt.Sprintf("TPS %.1f (min %.1f, healthy=%t)", d.health.TPS(), cfg.Global.MinTPS, d.health.Healthy()),
		fmt.Sprintf("Observers %d, illusions showing %d", d.observers(), d.illusions.Active()),
		fmt.Sprintf("Global enabled=%t, shadow enabled=%t, mode=%s", cfg.Global.Enabled, cfg.Shadow.Enabled, mode),
	}
}
