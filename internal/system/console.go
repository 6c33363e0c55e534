package system

import (
	"time"

	"github.com/shadowd/server/internal/console"
	coresys "github.com/shadowd/server/internal/core/system"
)

// Executor runs one operator command line.
type Executor interface {
	Execute(who, line string) []string
}

// ConsoleSystem runs console commands on the game loop, where the illusion
// service may be driven. Phase 0 (Input).
type ConsoleSystem struct {
	requests <-chan console.Request
	exec     Executor
}

func NewConsoleSystem(requests <-chan console.Request, exec Executor) *ConsoleSystem {
	return &ConsoleSystem{requests: requests, exec: exec}
}

func (s *ConsoleSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ConsoleSystem) Update(_ time.Duration) {
	for {
		select {
		case req := <-s.requests:
			lines := s.exec.Execute("console@"+req.Operator, req.Line)
			select {
			case req.Reply <- lines:
			default:
			}
		default:
			return
		}
	}
}
