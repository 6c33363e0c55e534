package system

import "time"

// Phase orders systems within one game loop tick.
type Phase int

const (
	PhaseInput      Phase = iota // drain packet queues, join/leave
	PhasePreUpdate               // dispatch last tick's events
	PhaseUpdate                  // illusion work and delayed actions
	PhasePostUpdate              // publish the observer snapshot
	PhaseOutput                  // flush buffered packets
	PhasePersist                 // hand journal entries to the writer
	PhaseCleanup                 // tick-rate sampling
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one step of the game loop.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
