package event

import (
	"time"

	"github.com/google/uuid"
)

type ObserverJoined struct {
	ObserverID int32
	SessionID  uint64
	Name       string
}

type ObserverLeft struct {
	ObserverID int32
	SessionID  uint64
	Name       string
}

// IllusionOpened fires once the apparition is visible to its observer.
type IllusionOpened struct {
	ObserverID   int32
	ObserverName string
	Identity     uuid.UUID
	EntityID     int32
	At           time.Time
}

// IllusionClosed fires when a session record is removed. Aborted is set when
// the session never completed its closing sequence (send failure, observer
// left, shutdown of a half-open session).
type IllusionClosed struct {
	ObserverID   int32
	ObserverName string
	Identity     uuid.UUID
	EntityID     int32
	At           time.Time
	Aborted      bool
}
