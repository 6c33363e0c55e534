package handler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shadowd/server/internal/geom"
	"github.com/shadowd/server/internal/illusion"
	"github.com/shadowd/server/internal/world"
)

// PacketTransport delivers illusion messages to a single observer's session.
// Messages are buffered on the session and go out with the tick's flush.
// Game loop only.
type PacketTransport struct {
	world *world.State
}

func NewPacketTransport(ws *world.State) *PacketTransport {
	return &PacketTransport{world: ws}
}

var _ illusion.Transport = (*PacketTransport)(nil)

// SupportsRoster is always true: logins without a player list are refused.
func (t *PacketTransport) SupportsRoster() bool { return true }

func (t *PacketTransport) target(to illusion.ObserverID) (*world.PlayerInfo, error) {
	p := t.world.GetByID(int32(to))
	if p == nil || p.Session == nil || p.Session.IsClosed() {
		return nil, fmt.Errorf("observer %d: %w", to, illusion.ErrObserverGone)
	}
	return p, nil
}

func (t *PacketTransport) send(to illusion.ObserverID, data []byte) error {
	p, err := t.target(to)
	if err != nil {
		return err
	}
	p.Session.Send(data)
	return nil
}

func (t *PacketTransport) PublishIdentity(to illusion.ObserverID, identity uuid.UUID, name string) error {
	return t.send(to, BuildRosterAdd(identity, name))
}

// SpawnEntity spawns the apparition turned toward the observer's eyes.
func (t *PacketTransport) SpawnEntity(to illusion.ObserverID, entityID int32, identity uuid.UUID, at geom.Vec3) error {
	p, err := t.target(to)
	if err != nil {
		return err
	}
	yaw := geom.AngleByte(p.Eye().Sub(at).Yaw())
	p.Session.Send(BuildSpawnPlayer(entityID, identity, at, yaw, 0))
	return nil
}

func (t *PacketTransport) SendMetadata(to illusion.ObserverID, entityID int32) error {
	return t.send(to, BuildEntityMetadata(entityID))
}

func (t *PacketTransport) SendHeadRotation(to illusion.ObserverID, entityID int32, yaw byte) error {
	return t.send(to, BuildHeadRotation(entityID, yaw))
}

func (t *PacketTransport) RetractIdentity(to illusion.ObserverID, identity uuid.UUID) error {
	return t.send(to, BuildRosterRemove(identity))
}

func (t *PacketTransport) DestroyEntity(to illusion.ObserverID, entityID int32) error {
	return t.send(to, BuildDestroyEntities(entityID))
}
