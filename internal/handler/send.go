package handler

import (
	"github.com/google/uuid"
	"github.com/shadowd/server/internal/geom"
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
)

func sendLoginOK(sess *net.Session, id int32, name string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LOGIN_OK)
	w.WriteD(id)
	w.WriteS(name)
	sess.Send(w.Bytes())
}

func sendSystemMessage(sess *net.Session, text string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_SYSTEM_MESSAGE)
	w.WriteS(text)
	sess.Send(w.Bytes())
}

func sendDisconnect(sess *net.Session, reason string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DISCONNECT)
	w.WriteS(reason)
	sess.Send(w.Bytes())
}

// BuildRosterAdd lists identity under name in the client's player list.
func BuildRosterAdd(identity uuid.UUID, name string) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ROSTER_ADD)
	w.WriteU(identity)
	w.WriteS(name)
	return w.Bytes()
}

func BuildRosterRemove(identity uuid.UUID) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ROSTER_REMOVE)
	w.WriteU(identity)
	return w.Bytes()
}

// BuildSpawnPlayer spawns a player-shaped entity facing yaw.
func BuildSpawnPlayer(entityID int32, identity uuid.UUID, at geom.Vec3, yaw, pitch byte) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_SPAWN_PLAYER)
	w.WriteD(entityID)
	w.WriteU(identity)
	w.WriteF(at.X)
	w.WriteF(at.Y)
	w.WriteF(at.Z)
	w.WriteC(yaw)
	w.WriteC(pitch)
	return w.Bytes()
}

// BuildEntityMetadata sends an empty metadata list.
func BuildEntityMetadata(entityID int32) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ENTITY_METADATA)
	w.WriteD(entityID)
	w.WriteC(packet.MetadataEnd)
	return w.Bytes()
}

func BuildHeadRotation(entityID int32, yaw byte) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_HEAD_ROTATION)
	w.WriteD(entityID)
	w.WriteC(yaw)
	return w.Bytes()
}

func BuildDestroyEntities(ids ...int32) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DESTROY_ENTITIES)
	w.WriteH(uint16(len(ids)))
	for _, id := range ids {
		w.WriteD(id)
	}
	return w.Bytes()
}
