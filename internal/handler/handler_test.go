package handler

import (
	"encoding/binary"
	gonet "net"
	"testing"

	"github.com/shadowd/server/internal/command"
	"github.com/shadowd/server/internal/config"
	"github.com/shadowd/server/internal/core/event"
	"github.com/shadowd/server/internal/illusion"
	"github.com/shadowd/server/internal/net"
	"github.com/shadowd/server/internal/net/packet"
	"github.com/shadowd/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubIllusions struct {
	requested []string
}

func (s *stubIllusions) RequestIllusion(name string) (illusion.Handle, error) {
	s.requested = append(s.requested, name)
	return illusion.Handle{}, nil
}
func (s *stubIllusions) RevealIllusion(string) (bool, error) { return false, nil }
func (s *stubIllusions) Active() int                         { return 0 }
func (s *stubIllusions) Degraded() bool                      { return false }

type stubHealth struct{}

func (stubHealth) TPS() float64  { return 20 }
func (stubHealth) Healthy() bool { return true }

func newDeps(t *testing.T) (*Deps, *stubIllusions) {
	t.Helper()
	store := config.NewStore("", &config.Config{
		Server: config.ServerConfig{Name: "shadowd", GMNames: []string{"Admin"}},
	})
	ws := world.NewState()
	ill := &stubIllusions{}
	return &Deps{
		Config: store,
		Log:    zap.NewNop(),
		World:  ws,
		Bus:    event.NewBus(),
		Commands: command.NewDispatcher(command.Deps{
			Illusions: ill,
			Health:    stubHealth{},
			Store:     store,
			Reload:    func() error { return nil },
			Observers: ws.PlayerCount,
			Log:       zap.NewNop(),
		}),
	}, ill
}

// newSession returns a session whose writer is never started, so flushed
// packets stay in OutQueue for inspection.
func newSession(t *testing.T, id uint64) *net.Session {
	t.Helper()
	srv, cli := gonet.Pipe()
	sess := net.NewSession(srv, id, net.SessionOptions{InQueue: 8, OutQueue: 64}, zap.NewNop())
	t.Cleanup(func() {
		sess.Close()
		cli.Close()
	})
	return sess
}

// sent flushes sess and returns every packet queued so far.
func sent(sess *net.Session) [][]byte {
	sess.FlushOutput()
	var out [][]byte
	for {
		select {
		case p := <-sess.OutQueue:
			out = append(out, p)
		default:
			return out
		}
	}
}

func opcodes(pkts [][]byte) []byte {
	ops := make([]byte, 0, len(pkts))
	for _, p := range pkts {
		ops = append(ops, p[0])
	}
	return ops
}

// leadingID decodes the int32 that follows the opcode and returns a reader
// positioned after it. NewReader skips byte 0, so slicing at 4 resumes at 5.
func leadingID(pkt []byte) (int32, *packet.Reader) {
	return int32(binary.LittleEndian.Uint32(pkt[1:5])), packet.NewReader(pkt[4:])
}

func loginPacket(name string, roster byte, mode string) *packet.Reader {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_LOGIN)
	w.WriteS(name)
	w.WriteC(roster)
	w.WriteS(mode)
	return packet.NewReader(w.Bytes())
}

func login(t *testing.T, deps *Deps, id uint64, name string) (*net.Session, *world.PlayerInfo) {
	t.Helper()
	sess := newSession(t, id)
	HandleLogin(sess, loginPacket(name, 1, "survival"), deps)
	p := deps.World.GetBySession(id)
	require.NotNil(t, p)
	sent(sess)
	return sess, p
}

func TestLoginRegistersObserver(t *testing.T) {
	deps, _ := newDeps(t)
	sess := newSession(t, 1)

	HandleLogin(sess, loginPacket("Alice", 1, "Creative"), deps)

	p := deps.World.GetByName("alice")
	require.NotNil(t, p)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, config.ModeCreative, p.Mode)
	assert.False(t, p.GM)
	assert.Equal(t, packet.StateInWorld, sess.State())
	assert.Equal(t, "Alice", sess.Name)

	pkts := sent(sess)
	require.Len(t, pkts, 1)
	assert.Equal(t, byte(packet.S_OPCODE_LOGIN_OK), pkts[0][0])
	id, r := leadingID(pkts[0])
	assert.Equal(t, p.ID, id)
	assert.Equal(t, "Alice", r.ReadS())
	assert.Equal(t, 1, deps.Bus.Pending())
}

func TestLoginMarksConfiguredGM(t *testing.T) {
	deps, _ := newDeps(t)
	_, p := login(t, deps, 1, "admin")
	assert.True(t, p.GM)
}

func TestLoginRefusals(t *testing.T) {
	tests := []struct {
		name   string
		login  string
		roster byte
	}{
		{"empty name", "", 1},
		{"long name", "abcdefghijklmnopq", 1},
		{"space in name", "a b", 1},
		{"no roster", "Bob", 0},
		{"duplicate", "Taken", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := newDeps(t)
			login(t, deps, 99, "Taken")

			sess := newSession(t, 1)
			HandleLogin(sess, loginPacket(tt.login, tt.roster, ""), deps)

			assert.True(t, sess.IsClosed())
			assert.Nil(t, deps.World.GetBySession(1))
			assert.Equal(t, []byte{packet.S_OPCODE_DISCONNECT}, opcodes(sent(sess)))
		})
	}
}

func movePacket(x, y, z, yaw, pitch float64) *packet.Reader {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_MOVE)
	for _, v := range []float64{x, y, z, yaw, pitch} {
		w.WriteF(v)
	}
	return packet.NewReader(w.Bytes())
}

func TestMoveUpdatesPose(t *testing.T) {
	deps, _ := newDeps(t)
	sess, p := login(t, deps, 1, "Alice")

	HandleMove(sess, movePacket(10, 64, -5, -90, 120), deps)
	assert.Equal(t, 10.0, p.Pos.X)
	assert.Equal(t, 64.0, p.Pos.Y)
	assert.Equal(t, -5.0, p.Pos.Z)
	assert.Equal(t, 270.0, p.Yaw)
	assert.Equal(t, 90.0, p.Pitch)
}

func TestMoveRejectsInvalidValues(t *testing.T) {
	deps, _ := newDeps(t)
	sess, p := login(t, deps, 1, "Alice")
	HandleMove(sess, movePacket(1, 2, 3, 0, 0), deps)

	zero := 0.0
	HandleMove(sess, movePacket(zero/zero, 2, 3, 0, 0), deps)
	HandleMove(sess, movePacket(4e7, 2, 3, 0, 0), deps)
	HandleMove(sess, movePacket(5, 4e7, 3, 0, 0), deps)
	HandleMove(sess, movePacket(5, -4e7, 3, 0, 0), deps)
	assert.Equal(t, 1.0, p.Pos.X)
	assert.Equal(t, 2.0, p.Pos.Y)
}

func TestMoveDropsTruncatedPacket(t *testing.T) {
	deps, _ := newDeps(t)
	sess, p := login(t, deps, 1, "Alice")
	HandleMove(sess, movePacket(1, 2, 3, 0, 0), deps)

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_MOVE)
	w.WriteF(9)
	w.WriteF(9)
	w.WriteF(9)
	HandleMove(sess, packet.NewReader(w.Bytes()), deps)
	assert.Equal(t, 1.0, p.Pos.X)
	assert.Equal(t, 3.0, p.Pos.Z)
}

func TestGameModeChange(t *testing.T) {
	deps, _ := newDeps(t)
	sess, p := login(t, deps, 1, "Alice")

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_GAMEMODE)
	w.WriteS("SPECTATOR")
	HandleGameMode(sess, packet.NewReader(w.Bytes()), deps)
	assert.Equal(t, config.ModeSpectator, p.Mode)
	assert.Equal(t, config.ModeSpectator, p.Observer().Mode)
}

func chatPacket(text string) *packet.Reader {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_CHAT)
	w.WriteS(text)
	return packet.NewReader(w.Bytes())
}

func TestChatBroadcasts(t *testing.T) {
	deps, _ := newDeps(t)
	a, _ := login(t, deps, 1, "Alice")
	b, _ := login(t, deps, 2, "Bob")

	HandleChat(a, chatPacket("anyone there?"), deps)

	for _, sess := range []*net.Session{a, b} {
		pkts := sent(sess)
		require.Len(t, pkts, 1)
		r := packet.NewReader(pkts[0])
		assert.Equal(t, byte(packet.S_OPCODE_SYSTEM_MESSAGE), r.Opcode())
		assert.Equal(t, "<Alice> anyone there?", r.ReadS())
	}
}

func TestChatCommandsRequireGM(t *testing.T) {
	deps, ill := newDeps(t)
	alice, _ := login(t, deps, 1, "Alice")
	admin, _ := login(t, deps, 2, "Admin")

	HandleChat(alice, chatPacket(".shadow start Admin"), deps)
	assert.Empty(t, ill.requested)
	assert.Len(t, sent(alice), 1)
	assert.Empty(t, sent(admin), "commands are never broadcast")

	HandleChat(admin, chatPacket(".shadow start Alice"), deps)
	assert.Equal(t, []string{"Alice"}, ill.requested)
	pkts := sent(admin)
	require.Len(t, pkts, 1)
	assert.Equal(t, "Shadow spawn requested for Alice", packet.NewReader(pkts[0]).ReadS())
	assert.Empty(t, sent(alice))
}

func TestQuitClosesSession(t *testing.T) {
	deps, _ := newDeps(t)
	sess, _ := login(t, deps, 1, "Alice")
	HandleQuit(sess, nil, deps)
	assert.True(t, sess.IsClosed())
}

func TestRegisterAllGatesOnState(t *testing.T) {
	deps, _ := newDeps(t)
	reg := packet.NewRegistry(zap.NewNop())
	RegisterAll(reg, deps)
	assert.Equal(t, 5, reg.Len())

	sess := newSession(t, 1)
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_MOVE)
	assert.Error(t, reg.Dispatch(sess, packet.StateHandshake, w.Bytes()))

	w = packet.NewWriterWithOpcode(packet.C_OPCODE_LOGIN)
	w.WriteS("Alice")
	w.WriteC(1)
	w.WriteS("survival")
	require.NoError(t, reg.Dispatch(sess, packet.StateHandshake, w.Bytes()))
	assert.NotNil(t, deps.World.GetByName("Alice"))
}
