package packet

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReaderFields(t *testing.T) {
	id := uuid.MustParse("0b6f2d1e-93a4-4b1c-8f0e-7c5d2a9e4f13")
	w := NewWriterWithOpcode(C_OPCODE_LOGIN)
	w.WriteS("影子")
	w.WriteC(1)
	w.WriteF(-12.75)
	w.WriteU(id)
	data := w.Bytes()
	assert.Zero(t, len(data)%4, "padded to a 4-byte boundary")

	r := NewReader(data)
	assert.Equal(t, byte(C_OPCODE_LOGIN), r.Opcode())
	assert.Equal(t, "影子", r.ReadS())
	assert.Equal(t, byte(1), r.ReadC())
	assert.Equal(t, -12.75, r.ReadF())
	assert.Equal(t, id, r.ReadU())
}

func TestWriterIntegersLittleEndian(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_DESTROY_ENTITIES)
	w.WriteH(513)
	w.WriteD(-7)
	data := w.Bytes()
	require.Len(t, data, 8)
	assert.Equal(t, uint16(513), binary.LittleEndian.Uint16(data[1:3]))
	assert.Equal(t, int32(-7), int32(binary.LittleEndian.Uint32(data[3:7])))
	assert.Zero(t, data[7])
}

func TestReaderPastEndReturnsZero(t *testing.T) {
	r := NewReader([]byte{C_OPCODE_MOVE, 1, 2})
	assert.Zero(t, r.ReadF())
	assert.Zero(t, r.Remaining())
	assert.Zero(t, r.ReadC())
	assert.Equal(t, uuid.Nil, r.ReadU())
	assert.Equal(t, "", r.ReadS())
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var got []string
	reg.Register(C_OPCODE_CHAT, []SessionState{StateInWorld}, func(sess any, r *Reader) {
		got = append(got, sess.(string)+":"+r.ReadS())
	})
	reg.Register(C_OPCODE_QUIT, []SessionState{StateInWorld}, func(any, *Reader) {
		panic(errors.New("bad packet"))
	})
	require.Equal(t, 2, reg.Len())

	chat := NewWriterWithOpcode(C_OPCODE_CHAT)
	chat.WriteS("hello")

	require.NoError(t, reg.Dispatch("alex", StateInWorld, chat.Bytes()))
	assert.Equal(t, []string{"alex:hello"}, got)

	assert.Error(t, reg.Dispatch("alex", StateHandshake, chat.Bytes()), "state gate")
	assert.NoError(t, reg.Dispatch("alex", StateInWorld, []byte{99}), "unknown opcodes are ignored")
	assert.Error(t, reg.Dispatch("alex", StateInWorld, nil))
	assert.Error(t, reg.Dispatch("alex", StateInWorld, []byte{C_OPCODE_QUIT}), "panics become errors")
}
