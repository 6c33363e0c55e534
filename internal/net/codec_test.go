package net

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{1, 2, 3}))
	require.NoError(t, WriteFrame(&buf, []byte{4}))
	assert.Equal(t, []byte{5, 0, 1, 2, 3}, buf.Bytes()[:5])

	a, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, a)
	b, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, b)
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{2, 0}))
	assert.Error(t, err)
	_, err = ReadFrame(bytes.NewReader([]byte{9, 0, 1}))
	assert.Error(t, err, "truncated payload")
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	assert.Error(t, WriteFrame(&bytes.Buffer{}, make([]byte, MaxFrame)))
}

func TestCipherPairsStayInStep(t *testing.T) {
	server := NewCipher(0x1234567)
	client := NewCipher(0x1234567)

	packets := [][]byte{
		{0x10, 'h', 'i', 0, 0, 0, 0, 0},
		{0x20},
		[]byte("a longer packet that spans several key cycles"),
		{0x30, 0x00, 0xff, 0x7f},
	}
	for _, p := range packets {
		plain := append([]byte(nil), p...)
		wire := server.Encrypt(append([]byte(nil), p...))
		if len(p) > 1 {
			assert.NotEqual(t, plain, wire)
		}
		assert.Equal(t, plain, client.Decrypt(wire))
	}
}

func TestCipherSeedsDiffer(t *testing.T) {
	a := NewCipher(1).Encrypt([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	b := NewCipher(2).Encrypt([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.NotEqual(t, a, b)
}
