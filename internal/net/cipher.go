package net

import "encoding/binary"

// Cipher is the rolling XOR stream cipher applied to every frame after the
// handshake. Each direction keeps its own 8-byte key, which advances after
// every packet using the packet's first four plaintext bytes, so both ends
// must process packets in the same order.
type Cipher struct {
	enc [8]byte
	dec [8]byte
}

const (
	keySeedMask = 0x5bd1e995
	keyStepMask = 0x27d4eb2f
	keyAdvance  = 0x165667b1
)

// NewCipher derives both direction keys from the handshake seed.
func NewCipher(seed int32) *Cipher {
	lo := uint32(seed) ^ keySeedMask
	lo = lo<<13 | lo>>19
	hi := lo*keyStepMask ^ uint32(seed)

	var k [8]byte
	binary.LittleEndian.PutUint32(k[0:4], lo)
	binary.LittleEndian.PutUint32(k[4:8], hi)
	return &Cipher{enc: k, dec: k}
}

// Encrypt encrypts data in place and returns it.
func (c *Cipher) Encrypt(data []byte) []byte {
	var head [4]byte
	copy(head[:], data)

	var prev byte
	for i := range data {
		data[i] ^= c.enc[i&7] ^ prev
		prev = data[i]
	}
	advance(&c.enc, head)
	return data
}

// Decrypt decrypts data in place and returns it.
func (c *Cipher) Decrypt(data []byte) []byte {
	var prev byte
	for i := range data {
		ct := data[i]
		data[i] ^= c.dec[i&7] ^ prev
		prev = ct
	}
	var head [4]byte
	copy(head[:], data)
	advance(&c.dec, head)
	return data
}

func advance(k *[8]byte, head [4]byte) {
	for i := 0; i < 4; i++ {
		k[i] ^= head[i]
	}
	v := binary.LittleEndian.Uint32(k[4:8]) + keyAdvance
	binary.LittleEndian.PutUint32(k[4:8], v)
}
