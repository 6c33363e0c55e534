package net

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowd/server/internal/net/packet"
	"go.uber.org/zap"
)

// handshakeMagic trails the seed in the init packet so clients can reject a
// wrong server before keying the cipher.
var handshakeMagic = [8]byte{'S', 'H', 'D', 'W', 0x01, 0x00, 0x5a, 0xa5}

// Session is one client connection. Network I/O runs on dedicated
// goroutines; game state is touched only from the game loop.
type Session struct {
	ID   uint64
	conn net.Conn

	cipher *Cipher
	state  atomic.Int32 // packet.SessionState

	InQueue  chan []byte // game loop reads decrypted packets here
	OutQueue chan []byte // writer goroutine drains this

	IP   string
	Name string // set at login

	outBuf [][]byte // game loop only; flushed once per tick

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// readLoop only
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	writeTimeout time.Duration
	log          *zap.Logger
}

// SessionOptions sizes the queues and limits of a session.
type SessionOptions struct {
	InQueue      int
	OutQueue     int
	PerSecond    int // max inbound packets per second; 0 = unlimited
	WriteTimeout time.Duration
}

func NewSession(conn net.Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueue),
		OutQueue:     make(chan []byte, opts.OutQueue),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		pktPerSec:    opts.PerSecond,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start writes the plaintext init packet, keys the cipher and launches the
// reader and writer goroutines.
func (s *Session) Start() error {
	seed := rand.Int31n(0x7FFFFFFE) + 1

	// [2B LE length][opcode][4B LE seed][8B magic]
	buf := make([]byte, 2+1+4+len(handshakeMagic))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	buf[2] = packet.S_OPCODE_INITPACKET
	binary.LittleEndian.PutUint32(buf[3:7], uint32(seed))
	copy(buf[7:], handshakeMagic[:])

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := s.conn.Write(buf); err != nil {
		s.Close()
		return fmt.Errorf("write init packet: %w", err)
	}
	s.cipher = NewCipher(seed)

	go s.readLoop()
	go s.writeLoop()
	return nil
}

// Send buffers a packet until the next FlushOutput. Game loop only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// Buffered returns the number of packets waiting for FlushOutput.
func (s *Session) Buffered() int {
	return len(s.outBuf)
}

// FlushOutput hands buffered packets to the writer goroutine. A client that
// cannot keep up is disconnected rather than blocking the game loop.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the session down. Safe to call repeatedly from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		decrypted := s.cipher.Decrypt(payload)

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Moves must not be dropped or the server's pose drifts from the
		// client's, so this blocks only this client's reader.
		select {
		case s.InQueue <- decrypted:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
			zap.Int("len", len(data)),
		)
	}

	encrypted := make([]byte, len(data))
	copy(encrypted, data)
	s.cipher.Encrypt(encrypted)

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := WriteFrame(s.conn, encrypted); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
