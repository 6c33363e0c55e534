// Package console serves a password-protected line console for operators.
// Commands are handed to the game loop and answered from there.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxAuthAttempts = 3
	replyTimeout    = 5 * time.Second
	idleTimeout     = 10 * time.Minute
)

// Request is one command line waiting for the game loop.
type Request struct {
	Operator string // remote address
	Line     string
	Reply    chan<- []string // buffered; the game loop never blocks on it
}

// Server accepts operator connections.
type Server struct {
	listener net.Listener
	hash     []byte
	requests chan Request
	log      *zap.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New listens on bind. passwordHash is a bcrypt hash.
func New(bind, passwordHash string, log *zap.Logger) (*Server, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("console password hash: %w", err)
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", bind, err)
	}
	return &Server{
		listener: ln,
		hash:     []byte(passwordHash),
		requests: make(chan Request, 16),
		log:      log,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Requests returns the channel drained by the game loop.
func (s *Server) Requests() <-chan Request {
	return s.requests
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()

	defer s.wg.Wait()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("控制台連線接受失敗", zap.Error(err))
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	c.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	who := conn.RemoteAddr().String()
	in := bufio.NewScanner(conn)
	out := bufio.NewWriter(conn)
	write := func(lines ...string) bool {
		for _, l := range lines {
			out.WriteString(l)
			out.WriteString("\r\n")
		}
		return out.Flush() == nil
	}
	readLine := func() (string, bool) {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !in.Scan() {
			return "", false
		}
		return strings.TrimSpace(in.Text()), true
	}

	if !s.authenticate(who, write, readLine) {
		return
	}
	s.log.Info("控制台登入", zap.String("operator", who))
	write("Welcome. Type help for commands, quit to leave.")

	for {
		out.WriteString("> ")
		out.Flush()
		line, ok := readLine()
		if !ok {
			return
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			write("Bye.")
			return
		}
		reply, err := s.submit(ctx, who, line)
		if err != nil {
			write("Error: " + err.Error())
			return
		}
		if !write(reply...) {
			return
		}
	}
}

func (s *Server) authenticate(who string, write func(...string) bool, readLine func() (string, bool)) bool {
	for i := 0; i < maxAuthAttempts; i++ {
		write("Password:")
		pw, ok := readLine()
		if !ok {
			return false
		}
		if bcrypt.CompareHashAndPassword(s.hash, []byte(pw)) == nil {
			return true
		}
		s.log.Warn("控制台密碼錯誤", zap.String("operator", who))
		write("Access denied.")
	}
	return false
}

// submit hands line to the game loop and waits for its reply.
func (s *Server) submit(ctx context.Context, who, line string) ([]string, error) {
	reply := make(chan []string, 1)
	req := Request{Operator: who, Line: line, Reply: reply}
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, errors.New("server shutting down")
	case <-timer.C:
		return nil, errors.New("command queue full")
	}
	select {
	case lines := <-reply:
		return lines, nil
	case <-ctx.Done():
		return nil, errors.New("server shutting down")
	case <-timer.C:
		return nil, errors.New("no reply from game loop")
	}
}
