// Package collector is a reference receiving end for the wire protocol.
// It accepts plain TCP connections, splits each stream on the frame
// delimiter and hands every decoded message to a callback.
package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/philipp01105/logship/wire"
)

// DefaultMaxFrameSize bounds a single frame. Longer frames end the
// connection with bufio.ErrTooLong.
const DefaultMaxFrameSize = 1 << 20

// ErrAlreadyRunning is returned by Serve when the server is already serving.
var ErrAlreadyRunning = errors.New("collector: already running")

// Frame is one received frame.
type Frame struct {
	// ConnID identifies the connection the frame arrived on.
	ConnID string
	// Remote is the peer address.
	Remote string
	// Raw is the payload without the delimiter.
	Raw []byte
	// Message is the decoded payload. Zero when Err is set.
	Message wire.Message
	// Err is the decode error, if any.
	Err error
}

// Config configures a Server.
type Config struct {
	// Address to listen on, e.g. ":9000" or "127.0.0.1:0".
	Address string
	// OnFrame is called for every frame, from the connection's goroutine.
	OnFrame func(Frame)
	// OnConnect and OnDisconnect observe connection lifecycle. Optional.
	OnConnect    func(connID, remote string)
	OnDisconnect func(connID string, err error)
	// MaxFrameSize bounds one frame (default: DefaultMaxFrameSize).
	MaxFrameSize int
}

// Server accepts collector connections.
type Server struct {
	config   Config
	listener net.Listener

	conns   map[string]net.Conn
	connsMu sync.Mutex

	running atomic.Bool
	frames  atomic.Uint64
	wg      sync.WaitGroup
}

// Listen binds cfg.Address. The server does not accept connections
// until Serve is called.
func Listen(cfg Config) (*Server, error) {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.OnFrame == nil {
		cfg.OnFrame = func(Frame) {}
	}
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("collector: listen: %w", err)
	}
	return &Server{
		config:   cfg,
		listener: ln,
		conns:    make(map[string]net.Conn),
	}, nil
}

// Addr returns the bound address, host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// String implements fmt.Stringer. Suture uses it to name the service.
func (s *Server) String() string {
	return "logship-collector(" + s.Addr() + ")"
}

// Frames returns the number of frames received so far.
func (s *Server) Frames() uint64 {
	return s.frames.Load()
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and every open connection and returns ctx.Err(). It returns
// nil after Close.
func (s *Server) Serve(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.Close()
		s.DropConnections()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("collector: accept: %w", err)
		}

		id := uuid.New().String()
		s.connsMu.Lock()
		s.conns[id] = conn
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(id, conn)
	}
}

// DropConnections closes every open connection. The listener keeps
// accepting new ones.
func (s *Server) DropConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// Close stops accepting and closes every connection.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.DropConnections()
	return err
}

func (s *Server) handleConnection(id string, conn net.Conn) {
	defer s.wg.Done()
	remote := conn.RemoteAddr().String()
	if s.config.OnConnect != nil {
		s.config.OnConnect(id, remote)
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), s.config.MaxFrameSize)
	sc.Split(wire.ScanFrames)
	for sc.Scan() {
		raw := append([]byte(nil), sc.Bytes()...)
		m, err := wire.Decode(raw)
		s.frames.Add(1)
		s.config.OnFrame(Frame{
			ConnID:  id,
			Remote:  remote,
			Raw:     raw,
			Message: m,
			Err:     err,
		})
	}

	_ = conn.Close()
	s.connsMu.Lock()
	delete(s.conns, id)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(id, sc.Err())
	}
}
