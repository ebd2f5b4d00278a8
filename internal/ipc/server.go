package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/dispatch"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

var ErrServerRunning = errors.New("ipc: server already running")

type childConn struct {
	conn net.Conn
	id   audiochannel.ChildID
	mu   sync.Mutex
}

func (c *childConn) write(typ MessageType, payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return WriteMessage(c.conn, typ, payload)
}

// Server is the parent side of the status channel. Child reports are
// applied to the registry on the coordinating goroutine; aggregate status
// is pushed to every child that said hello.
type Server struct {
	running int32

	path         string
	registry     *audiochannel.Registry
	poster       dispatch.Poster
	writeTimeout time.Duration
	listener     net.Listener
	logger       *zerolog.Logger

	mu     sync.Mutex
	conns  map[*childConn]struct{}
	latest audiochannel.Status
	wg     sync.WaitGroup
}

// NewServer creates a stopped server listening on the unix socket path.
// registry is only touched from tasks posted to poster.
func NewServer(path string, registry *audiochannel.Registry, poster dispatch.Poster, writeTimeout time.Duration) *Server {
	return &Server{
		path:         path,
		registry:     registry,
		poster:       poster,
		writeTimeout: writeTimeout,
		logger:       logging.GetSubsystemLogger("ipc-server"),
		conns:        make(map[*childConn]struct{}),
	}
}

// Start removes a stale socket, listens and accepts children.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerRunning
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	s.listener = listener
	s.wg.Add(1)
	go s.acceptConnections()
	s.logger.Info().Str("path", s.path).Msg("ipc server listening")
	return nil
}

// Stop closes the listener and every child connection and waits for the
// reader goroutines.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.path)
	s.logger.Info().Msg("ipc server stopped")
}

// Addr returns the socket path.
func (s *Server) Addr() string { return s.path }

// Children returns the number of connected children.
func (s *Server) Children() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for atomic.LoadInt32(&s.running) == 1 {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.running) == 1 {
				s.logger.Warn().Err(err).Msg("failed to accept connection, retrying")
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	hello, err := ReadMessage(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("child disconnected before hello")
		return
	}
	if hello.Type != MessageHello {
		s.logger.Warn().Stringer("type", hello.Type).Msg("expected hello, dropping connection")
		return
	}
	id, err := decodeHello(hello.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("invalid hello")
		return
	}

	c := &childConn{conn: conn, id: audiochannel.ChildID(id.String())}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	latest := s.latest
	s.mu.Unlock()
	childConnections.Inc()
	logger := s.logger.With().Str("child", string(c.id)).Logger()
	logger.Info().Msg("child connected")

	if err := c.write(MessageAggregate, encodeAggregate(latest), s.writeTimeout); err != nil {
		logger.Warn().Err(err).Msg("failed to send initial aggregate")
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		childConnections.Dec()
		s.post(func() {
			// a reconnect with the same id owns the status by now
			if s.connected(c.id) {
				return
			}
			s.registry.RemoveChild(c.id)
		})
		logger.Info().Msg("child disconnected")
	}()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn().Err(err).Msg("failed to read child message")
			}
			return
		}
		messagesReceived.WithLabelValues(msg.Type.String()).Inc()
		switch msg.Type {
		case MessageStatusReport:
			status, err := decodeChildStatus(msg.Data)
			if err != nil {
				logger.Warn().Err(err).Msg("dropping malformed status report")
				continue
			}
			s.post(func() { s.registry.UpdateChildStatus(c.id, status) })
		default:
			logger.Debug().Stringer("type", msg.Type).Msg("ignoring unexpected message")
		}
	}
}

func (s *Server) connected(id audiochannel.ChildID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if c.id == id {
			return true
		}
	}
	return false
}

func (s *Server) post(task dispatch.Task) {
	if err := s.poster.Post(task); err != nil {
		s.logger.Warn().Err(err).Msg("failed to post child update")
	}
}

// OnAudioStatusChanged implements audiochannel.StatusObserver by pushing
// the aggregate to every child. Children that cannot keep up are dropped.
func (s *Server) OnAudioStatusChanged(status audiochannel.Status) {
	s.mu.Lock()
	s.latest = status
	conns := make([]*childConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	payload := encodeAggregate(status)
	for _, c := range conns {
		if err := c.write(MessageAggregate, payload, s.writeTimeout); err != nil {
			aggregateWriteFailures.Inc()
			s.logger.Warn().Err(err).Str("child", string(c.id)).Msg("failed to push aggregate, dropping child")
			c.conn.Close()
		}
	}
}
