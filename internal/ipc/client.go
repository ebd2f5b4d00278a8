package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

var ErrNotConnected = errors.New("ipc: client not connected")

// Client is the child side of the status channel.
type Client struct {
	id           uuid.UUID
	path         string
	writeTimeout time.Duration
	onAggregate  func(audiochannel.Status)
	logger       zerolog.Logger

	mu        sync.Mutex
	conn      net.Conn
	last      audiochannel.ChildStatus
	reported  bool
	aggregate audiochannel.Status
	wg        sync.WaitGroup
}

// NewClient creates a disconnected child client. onAggregate, if set, is
// called on the reader goroutine for every aggregate from the parent.
func NewClient(path string, writeTimeout time.Duration, onAggregate func(audiochannel.Status)) *Client {
	id := uuid.New()
	return &Client{
		id:           id,
		path:         path,
		writeTimeout: writeTimeout,
		onAggregate:  onAggregate,
		logger:       logging.GetSubsystemLogger("ipc-client").With().Str("child", id.String()).Logger(),
	}
}

// ID returns the identifier the client announces in its hello.
func (c *Client) ID() uuid.UUID { return c.id }

// Connect dials the parent and says hello.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.path, err)
	}
	hello, _ := c.id.MarshalBinary()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		conn.Close()
		return err
	}
	if err := WriteMessage(conn, MessageHello, hello); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.reported = false
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readAggregates(conn)
	c.logger.Info().Str("path", c.path).Msg("connected to parent")
	return nil
}

func (c *Client) readAggregates(conn net.Conn) {
	defer c.wg.Done()
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn().Err(err).Msg("failed to read from parent")
			}
			return
		}
		if msg.Type != MessageAggregate {
			continue
		}
		status, err := decodeAggregate(msg.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed aggregate")
			continue
		}
		c.mu.Lock()
		c.aggregate = status
		c.mu.Unlock()
		if c.onAggregate != nil {
			c.onAggregate(status)
		}
	}
}

// Report sends the local status unless it equals the last one sent.
func (c *Client) Report(status audiochannel.ChildStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if c.reported && c.last == status {
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := WriteMessage(c.conn, MessageStatusReport, encodeChildStatus(status)); err != nil {
		return fmt.Errorf("send status report: %w", err)
	}
	c.last = status
	c.reported = true
	return nil
}

// OnAudioStatusChanged implements audiochannel.StatusObserver for the
// child's own registry.
func (c *Client) OnAudioStatusChanged(status audiochannel.Status) {
	if err := c.Report(status.Local()); err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Warn().Err(err).Msg("failed to report status")
	}
}

// Aggregate returns the last aggregate received from the parent.
func (c *Client) Aggregate() audiochannel.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregate
}

// Close disconnects from the parent.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.wg.Wait()
	return err
}
