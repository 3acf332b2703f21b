// Package vision is the websocket client to the overhead camera tracker.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tabletop-racing/racecontrol/pkg/core"
	"github.com/tabletop-racing/racecontrol/pkg/streaming"
)

const (
	sendChSize   = 64
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ErrClosed is returned by calls made after Close or while waiting when the
// client is closed.
var ErrClosed = errors.New("vision client closed")

// Config holds the tracker connection settings.
type Config struct {
	URL string
	// FrameTimeout bounds how long CarLocations waits for a new pose frame.
	FrameTimeout time.Duration
	// InitialBackoff is the first reconnect delay; it doubles per attempt.
	InitialBackoff time.Duration
}

// Client talks to the tracker with a single write goroutine. Pose frames are
// cached as they arrive.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *ws.Conn
	closed  bool
	pending map[uint64]chan streaming.AckMessage
	// trackingMsg is replayed after a reconnect while tracking is on.
	trackingMsg []byte

	sendCh chan []byte
	done   chan struct{}
	nextID atomic.Uint64

	frameMu sync.Mutex
	frame   streaming.PoseFramePayload
	// fresh is closed and replaced whenever a frame arrives.
	fresh chan struct{}
}

// Dial connects to the tracker and starts the read and write loops.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	c := &Client{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[uint64]chan streaming.AckMessage),
		sendCh:  make(chan []byte, sendChSize),
		done:    make(chan struct{}),
		fresh:   make(chan struct{}),
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn

	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Calibrate asks the tracker to calibrate against the table corners and
// returns the markers it used.
func (c *Client) Calibrate(ctx context.Context) ([]core.Point, error) {
	var res streaming.PointsPayload
	if err := c.request(ctx, streaming.TypeCalibrate, nil, &res); err != nil {
		return nil, err
	}
	return res.Points, nil
}

// Markers returns the track markers currently visible, in display space.
func (c *Client) Markers(ctx context.Context) ([]core.Point, error) {
	var res streaming.PointsPayload
	if err := c.request(ctx, streaming.TypeMarkers, nil, &res); err != nil {
		return nil, err
	}
	return res.Points, nil
}

// Identify asks the tracker to associate each car ID with a detection.
func (c *Client) Identify(ctx context.Context, ids []string) (bool, error) {
	var res streaming.IdentifyResult
	if err := c.request(ctx, streaming.TypeIdentify, streaming.IdentifyPayload{IDs: ids}, &res); err != nil {
		return false, err
	}
	return res.OK, nil
}

// StartTracking starts the pose stream.
func (c *Client) StartTracking(ctx context.Context) error {
	if err := c.request(ctx, streaming.TypeStartTracking, nil, nil); err != nil {
		return err
	}
	msg, err := streaming.Encode(streaming.TypeStartTracking, 0, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.trackingMsg = msg
	c.mu.Unlock()
	return nil
}

// StopTracking stops the pose stream.
func (c *Client) StopTracking(ctx context.Context) error {
	c.mu.Lock()
	c.trackingMsg = nil
	c.mu.Unlock()
	return c.request(ctx, streaming.TypeStopTracking, nil, nil)
}

// CarLocations returns the observations of the next pose frame, waiting at
// most FrameTimeout for it. When no new frame arrives in time the last one
// is returned again.
func (c *Client) CarLocations(ctx context.Context) ([]core.Observation, error) {
	c.frameMu.Lock()
	fresh := c.fresh
	c.frameMu.Unlock()

	var timeout <-chan time.Time
	if c.cfg.FrameTimeout > 0 {
		timer := time.NewTimer(c.cfg.FrameTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-fresh:
	case <-timeout:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}

	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return slices.Clone(c.frame.Observations), nil
}

// LastSeq returns the sequence number of the last pose frame.
func (c *Client) LastSeq() uint64 {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.frame.Seq
}

// Close sends a WebSocket close frame and shuts down all goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}

// request sends a message and blocks until the tracker acknowledges it with
// the same ID. out, if not nil, receives the ack payload.
func (c *Client) request(ctx context.Context, typ string, payload, out any) error {
	id := c.nextID.Add(1)
	data, err := streaming.Encode(typ, id, payload)
	if err != nil {
		return err
	}

	ackCh := make(chan streaming.AckMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.sendCh <- data:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}

	select {
	case ack := <-ackCh:
		if ack.Error != "" {
			return fmt.Errorf("%s: %s", typ, ack.Error)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(ack.Payload, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", typ, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ack of %q: %w", typ, ctx.Err())
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", typ)
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket.
// Only one writeLoop runs at a time; it returns on error or shutdown.
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect()
				return
			}
		}
	}
}

// readLoop routes acks to their waiting request and caches pose frames.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect()
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		switch env.Type {
		case streaming.TypeAck:
			var ack streaming.AckMessage
			if err := json.Unmarshal(message, &ack); err != nil {
				c.logger.Debug("Malformed ack received", "raw", string(message))
				continue
			}
			c.deliverAck(ack)
		case streaming.TypePoseFrame:
			var frame streaming.PoseFramePayload
			if err := streaming.Decode(env, &frame); err != nil {
				c.logger.Debug("Malformed pose frame", "error", err)
				continue
			}
			c.storeFrame(frame)
		default:
			c.logger.Debug("Unexpected message received", "type", env.Type)
		}
	}
}

func (c *Client) deliverAck(ack streaming.AckMessage) {
	c.mu.Lock()
	ch, ok := c.pending[ack.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Ack for unknown request", "for", ack.For, "id", ack.ID)
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

func (c *Client) storeFrame(frame streaming.PoseFramePayload) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	c.frame = frame
	close(c.fresh)
	c.fresh = make(chan struct{})
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. On success it restarts tracking if it was on and
// restarts the read/write loops.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backoff := c.cfg.InitialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to tracker", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, _, err := ws.DefaultDialer.Dial(c.cfg.URL, nil)
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		tracking := c.trackingMsg
		c.mu.Unlock()

		if tracking != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, tracking)
			}
			if err != nil {
				c.logger.Warn("Failed to restart tracking after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("Tracker reconnected", "attempt", attempt)
		go c.writeLoop()
		go c.readLoop()
		return
	}

	c.logger.Error("Tracker reconnect failed after max attempts", "maxAttempts", maxReconnect)
}
