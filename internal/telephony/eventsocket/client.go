// Package eventsocket implements the duplex websocket channel to the switch
// event-socket bridge: call-lifecycle events in, call-control commands out.
package eventsocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dialer-platform/internal/telephony"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned for commands issued while the stream is down.
// Callers treat this as a deferral, not a fatal fault.
var ErrNotConnected = errors.New("eventsocket: not connected")

const (
	writeTimeout   = 5 * time.Second
	eventBufferLen = 256
)

// Client maintains a reconnecting websocket session to the switch bridge.
// It implements telephony.Commander and telephony.EventSource.
type Client struct {
	url string
	log *slog.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	events chan telephony.Event

	mu        sync.Mutex // serializes writes to conn
	conn      *websocket.Conn
	connected atomic.Bool
}

func New(url string, reconnectMin, reconnectMax time.Duration, log *slog.Logger) *Client {
	if reconnectMin <= 0 {
		reconnectMin = time.Second
	}
	if reconnectMax < reconnectMin {
		reconnectMax = reconnectMin
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:          url,
		log:          log,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		events:       make(chan telephony.Event, eventBufferLen),
	}
}

// Run dials the bridge and pumps events until ctx is cancelled, reconnecting
// with doubling backoff on any stream failure. The events channel is closed
// on return.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	backoff := c.reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Warn("switch dial failed", "url", c.url, "err", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.reconnectMax)
			continue
		}

		c.setConn(conn)
		c.log.Info("switch connected", "url", c.url)
		backoff = c.reconnectMin

		c.readLoop(ctx, conn)

		c.setConn(nil)
		_ = conn.Close()
		c.log.Warn("switch disconnected", "url", c.url)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		var ev telephony.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("switch read failed", "err", err)
			}
			return
		}
		if ev.Type == "" || ev.CallUUID == "" {
			continue
		}
		select {
		case c.events <- ev:
		default:
			// Consumers are expected to keep up; shed rather than block the
			// stream and stall every other call's events.
			c.log.Warn("event buffer full, dropping", "event", string(ev.Type), "call_uuid", ev.CallUUID)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(conn != nil)
}

// Connected reports whether the session is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Events returns the inbound call-lifecycle event stream.
func (c *Client) Events() <-chan telephony.Event { return c.events }

type commandEnvelope struct {
	Command string `json:"command"`

	CallUUID string `json:"call_uuid,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Cause    string `json:"cause,omitempty"`

	CallerID    string            `json:"caller_id,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Gateway     string            `json:"gateway,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Extension   string            `json:"extension,omitempty"`
}

// Originate issues an outbound call. Fire-and-forget: the switch reports the
// outcome asynchronously on the event stream.
func (c *Client) Originate(ctx context.Context, req telephony.OriginateRequest) error {
	return c.send(ctx, commandEnvelope{
		Command:     "originate",
		CallerID:    req.CallerID,
		Destination: req.Destination,
		Gateway:     req.Gateway,
		Variables:   req.Variables,
		Extension:   req.Extension,
	})
}

// Playback plays an audio prompt into a live call.
func (c *Client) Playback(ctx context.Context, callUUID, prompt string) error {
	return c.send(ctx, commandEnvelope{Command: "playback", CallUUID: callUUID, Prompt: prompt})
}

// Hangup terminates a call.
func (c *Client) Hangup(ctx context.Context, callUUID, cause string) error {
	return c.send(ctx, commandEnvelope{Command: "hangup", CallUUID: callUUID, Cause: cause})
}

func (c *Client) send(ctx context.Context, cmd commandEnvelope) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	return nil
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
