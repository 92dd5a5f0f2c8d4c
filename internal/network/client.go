// Package network exposes the server's boundary: the REST API for
// session lifecycle and the per-session websocket stream carrying game
// events out and player commands in.
package network

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/imminent-crash/server/internal/engine"
	"github.com/imminent-crash/server/internal/events"
	"github.com/imminent-crash/server/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Command is an in-band player command on the session socket.
type Command struct {
	Type     string `json:"type"` // "BUY", "SELL", "PAUSE", "CONTINUE", "QUIT"
	CoinID   int    `json:"coin_id,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

// reply acknowledges a command back to the player.
type reply struct {
	Type    string `json:"type"` // "ACK" or "ERROR"
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

// Client streams one session to one websocket peer and feeds the
// peer's commands back into the session.
type Client struct {
	session  *engine.Session
	registry *engine.Registry
	conn     *websocket.Conn
	send     chan []byte
	log      zerolog.Logger
}

// NewClient wraps an upgraded connection around a session.
func NewClient(session *engine.Session, registry *engine.Registry, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		session:  session,
		registry: registry,
		conn:     conn,
		send:     make(chan []byte, 64),
		log:      log.With().Str("session", session.ID().String()).Logger(),
	}
}

// ReadPump consumes commands from the websocket until the peer goes
// away. A disconnecting peer does not quit the session; the run keeps
// ticking and the score stays queryable over REST.
func (c *Client) ReadPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		metrics.Get().RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse command")
			c.reply(reply{Type: "ERROR", Error: "malformed command"})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd Command) {
	var err error
	switch cmd.Type {
	case "BUY":
		err = c.session.SubmitBuy(cmd.CoinID, cmd.Quantity)
	case "SELL":
		err = c.session.SubmitSell(cmd.CoinID, cmd.Quantity)
	case "PAUSE":
		err = c.session.Pause()
	case "CONTINUE":
		err = c.session.Continue()
	case "QUIT":
		err = c.registry.Remove(c.session.ID())
	default:
		c.reply(reply{Type: "ERROR", Command: cmd.Type, Error: "unknown command"})
		return
	}

	if err != nil {
		// Session errors are part of the contract, not failures.
		if !errors.Is(err, engine.ErrInvalidOrder) &&
			!errors.Is(err, engine.ErrSessionTerminated) &&
			!errors.Is(err, engine.ErrSessionNotFound) {
			c.log.Error().Err(err).Str("command", cmd.Type).Msg("command failed")
		}
		c.reply(reply{Type: "ERROR", Command: cmd.Type, Error: err.Error()})
		return
	}
	c.reply(reply{Type: "ACK", Command: cmd.Type})
}

func (c *Client) reply(r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Peer is not draining; drop the ack rather than block a tick.
	}
}

// WritePump forwards the session's event stream and command replies to
// the peer. When the stream completes (death, win, or quit) the socket
// is closed cleanly.
func (c *Client) WritePump(stream <-chan *events.GameEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over"))
				return
			}
			if !c.write(event) {
				return
			}
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			metrics.Get().RecordWSMessage(false)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(event *events.GameEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to serialize game event")
		return true
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return false
	}
	metrics.Get().RecordWSMessage(false)
	return true
}
