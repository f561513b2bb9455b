package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	heartbeatEvery = 15 * time.Second
	maxMessageSize = MaxFramePayload
	sendBufferSize = 256
)

type protocolState int

const (
	stateOpened protocolState = iota
	stateAuthenticated
	stateInChannel
	stateClosed
)

// Connection is the live, in-memory record for one WebSocket. Its owning
// read pump mutates serverID/channelID/mute/deafen/rate-counters, except that
// move-user sets the target's channel from the mover's read pump; every such
// write holds mu. Other goroutines may read those fields for broadcast
// fan-out but must tolerate transient staleness.
type Connection struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	writeMu     sync.Mutex
	closeOnce   sync.Once
	cleanupOnce sync.Once

	remoteAddr string

	mu              sync.RWMutex
	state           protocolState
	userID          string
	nickname        string
	serverID        string
	channelID       string
	isMuted         bool
	isDeafened      bool
	isAdmin         bool
	publicKey       *string
	rtpCapabilities json.RawMessage
	limiter         *ratelimit.CategoryLimiter

	gotPong bool
}

func newConnection(hub *Hub, conn *websocket.Conn) *Connection {
	return &Connection{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		state:   stateOpened,
		gotPong: true,
	}
}

func (c *Connection) setState(s protocolState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) getState() protocolState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// sendFrame pushes a pre-built JSON frame to the connection's outbound
// buffer. A full buffer means a stuck client; it is disconnected rather than
// allowed to apply backpressure to the rest of the hub.
func (c *Connection) sendFrame(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		c.hub.forceClose(c)
	}
}

func (c *Connection) sendError(code pkg.WSErrorCode, message string) {
	c.sendFrame(errorFrame(string(code), message))
}

// ReadPump decodes frames off the socket and dispatches them. It owns the
// connection's mutable protocol state and returns only on socket close.
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.gotPong = true
		c.mu.Unlock()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(pkg.CodeInvalidJSON, "malformed JSON frame")
			continue
		}

		c.hub.dispatch(c, env.Type, raw)
	}
}

// WritePump drains the outbound buffer to the socket. It is the only
// goroutine that ever calls conn.WriteMessage, per gorilla/websocket's
// single-writer requirement.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for data := range c.send {
		if err := c.writeMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.writeMessage(websocket.CloseMessage, nil)
}

func (c *Connection) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// close shuts down the connection exactly once; safe to call from any
// goroutine (heartbeat, dispatch, or the read pump's own cleanup).
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
