package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ehrma/signalcore/config"
	"github.com/ehrma/signalcore/invite"
	"github.com/ehrma/signalcore/media"
	"github.com/ehrma/signalcore/perm"
	"github.com/ehrma/signalcore/pkg"
	"github.com/ehrma/signalcore/pkg/ratelimit"
	"github.com/ehrma/signalcore/repository"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type handlerFunc func(h *Hub, c *Connection, raw []byte)

// Hub is the session registry and dispatch table: the single process-wide
// handle every connection's goroutines call back into. It holds no global
// variables of its own — everything it needs is wired in at construction.
type Hub struct {
	cfg *config.Config

	servers   repository.ServerRepository
	channels  repository.ChannelRepository
	users     repository.UserRepository
	members   repository.MemberRepository
	roles     repository.RoleRepository
	overrides repository.ChannelPermissionRepository
	bans      repository.BanRepository
	chat      repository.ChatRepository

	invites *invite.Service
	perms   *perm.CachedResolver
	media   *media.Adapter
	ipLimit *ratelimit.IPLimiter

	newID func() string

	handlers map[string]handlerFunc

	mu     sync.RWMutex
	byUser map[string]*Connection
}

type Deps struct {
	Config    *config.Config
	Servers   repository.ServerRepository
	Channels  repository.ChannelRepository
	Users     repository.UserRepository
	Members   repository.MemberRepository
	Roles     repository.RoleRepository
	Overrides repository.ChannelPermissionRepository
	Bans      repository.BanRepository
	Chat      repository.ChatRepository
	Invites   *invite.Service
	Perms     *perm.CachedResolver
	Media     *media.Adapter
	IPLimit   *ratelimit.IPLimiter
	NewID     func() string
}

func NewHub(d Deps) *Hub {
	h := &Hub{
		cfg:       d.Config,
		servers:   d.Servers,
		channels:  d.Channels,
		users:     d.Users,
		members:   d.Members,
		roles:     d.Roles,
		overrides: d.Overrides,
		bans:      d.Bans,
		chat:      d.Chat,
		invites:   d.Invites,
		perms:     d.Perms,
		media:     d.Media,
		ipLimit:   d.IPLimit,
		newID:     d.NewID,
		byUser:    make(map[string]*Connection),
	}
	h.handlers = map[string]handlerFunc{
		TypeJoinChannel:        (*Hub).handleJoinChannel,
		TypeLeaveChannel:       (*Hub).handleLeaveChannel,
		TypeMute:               (*Hub).handleMute,
		TypeDeafen:             (*Hub).handleDeafen,
		TypeRTPCapabilities:    (*Hub).handleRTPCapabilities,
		TypeCreateTransport:    (*Hub).handleCreateTransport,
		TypeConnectTransport:   (*Hub).handleConnectTransport,
		TypeProduce:            (*Hub).handleProduce,
		TypeStopProducer:       (*Hub).handleStopProducer,
		TypeConsume:            (*Hub).handleConsume,
		TypeResumeConsumer:     (*Hub).handleResumeConsumer,
		TypeSetPreferredLayers: (*Hub).handleSetPreferredLayers,
		TypeChat:               (*Hub).handleChat,
		TypeE2EE:               (*Hub).handleE2EE,
		TypeSpeaking:           (*Hub).handleSpeaking,
		TypeKick:               (*Hub).handleKick,
		TypeMoveUser:           (*Hub).handleMoveUser,
		TypeBan:                (*Hub).handleBan,
		TypeAssignRole:         (*Hub).handleAssignRole,
		TypeUnassignRole:       (*Hub).handleUnassignRole,
	}
	return h
}

// ServeWS upgrades the HTTP request and runs the connection's pumps. It
// blocks until the socket closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ExtractIP(r, h.cfg.TrustProxy)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	c := newConnection(h, conn)
	c.remoteAddr = ip
	go c.WritePump()
	c.ReadPump()
}

// dispatch routes one decoded frame by protocol state and type. It is
// called from the connection's own read pump, so it never blocks on that
// connection's send buffer — only on whatever repository/media calls the
// handler itself performs.
func (h *Hub) dispatch(c *Connection, typ string, raw []byte) {
	if typ == TypeAuth {
		if c.getState() != stateOpened {
			c.sendError(pkg.CodeInvalidJSON, "already authenticated")
			return
		}
		h.handleAuth(c, raw)
		return
	}

	if c.getState() == stateOpened {
		c.sendError(pkg.CodeNotAuthenticated, "send auth first")
		return
	}

	if !c.limiter.Allow(categoryFor(typ)) {
		c.sendError(pkg.CodeRateLimited, "rate limit exceeded")
		return
	}

	handler, ok := h.handlers[typ]
	if !ok {
		c.sendError(pkg.CodeUnknownMessage, "unknown message type: "+typ)
		return
	}
	handler(h, c, raw)
}

func categoryFor(typ string) ratelimit.Category {
	switch typ {
	case TypeChat:
		return ratelimit.CategoryChat
	case TypeE2EE:
		return ratelimit.CategoryE2EE
	case TypeSpeaking:
		return ratelimit.CategorySpeaking
	case TypeRTPCapabilities, TypeCreateTransport, TypeConnectTransport, TypeProduce,
		TypeStopProducer, TypeConsume, TypeResumeConsumer, TypeSetPreferredLayers:
		return ratelimit.CategoryMedia
	default:
		return ratelimit.CategoryGeneral
	}
}

// registerAuthenticated installs c as the live connection for its userID,
// evicting and force-closing whatever connection previously held that slot
// so at most one live connection per identity ever exists.
func (h *Hub) registerAuthenticated(c *Connection) {
	h.mu.Lock()
	prev, ok := h.byUser[c.userID]
	h.byUser[c.userID] = c
	h.mu.Unlock()

	if ok && prev != c {
		h.forceClose(prev)
	}
}

// forceClose terminates a connection from outside its own read pump. It
// only tears down the socket; the blocked ReadPump sees the resulting
// error, returns, and its deferred unregister performs the actual
// disconnect cleanup exactly once.
func (h *Hub) forceClose(c *Connection) {
	c.close()
	_ = c.conn.Close()
}

// unregister is the sole owner of disconnect cleanup. It is safe to call
// more than once (ReadPump's defer always calls it) and from any goroutine.
func (h *Hub) unregister(c *Connection) {
	c.cleanupOnce.Do(func() {
		h.runDisconnectCleanup(c)
	})
	c.close()
}

func (h *Hub) connectionsInChannel(serverID, channelID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Connection
	for _, c := range h.byUser {
		c.mu.RLock()
		match := c.serverID == serverID && c.channelID == channelID
		c.mu.RUnlock()
		if match {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) connectionsInServer(serverID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Connection
	for _, c := range h.byUser {
		c.mu.RLock()
		match := c.serverID == serverID
		c.mu.RUnlock()
		if match {
			out = append(out, c)
		}
	}
	return out
}

// BroadcastChannel fans data out to every connection currently in
// (serverID, channelID), skipping excludeUserID. The recipient snapshot is
// taken under lock and released before any network write.
func (h *Hub) BroadcastChannel(serverID, channelID, excludeUserID string, data []byte) {
	for _, c := range h.connectionsInChannel(serverID, channelID) {
		if c.userID == excludeUserID {
			continue
		}
		c.sendFrame(data)
	}
}

// BroadcastServer fans data out to every connection attached to serverID,
// skipping excludeUserID.
func (h *Hub) BroadcastServer(serverID, excludeUserID string, data []byte) {
	for _, c := range h.connectionsInServer(serverID) {
		if c.userID == excludeUserID {
			continue
		}
		c.sendFrame(data)
	}
}

// SendToUser delivers data to userID's single live connection, if any.
func (h *Hub) SendToUser(userID string, data []byte) {
	h.mu.RLock()
	c, ok := h.byUser[userID]
	h.mu.RUnlock()
	if ok {
		c.sendFrame(data)
	}
}

func (h *Hub) connectionForUser(userID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byUser[userID]
	return c, ok
}

// RunHeartbeat pings every live connection on a fixed interval and
// force-closes any that failed to pong since the previous tick. It blocks
// until ctx is cancelled, matching the lifetime of the owning process.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tickHeartbeat()
		}
	}
}

func (h *Hub) tickHeartbeat() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.byUser))
	for _, c := range h.byUser {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		ponged := c.gotPong
		c.gotPong = false
		c.mu.Unlock()

		if !ponged {
			h.forceClose(c)
			continue
		}
		if err := c.ping(); err != nil {
			h.forceClose(c)
		}
	}
}

// Shutdown force-closes every live connection, used on graceful process
// shutdown so no socket is left half-open.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.byUser))
	for _, c := range h.byUser {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.forceClose(c)
	}
}
