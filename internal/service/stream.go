package service

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/notify"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// sendBuffer bounds the per-connection event queue. A subscriber that
// cannot drain this many events loses the overflow; delivery is
// best-effort by contract.
const sendBuffer = 32

// StreamService upgrades connections to websockets and binds their
// lifetime to channel subscriptions. Clients drive subscriptions with
// {"action":"subscribe"|"unsubscribe","group_id":"..."} messages and
// receive events as JSON. Disconnecting drops all subscriptions; there
// is no replay on reconnect.
type StreamService struct {
	channel *notify.Channel
}

// NewStreamService creates a new StreamService.
func NewStreamService(channel *notify.Channel) *StreamService {
	return &StreamService{channel: channel}
}

// wsClient is one websocket connection registered as a channel
// subscriber.
type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan models.Event
	done   chan struct{}
}

func (c *wsClient) UserID() string { return c.userID }

// Deliver enqueues without blocking; a full buffer or closed connection
// drops the event.
func (c *wsClient) Deliver(e models.Event) bool {
	select {
	case <-c.done:
		return false
	case c.send <- e:
		return true
	default:
		return false
	}
}

type subscribeMsg struct {
	Action  string `json:"action"`
	GroupID string `json:"group_id"`
}

// Handle upgrades the request and runs the connection until the client
// goes away.
func (s *StreamService) Handle(w http.ResponseWriter, r *http.Request) {
	actor, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", actor.UserID, "error", err)
		return
	}

	client := &wsClient{
		userID: actor.UserID,
		conn:   conn,
		send:   make(chan models.Event, sendBuffer),
		done:   make(chan struct{}),
	}

	slog.Info("stream connected", "user_id", actor.UserID)
	go s.writePump(client)
	s.readPump(client)
}

// readPump consumes subscription messages until the connection dies,
// then tears everything down.
func (s *StreamService) readPump(c *wsClient) {
	defer func() {
		s.channel.Drop(c)
		close(c.done)
		c.conn.Close()
		slog.Info("stream disconnected", "user_id", c.userID)
	}()

	for {
		var msg subscribeMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.GroupID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			s.channel.Subscribe(c, msg.GroupID)
		case "unsubscribe":
			s.channel.Unsubscribe(c, msg.GroupID)
		}
	}
}

func (s *StreamService) writePump(c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
