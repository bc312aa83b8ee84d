package relay

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SingSongScreamAlong/Ok-Box-Box-sub003/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	clientReceiveBufferSize = 256
)

// Broadcaster delivers server-originated messages to connected clients.
// Send targets every connection; SendToSession targets the session's
// broadcast group. ReleaseSession drops a session's group once the session
// is gone.
type Broadcaster interface {
	Send(message protocol.Message) error
	SendToSession(sessionID string, message protocol.Message) error
	ReleaseSession(sessionID string)
}

type NilBroadcaster struct{}

func (NilBroadcaster) Send(message protocol.Message) error {
	logrus.WithField("message", message).Infof("Message send %s", message.MessageType())
	return nil
}

func (NilBroadcaster) SendToSession(sessionID string, message protocol.Message) error {
	logrus.WithField("message", message).Infof("Message send %s to session %s", message.MessageType(), sessionID)
	return nil
}

func (NilBroadcaster) ReleaseSession(string) {}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type relayBroadcast struct {
	// sessionID is empty for messages addressed to every connection.
	sessionID string
	message   protocol.Message
}

type relaySubscription struct {
	client    *relayClient
	sessionID string
}

// RelayHub fans server messages out to websocket clients, keyed by session
// topic. All membership state is owned by the run loop; the channels are
// the only way in.
type RelayHub struct {
	clients map[*relayClient]bool
	topics  map[string]map[*relayClient]bool

	register     chan *relayClient
	unregister   chan *relayClient
	subscribe    chan relaySubscription
	releaseTopic chan string
	broadcast    chan relayBroadcast
}

func NewRelayHub() *RelayHub {
	return &RelayHub{
		clients:      make(map[*relayClient]bool),
		topics:       make(map[string]map[*relayClient]bool),
		register:     make(chan *relayClient),
		unregister:   make(chan *relayClient),
		subscribe:    make(chan relaySubscription),
		releaseTopic: make(chan string),
		broadcast:    make(chan relayBroadcast),
	}
}

func (h *RelayHub) Send(message protocol.Message) error {
	h.broadcast <- relayBroadcast{message: message}

	return nil
}

func (h *RelayHub) SendToSession(sessionID string, message protocol.Message) error {
	h.broadcast <- relayBroadcast{sessionID: sessionID, message: message}

	return nil
}

func (h *RelayHub) ReleaseSession(sessionID string) {
	h.releaseTopic <- sessionID
}

func (h *RelayHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			h.dropClient(client)
		case sub := <-h.subscribe:
			if _, ok := h.topics[sub.sessionID]; !ok {
				h.topics[sub.sessionID] = make(map[*relayClient]bool)
			}

			h.topics[sub.sessionID][sub.client] = true
			h.notifyViewers(sub.sessionID)
		case sessionID := <-h.releaseTopic:
			delete(h.topics, sessionID)
		case broadcast := <-h.broadcast:
			targets := h.clients

			if broadcast.sessionID != "" {
				targets = h.topics[broadcast.sessionID]
			}

			for client := range targets {
				select {
				case client.receive <- broadcast.message:
				default:
					h.dropClient(client)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *RelayHub) dropClient(client *relayClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	client.close()
	delete(h.clients, client)

	var affected []string

	for sessionID, members := range h.topics {
		if members[client] {
			delete(members, client)
			affected = append(affected, sessionID)
		}
	}

	for _, sessionID := range affected {
		h.notifyViewers(sessionID)
	}
}

// notifyViewers pushes the session's current viewer count to every
// remaining subscriber.
func (h *RelayHub) notifyViewers(sessionID string) {
	members := h.topics[sessionID]

	message := protocol.NewRelayViewers(sessionID, len(members))

	for client := range members {
		select {
		case client.receive <- message:
		default:
			h.dropClient(client)
		}
	}
}

type relayClient struct {
	hub *RelayHub

	conn    *websocket.Conn
	receive chan protocol.Message

	// closeMutex guards receive: the read pump enqueues acks from its own
	// goroutine, so closing must be mutually exclusive with send.
	closeMutex sync.Mutex
	closed     bool
}

// Subscribe implements SessionSubscriber for the coordinator.
func (c *relayClient) Subscribe(sessionID string) {
	c.hub.subscribe <- relaySubscription{client: c, sessionID: sessionID}
}

// close shuts the receive channel exactly once. Called only by the hub.
func (c *relayClient) close() {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.receive)
}

func (c *relayClient) writePump() {
	ticker := time.NewTicker(time.Second * 10)
	defer func() {
		if rvr := recover(); rvr != nil {
			logrus.WithField("panic", rvr).Errorf("Recovered from panic")
		}
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.receive:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteJSON(message)

			if err != nil && !strings.HasSuffix(err.Error(), "write: broken pipe") {
				logrus.WithError(err).Errorf("Could not send websocket message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes the connection's message stream in arrival order. Parse
// or validation failures produce a negative ack and drop the message; they
// never close the connection.
func (c *relayClient) readPump(coordinator *SessionCoordinator) {
	defer func() {
		if rvr := recover(); rvr != nil {
			logrus.WithField("panic", rvr).Errorf("Recovered from panic")
		}
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debugf("Relay connection closed")
			}

			return
		}

		message, err := protocol.Parse(data)

		if err != nil {
			if !c.send(protocol.NewErrorAck(protocol.PeekType(data), "", err)) {
				logrus.Warnf("Could not deliver ack to relay client, send buffer full or client dropped")
			}

			continue
		}

		if !c.send(coordinator.HandleMessage(c, message)) {
			logrus.Warnf("Could not deliver %s ack to relay client, send buffer full or client dropped", message.MessageType())
		}
	}
}

// send enqueues a message for the write pump. It reports false when the
// client has been dropped by the hub or its buffer is full.
func (c *relayClient) send(message protocol.Message) bool {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.receive <- message:
		return true
	default:
		return false
	}
}

// RelayWebsocketHandler upgrades inbound relay and dashboard connections.
type RelayWebsocketHandler struct {
	hub         *RelayHub
	coordinator *SessionCoordinator
}

func NewRelayWebsocketHandler(hub *RelayHub, coordinator *SessionCoordinator) *RelayWebsocketHandler {
	return &RelayWebsocketHandler{
		hub:         hub,
		coordinator: coordinator,
	}
}

func (rh *RelayWebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		logrus.Error(err)
		return
	}

	client := &relayClient{hub: rh.hub, conn: conn, receive: make(chan protocol.Message, clientReceiveBufferSize)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump(rh.coordinator)
}
