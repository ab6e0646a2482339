package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager upgrades HTTP requests to WebSocket connections and
// wires each one into the hub. The hub loop owns the client set; the
// manager only owns the pumps.
type ConnectionManager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration. Origins
// are unrestricted; the deployment sits behind tunnels with arbitrary hosts.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(hub *Hub, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Upgrade promotes an HTTP request to a WebSocket connection, attaches it to
// the hub, and starts its pumps. The role tag is informational: privileged
// intents are gated by the access key flow, not by the route.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, role string) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Conn{
		cid:     uuid.New().String(),
		role:    role,
		ws:      ws,
		send:    make(chan []byte, cm.config.SendBufferSize),
		manager: cm,
	}
	cm.hub.Attach(conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.cid).
		Str("role", role).
		Msg("WebSocket connection established")
	return nil
}

// Conn is one connected client. Outbound frames go through the buffered
// send channel so the hub loop never blocks on a slow socket.
type Conn struct {
	cid     string
	role    string
	ws      *websocket.Conn
	send    chan []byte
	manager *ConnectionManager
}

func (c *Conn) id() string { return c.cid }

func (c *Conn) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("connection_id", c.cid).Msg("send buffer full, dropping frame")
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Error().Err(err).Str("connection_id", c.cid).Msg("failed to write frame")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.cid).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump decodes inbound frames and submits them to the hub. A malformed
// frame is logged and skipped; a dead socket detaches the client.
func (c *Conn) readPump() {
	defer func() {
		c.manager.hub.Detach(c.cid)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.manager.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.cid).Msg("unexpected WebSocket close")
			} else {
				log.Info().Str("connection_id", c.cid).Msg("client disconnected")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Warn().Err(err).Str("connection_id", c.cid).Msg("malformed frame, skipping")
			continue
		}
		c.manager.hub.Submit(c, env)
	}
}
