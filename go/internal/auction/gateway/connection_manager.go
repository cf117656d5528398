// Package gateway fans auction events out to websocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig tunes the websocket lifecycle.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// TODO: restrict origins once the frontend host is settled.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// client is one websocket subscriber, pinned to a single pool.
type client struct {
	id     string
	userID string
	poolID uuid.UUID
	ws     *websocket.Conn
	send   chan []byte
}

// broadcast targets a pool; a non-empty userID narrows it to that user's
// connections.
type broadcast struct {
	poolID uuid.UUID
	userID string
	event  *AuctionEvent
}

// ConnectionManager tracks websocket clients per pool and serializes all
// fanout through a single broadcast loop. Slow clients are dropped rather
// than allowed to stall the loop.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan broadcast
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcast, 1000),
	}
}

// Start runs the broadcast loop until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case b := <-cm.broadcastCh:
			cm.fanout(b)
		}
	}
}

// UpgradeConnection turns the HTTP request into a websocket subscription on
// the pool and starts the client's pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, poolID uuid.UUID) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("gateway: upgrade connection: %w", err)
	}

	c := &client{
		id:     uuid.New().String(),
		userID: userID,
		poolID: poolID,
		ws:     ws,
		send:   make(chan []byte, 256),
	}
	cm.add(c)

	go cm.writePump(c)
	go cm.readPump(c)

	log.Info().
		Str("connection_id", c.id).
		Str("user_id", userID).
		Str("pool_id", poolID.String()).
		Msg("websocket client connected")
	return nil
}

// BroadcastToPool queues an event for every client watching the pool.
func (cm *ConnectionManager) BroadcastToPool(poolID uuid.UUID, event *AuctionEvent) {
	select {
	case cm.broadcastCh <- broadcast{poolID: poolID, event: event}:
	default:
		log.Warn().Str("pool_id", poolID.String()).Msg("broadcast channel full, dropping event")
	}
}

// BroadcastToUser queues an event for one user's connections in the pool.
func (cm *ConnectionManager) BroadcastToUser(poolID uuid.UUID, userID string, event *AuctionEvent) {
	select {
	case cm.broadcastCh <- broadcast{poolID: poolID, userID: userID, event: event}:
	default:
		log.Warn().
			Str("pool_id", poolID.String()).
			Str("user_id", userID).
			Msg("broadcast channel full, dropping user event")
	}
}

// GetConnectionStats reports per-pool connection counts for the stats
// endpoint.
func (cm *ConnectionManager) GetConnectionStats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perPool := make(map[string]int, len(cm.clients))
	for poolID, set := range cm.clients {
		total += len(set)
		perPool[poolID.String()] = len(set)
	}
	return map[string]any{
		"total_connections": total,
		"active_pools":      len(cm.clients),
		"pool_connections":  perPool,
	}
}

func (cm *ConnectionManager) add(c *client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.clients[c.poolID] == nil {
		cm.clients[c.poolID] = make(map[*client]struct{})
	}
	cm.clients[c.poolID][c] = struct{}{}
}

// remove detaches the client and closes its send channel exactly once.
func (cm *ConnectionManager) remove(c *client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	set, ok := cm.clients[c.poolID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(cm.clients, c.poolID)
	}

	log.Debug().
		Str("connection_id", c.id).
		Str("pool_id", c.poolID.String()).
		Msg("websocket client disconnected")
}

func (cm *ConnectionManager) fanout(b broadcast) {
	cm.mu.RLock()
	var targets []*client
	for c := range cm.clients[b.poolID] {
		if b.userID != "" && c.userID != b.userID {
			continue
		}
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(b.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast event")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Backed-up client. Cut it loose; it can reconnect and resync
			// from a snapshot.
			log.Warn().
				Str("connection_id", c.id).
				Str("user_id", c.userID).
				Msg("client send buffer full, dropping connection")
			cm.remove(c)
			c.ws.Close()
		}
	}
}

func (cm *ConnectionManager) writePump(c *client) {
	ticker := time.NewTicker(cm.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		cm.remove(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the socket. Bids go through the HTTP API, not the socket,
// so inbound frames only keep the read deadline alive.
func (cm *ConnectionManager) readPump(c *client) {
	defer func() {
		cm.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(cm.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}
