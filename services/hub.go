package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans battle events out to connected clients and reports disconnects
// back into the battle service. It implements the Notifier interface the
// orchestrator depends on.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	battleService *BattleService
}

type Client struct {
	hub     *Hub
	id      string
	socket  *websocket.Conn
	send    chan []byte
	matchID string
	userID  uint
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetBattleService wires the orchestrator in after construction; the hub and
// the battle service reference each other.
func (h *Hub) SetBattleService(bs *BattleService) {
	h.battleService = bs
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client registered: %s for match %s (player %d) - Total clients: %d", client.id, client.matchID, client.userID, len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client unregistered: %s for match %s (player %d) - Total clients: %d", client.id, client.matchID, client.userID, len(h.clients))
			}
			h.mutex.Unlock()

			// Dropping mid-battle forfeits the match. The presence check
			// happens outside the lock; the battle service serializes the
			// rest.
			if ok && h.battleService != nil {
				if match, live := h.battleService.MatchForPlayer(client.userID); live && match.ID == client.matchID {
					log.Printf("Player %d disconnected from live match %s", client.userID, client.matchID)
					h.battleService.HandleDisconnect(client.matchID, client.userID)
				}
			}

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// BroadcastToMatch sends one event to every client attached to the match.
func (h *Hub) BroadcastToMatch(matchID string, messageType string, payload interface{}) {
	message := Message{
		Type:    messageType,
		Payload: payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if client.matchID != matchID {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	log.Printf("Broadcast %s to match %s reached %d clients", messageType, matchID, sent)
}

// SendMatchSync ships the current snapshot to one client, used when a client
// (re)connects and needs to catch up.
func (h *Hub) SendMatchSync(client *Client) {
	if h.battleService == nil {
		return
	}

	snap, err := h.battleService.SnapshotFor(client.matchID)
	if err != nil {
		log.Printf("No snapshot for match %s requested by client %s: %v", client.matchID, client.id, err)
		return
	}

	message := Message{
		Type:    "match_sync",
		Payload: snap,
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling match sync message: %v", err)
		return
	}

	select {
	case client.send <- data:
	default:
		log.Printf("Client %s send buffer full, dropping match sync", client.id)
	}
}

// ConnectedPlayers lists the player ids attached to a match.
func (h *Hub) ConnectedPlayers(matchID string) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var userIDs []uint
	for client := range h.clients {
		if client.matchID == matchID {
			userIDs = append(userIDs, client.userID)
		}
	}
	return userIDs
}

func (h *Hub) IsPlayerConnected(matchID string, userID uint) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.matchID == matchID && client.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) RegisterClient(conn *websocket.Conn, matchID string, userID uint) *Client {
	client := &Client{
		hub:     h,
		id:      generateClientID(),
		socket:  conn,
		send:    make(chan []byte, 256),
		matchID: matchID,
		userID:  userID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response := Message{
			Type:    "pong",
			Payload: "pong",
		}
		data, _ := json.Marshal(response)
		c.send <- data

	case "request_match_state":
		log.Printf("Player %d requesting state for match %s", c.userID, c.matchID)
		c.hub.SendMatchSync(c)

	default:
		log.Printf("Unknown message type: %s from player %d in match %s", msg.Type, c.userID, c.matchID)
	}
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}
