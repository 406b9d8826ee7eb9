package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"matchfeed-service/logger"
)

// pushMessage Hub 内部的推送单元，matchID 为空表示广播
type pushMessage struct {
	matchID string
	payload []byte
}

// Client WebSocket客户端，可加入若干比赛分组
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.Mutex
	matches map[string]bool // 已加入的比赛分组
}

// Hub 管理所有 WebSocket 客户端和比赛分组推送
type Hub struct {
	clients    map[*Client]bool
	push       chan *pushMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		push:       make(chan *pushMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 运行Hub主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Printf("[Hub] Client registered. Total clients: %d", h.clientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Printf("[Hub] Client unregistered. Total clients: %d", h.clientCount())

		case message := <-h.push:
			h.deliver(message)
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(message *pushMessage) {
	h.mu.RLock()
	stale := make([]*Client, 0)
	for client := range h.clients {
		if message.matchID != "" && !client.inGroup(message.matchID) {
			continue
		}
		select {
		case client.send <- message.payload:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	// 发送缓冲已满的客户端视为掉线
	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		h.mu.Unlock()
	}
}

// PushToMatch 推送给订阅了指定比赛的客户端（实现 services.NotificationPusher）
func (h *Hub) PushToMatch(matchID string, message []byte) {
	h.push <- &pushMessage{matchID: matchID, payload: message}
}

// PushToAll 推送给所有客户端（实现 services.NotificationPusher）
func (h *Hub) PushToAll(message []byte) {
	h.push <- &pushMessage{payload: message}
}

// inGroup 检查客户端是否在比赛分组内
func (c *Client) inGroup(matchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches[matchID]
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("[Hub] WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// clientCommand 客户端发来的分组订阅指令
type clientCommand struct {
	Type    string `json:"type"` // join / leave
	MatchID string `json:"match_id"`
}

// handleMessage 处理客户端的 join/leave 指令
func (c *Client) handleMessage(message []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		logger.Errorf("[Hub] Failed to unmarshal client message: %v", err)
		return
	}

	if cmd.MatchID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Type {
	case "join":
		c.matches[cmd.MatchID] = true
		logger.Printf("[Hub] Client joined match group %s", cmd.MatchID)
	case "leave":
		delete(c.matches, cmd.MatchID)
		logger.Printf("[Hub] Client left match group %s", cmd.MatchID)
	}
}
