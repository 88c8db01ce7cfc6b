package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheHyyy/vibe-music/logger"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeError MessageType = "error"
	MsgTypePing  MessageType = "ping"
	MsgTypePong  MessageType = "pong"

	// 客户端 -> 服务端
	MsgTypeRoomJoin     MessageType = "room:join"     // 进入房间（携带 roomId，回 ack）
	MsgTypePlayerUpdate MessageType = "player:update" // 播放时钟上报（HOST/MODERATOR）

	// 服务端 -> 客户端
	MsgTypeRoomState   MessageType = "room:state"   // 全量房间状态（按成员视角）
	MsgTypeQueueUpdate MessageType = "queue:update" // 队列替换
	MsgTypeVoteUpdate  MessageType = "vote:update"  // 单条目票数变化
	MsgTypePlayerSync  MessageType = "player:sync"  // 播放时钟同步
	MsgTypeKicked      MessageType = "user:kicked"  // 被移出房间

	// 双向
	MsgTypeChat     MessageType = "chat:message"  // 聊天消息（含系统消息）
	MsgTypeReaction MessageType = "room:reaction" // 表情反应
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PlayerUpdateData 播放时钟上报数据
type PlayerUpdateData struct {
	RoomID      string  `json:"roomId"`
	IsPaused    bool    `json:"isPaused"`
	CurrentTime float64 `json:"currentTime"` // 秒
}

// ChatData 聊天消息数据
type ChatData struct {
	Content string `json:"content"`
}

// ReactionData 表情反应数据
type ReactionData struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"userId,omitempty"`
}

// Client WebSocket 客户端
type Client struct {
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	RoomID      string
	UserID      string
	DisplayName string
}

// Hub 房间 WebSocket 管理中心
type Hub struct {
	// 房间 -> 客户端集合
	rooms map[string]map[*Client]bool

	// 用户 -> 客户端（一个用户在一个房间只保留一个连接）
	userClients map[string]*Client // key: roomID:userID

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}

	// OnDisconnect 在用户的最后一个连接断开时回调（被新连接顶替不算断开），
	// 由 RoomManager 用来安排离开宽限定时器
	OnDisconnect func(roomID, userID string)
}

type broadcastMessage struct {
	roomID    string
	message   []byte
	excludeID string
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		userClients: make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *broadcastMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	userKey := h.userKey(client.RoomID, client.UserID)

	// 同一用户的旧连接被新连接顶替
	if oldClient, exists := h.userClients[userKey]; exists {
		h.removeClientLocked(oldClient)
	}

	if h.rooms[client.RoomID] == nil {
		h.rooms[client.RoomID] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID][client] = true
	h.userClients[userKey] = client
	h.mu.Unlock()

	logger.Info("client registered",
		logger.String("room", client.RoomID),
		logger.String("user", client.UserID),
		logger.String("displayName", client.DisplayName))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	lastConn := h.removeClientLocked(client)
	h.mu.Unlock()

	logger.Info("client unregistered",
		logger.String("room", client.RoomID),
		logger.String("user", client.UserID))

	// 只有用户的最后一个连接断开才算离线；被顶替的旧连接不触发
	if lastConn && h.OnDisconnect != nil {
		h.OnDisconnect(client.RoomID, client.UserID)
	}
}

// removeClientLocked 移除客户端，需要持有锁。
// 返回该客户端是否是此用户当前注册的连接。
func (h *Hub) removeClientLocked(client *Client) bool {
	roomID := client.RoomID
	userKey := h.userKey(roomID, client.UserID)

	if clients, ok := h.rooms[roomID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)

			if len(clients) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	if h.userClients[userKey] == client {
		delete(h.userClients, userKey)
		return true
	}
	return false
}

func (h *Hub) broadcastToRoom(msg *broadcastMessage) {
	h.mu.RLock()
	clients, ok := h.rooms[msg.roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制客户端列表以避免长时间持有锁
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if msg.excludeID != "" && client.UserID == msg.excludeID {
			continue
		}

		select {
		case client.Send <- msg.message:
		default:
			// 发送缓冲区满，当场移除。不能经 unregister 通道走：
			// 它的唯一消费者就是正在执行本函数的 Run 循环，会自锁死
			h.mu.Lock()
			lastConn := h.removeClientLocked(client)
			h.mu.Unlock()

			logger.Warn("发送缓冲区满，移除客户端",
				logger.String("room", client.RoomID),
				logger.String("user", client.UserID))

			if lastConn && h.OnDisconnect != nil {
				h.OnDisconnect(client.RoomID, client.UserID)
			}
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.userClients = make(map[string]*Client)
}

func (h *Hub) userKey(roomID, userID string) string {
	return roomID + ":" + userID
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast 向房间内全部客户端广播
func (h *Hub) Broadcast(roomID string, msg *WSMessage, excludeUserID string) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast <- &broadcastMessage{roomID: roomID, message: data, excludeID: excludeUserID}
	return nil
}

// SendToUser 发送消息给指定用户
func (h *Hub) SendToUser(roomID, userID string, msg *WSMessage) error {
	h.mu.RLock()
	client := h.userClients[h.userKey(roomID, userID)]
	h.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("user not connected: %s", userID)
	}

	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for user: %s", userID)
	}
}

// ConnectedUsers 返回房间内当前在线的用户ID
func (h *Hub) ConnectedUsers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[roomID]
	users := make([]string, 0, len(clients))
	for client := range clients {
		users = append(users, client.UserID)
	}
	return users
}

// CloseUser 强制断开某个用户的连接（踢人时由调用方先发 kicked 消息）
func (h *Hub) CloseUser(roomID, userID string) {
	h.mu.RLock()
	client := h.userClients[h.userKey(roomID, userID)]
	h.mu.RUnlock()

	if client != nil {
		client.Conn.Close()
	}
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环
func (c *Client) ReadPump(handler func(client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096) // 4KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("room", c.RoomID),
					logger.String("user", c.UserID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format",
				logger.ErrorField(err),
				logger.String("room", c.RoomID))
			continue
		}

		if msg.Type == MsgTypePing {
			pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
			if data, err := json.Marshal(pong); err == nil {
				select {
				case c.Send <- data:
				default:
				}
			}
			continue
		}

		handler(c, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return nil // 缓冲区满，丢弃消息
	}
}
