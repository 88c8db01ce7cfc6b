package room

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

const maxChatLength = 500

// Recommender 自动点歌推荐源。播放器空闲时 Manager 向它要一首歌。
type Recommender interface {
	Hot(ctx context.Context) (*model.Song, error)
}

// autoplayUser 自动点歌的合成身份。不是房间成员，不受点歌配额约束。
var autoplayUser = model.UserSummary{
	ID:          "autoplay-bot",
	DisplayName: "自动点歌",
	Role:        model.RoleMember,
}

// Manager 房间业务编排层：把 Store 的状态变更和 Hub 的广播、
// Scheduler 的延迟任务、Recommender 的自动点歌串起来。
// HTTP 层和 WebSocket 层都只经由 Manager 触发变更。
type Manager struct {
	store       *Store
	hub         *Hub
	scheduler   *Scheduler
	recommender Recommender
	leaveGrace  time.Duration
}

// NewManager 创建 Manager 并接管 Hub 的断线回调
func NewManager(store *Store, hub *Hub, scheduler *Scheduler, recommender Recommender, leaveGrace time.Duration) *Manager {
	m := &Manager{
		store:       store,
		hub:         hub,
		scheduler:   scheduler,
		recommender: recommender,
		leaveGrace:  leaveGrace,
	}
	hub.OnDisconnect = m.HandleDisconnect
	return m
}

// Store 暴露注册表供只读查询（房间列表、公开信息等）
func (m *Manager) Store() *Store {
	return m.store
}

// Hub 暴露 WebSocket 管理中心供接入层注册连接
func (m *Manager) Hub() *Hub {
	return m.hub
}

// ========== 房间生命周期 ==========

// CreateRoom 创建房间，可附带初始设置
func (m *Manager) CreateRoom(input CreateRoomInput, settings *model.SettingsPatch) (*model.Room, model.UserSummary, error) {
	rm, host, err := m.store.CreateRoom(input)
	if err != nil {
		return nil, model.UserSummary{}, err
	}
	if settings != nil {
		updated, err := m.store.UpdateSettings(rm.ID, host.ID, *settings)
		if err != nil {
			logger.Warn("创建房间时的初始设置无效，使用默认设置",
				logger.String("roomId", rm.ID),
				logger.ErrorField(err))
		} else {
			rm.Settings = updated
		}
	}
	return rm, host, nil
}

// JoinByCode 按邀请码加入房间
func (m *Manager) JoinByCode(code string, input JoinInput) (string, model.UserSummary, error) {
	roomID, err := m.store.LookupByCode(code)
	if err != nil {
		return "", model.UserSummary{}, err
	}
	member, err := m.store.Join(roomID, input)
	if err != nil {
		return "", model.UserSummary{}, err
	}
	return roomID, member, nil
}

// Join 按房间ID加入
func (m *Manager) Join(roomID string, input JoinInput) (model.UserSummary, error) {
	return m.store.Join(roomID, input)
}

// State 某成员视角的房间状态
func (m *Manager) State(roomID, userID string) (*model.RoomStatePayload, error) {
	return m.store.StateForUser(roomID, userID)
}

// UpdateSettings 修改房间设置并向全房间广播新状态
func (m *Manager) UpdateSettings(roomID, userID string, patch model.SettingsPatch) (model.RoomSettings, error) {
	settings, err := m.store.UpdateSettings(roomID, userID, patch)
	if err != nil {
		return model.RoomSettings{}, err
	}
	m.broadcastRoomState(roomID)
	return settings, nil
}

// Kick 房主把成员移出房间。ban 为 true 时同时拉黑，禁止再次加入。
func (m *Manager) Kick(roomID, operatorID, targetID string, ban bool) error {
	operator, err := m.store.Member(roomID, operatorID)
	if err != nil {
		return err
	}
	if operator.Role != model.RoleHost {
		return ErrUnauthorized
	}
	target, err := m.store.Member(roomID, targetID)
	if err != nil {
		return err
	}
	if target.Role == model.RoleHost {
		return ErrUnauthorized
	}

	// 先通知被踢者再断开，确保客户端能区分被踢和普通断线
	m.hub.SendToUser(roomID, targetID, &WSMessage{
		Type:   MsgTypeKicked,
		RoomID: roomID,
	})
	m.hub.CloseUser(roomID, targetID)
	m.scheduler.Cancel(TimerLeave, roomID, targetID)

	if ban {
		err = m.store.Ban(roomID, targetID)
	} else {
		err = m.store.RemoveMember(roomID, targetID)
	}
	if err != nil {
		return err
	}

	logger.Info("用户被移出房间",
		logger.String("roomId", roomID),
		logger.String("targetId", targetID),
		logger.String("operatorId", operatorID),
		logger.Bool("banned", ban))

	m.broadcastRoomState(roomID)
	m.broadcastSystemMessage(roomID, target.DisplayName+" 被移出了房间")
	return nil
}

// ========== 队列与投票 ==========

// Enqueue 成员点歌。空闲直接开播时广播全量状态，否则只替换队列。
func (m *Manager) Enqueue(roomID, userID string, song model.Song) (*model.QueueItem, error) {
	member, err := m.store.Member(roomID, userID)
	if err != nil {
		return nil, err
	}

	item, startedPlaying, err := m.store.Enqueue(roomID, member, song)
	if err != nil {
		return nil, err
	}

	if startedPlaying {
		m.broadcastRoomState(roomID)
		m.broadcastSystemMessage(roomID, "切歌: "+songLabel(item.Song))
	} else {
		m.broadcastQueueUpdate(roomID)
	}
	return item, nil
}

// Vote 成员投票。达到跳过阈值时立刻切歌。
func (m *Manager) Vote(roomID, userID, itemID string, vt model.VoteType) (VoteResult, error) {
	if _, err := m.store.Member(roomID, userID); err != nil {
		return VoteResult{}, err
	}

	result, err := m.store.Vote(roomID, userID, itemID, vt)
	if err != nil {
		return VoteResult{}, err
	}

	m.hub.Broadcast(roomID, &WSMessage{
		Type:   MsgTypeVoteUpdate,
		RoomID: roomID,
		Data: mustMarshal(map[string]any{
			"itemId":    itemID,
			"voteScore": result.Score,
			"skipVotes": result.SkipCount,
		}),
	}, "")
	m.broadcastQueueUpdate(roomID)

	if result.ShouldSkip {
		logger.Info("跳过票达到阈值，切歌",
			logger.String("roomId", roomID),
			logger.String("itemId", itemID),
			logger.Int("skipVotes", result.SkipCount))
		m.advanceAndBroadcast(roomID, itemID)
	} else if result.OnNowPlaying {
		// 当前播放的票数不在 queue:update 里，需要全量状态同步
		m.broadcastRoomState(roomID)
	}
	return result, nil
}

// Advance 房主/管理员主动切歌。expectedCurrentID 可选，传入时与
// Ended 相同的幂等保护生效（客户端连点切歌按钮只切一次）。
func (m *Manager) Advance(roomID, userID, expectedCurrentID string) (*model.QueueItem, error) {
	role := m.store.Role(roomID, userID)
	if role != model.RoleHost && role != model.RoleModerator {
		if !m.store.Exists(roomID) {
			return nil, ErrRoomNotFound
		}
		return nil, ErrUnauthorized
	}
	return m.advanceAndBroadcast(roomID, expectedCurrentID)
}

// Ended 客户端上报当前曲目播完。expectedCurrentID 是客户端认为
// 刚播完的条目，多个客户端同时上报只有第一个会真正切歌。
func (m *Manager) Ended(roomID, userID, expectedCurrentID string) (*model.QueueItem, error) {
	if _, err := m.store.Member(roomID, userID); err != nil {
		return nil, err
	}
	return m.advanceAndBroadcast(roomID, expectedCurrentID)
}

// advanceAndBroadcast 推进播放并广播。切到空队列时触发自动点歌。
func (m *Manager) advanceAndBroadcast(roomID, expectedCurrentID string) (*model.QueueItem, error) {
	next, advanced, err := m.store.Advance(roomID, expectedCurrentID)
	if err != nil {
		return nil, err
	}
	if !advanced {
		return next, nil
	}

	m.broadcastRoomState(roomID)
	if next != nil {
		m.broadcastSystemMessage(roomID, "切歌: "+songLabel(next.Song))
	} else if m.recommender != nil {
		go m.autoplay(roomID)
	}
	return next, nil
}

// autoplay 播放器空闲时向推荐源要一首歌。请求期间状态可能已经变化，
// 落地经由 EnqueueIfIdle 重新校验。
func (m *Manager) autoplay(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	song, err := m.recommender.Hot(ctx)
	if err != nil || song == nil {
		logger.Warn("自动点歌获取推荐失败",
			logger.String("roomId", roomID),
			logger.ErrorField(err))
		return
	}

	item, started, err := m.store.EnqueueIfIdle(roomID, autoplayUser, *song)
	if err != nil || item == nil {
		return
	}
	if started {
		logger.Info("自动点歌开播",
			logger.String("roomId", roomID),
			logger.String("songTitle", song.Title))
		m.broadcastRoomState(roomID)
		m.broadcastSystemMessage(roomID, "切歌: "+songLabel(*song))
	}
}

// ========== 播放时钟 ==========

// UpdatePlayback 播放时钟上报，成功后向其余成员同步
func (m *Manager) UpdatePlayback(roomID, userID string, isPaused bool, currentTime float64) (model.PlaybackState, error) {
	state, err := m.store.UpdatePlayback(roomID, userID, isPaused, currentTime)
	if err != nil {
		return model.PlaybackState{}, err
	}

	m.hub.Broadcast(roomID, &WSMessage{
		Type:   MsgTypePlayerSync,
		RoomID: roomID,
		UserID: userID,
		Data:   mustMarshal(state),
	}, userID)
	return state, nil
}

// ========== WebSocket 回调 ==========

// HandleSocketJoin 客户端 WebSocket 上线。取消离开宽限定时器；
// 真正的新上线（不是断线重连）才播报加入。空闲房间触发自动点歌。
func (m *Manager) HandleSocketJoin(client *Client) {
	reconnected := m.scheduler.Cancel(TimerLeave, client.RoomID, client.UserID)
	if reconnected {
		logger.Info("用户断线重连，取消离开计划",
			logger.String("roomId", client.RoomID),
			logger.String("userId", client.UserID))
	}

	if payload, err := m.store.StateForUser(client.RoomID, client.UserID); err == nil {
		client.SendMessage(&WSMessage{
			Type:   MsgTypeRoomState,
			RoomID: client.RoomID,
			Data:   mustMarshal(payload),
		})
	}

	if !reconnected {
		m.broadcastRoomState(client.RoomID)
		m.broadcastSystemMessage(client.RoomID, client.DisplayName+" 加入了房间")
	}

	if m.recommender != nil && m.store.Idle(client.RoomID) {
		go m.autoplay(client.RoomID)
	}
}

// HandleDisconnect Hub 回调：用户最后一个连接断开。不立即移除成员，
// 先安排宽限定时器，宽限期内重连可无感恢复。
func (m *Manager) HandleDisconnect(roomID, userID string) {
	if !m.store.Exists(roomID) {
		return
	}

	logger.Info("用户断线，安排延迟离开",
		logger.String("roomId", roomID),
		logger.String("userId", userID),
		logger.Any("delay", m.leaveGrace))

	m.scheduler.Arm(TimerLeave, roomID, userID, m.leaveGrace, func() {
		member, err := m.store.Member(roomID, userID)
		if err != nil {
			return
		}
		if err := m.store.RemoveMember(roomID, userID); err != nil {
			return
		}

		logger.Info("离开宽限到期，移除成员",
			logger.String("roomId", roomID),
			logger.String("userId", userID))

		m.broadcastRoomState(roomID)
		m.broadcastSystemMessage(roomID, member.DisplayName+" 离开了房间")
	})
}

// HandleMessage WebSocket 消息分发
func (m *Manager) HandleMessage(client *Client, msg *WSMessage) {
	switch msg.Type {
	case MsgTypeRoomJoin:
		m.HandleSocketJoin(client)

	case MsgTypePlayerUpdate:
		var data PlayerUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.sendError(client, "无效的播放状态数据")
			return
		}
		if _, err := m.UpdatePlayback(client.RoomID, client.UserID, data.IsPaused, data.CurrentTime); err != nil {
			m.sendError(client, err.Error())
		}

	case MsgTypeChat:
		m.handleChat(client, msg)

	case MsgTypeReaction:
		var data ReactionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		data.UserID = client.UserID
		m.hub.Broadcast(client.RoomID, &WSMessage{
			Type:   MsgTypeReaction,
			RoomID: client.RoomID,
			UserID: client.UserID,
			Data:   mustMarshal(data),
		}, "")

	default:
		m.sendError(client, "未知的消息类型: "+string(msg.Type))
	}
}

func (m *Manager) handleChat(client *Client, msg *WSMessage) {
	var data ChatData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}
	content := strings.TrimSpace(data.Content)
	if content == "" || len([]rune(content)) > maxChatLength {
		return
	}
	if _, err := m.store.Member(client.RoomID, client.UserID); err != nil {
		return
	}

	chat := model.ChatMessage{
		ID:          uuid.NewString(),
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
		Content:     content,
		Timestamp:   time.Now().UnixMilli(),
	}
	m.hub.Broadcast(client.RoomID, &WSMessage{
		Type:   MsgTypeChat,
		RoomID: client.RoomID,
		UserID: client.UserID,
		Data:   mustMarshal(chat),
	}, "")
}

// ========== 广播 ==========

// broadcastRoomState 向每个成员推送各自视角的全量状态。
// 所有视角在同一个临界区内取出，和触发广播的变更保持先后一致。
func (m *Manager) broadcastRoomState(roomID string) {
	snapshots, err := m.store.SnapshotAll(roomID)
	if err != nil {
		return
	}
	for userID, payload := range snapshots {
		m.hub.SendToUser(roomID, userID, &WSMessage{
			Type:   MsgTypeRoomState,
			RoomID: roomID,
			Data:   mustMarshal(payload),
		})
	}
}

func (m *Manager) broadcastQueueUpdate(roomID string) {
	queue, err := m.store.QueueSnapshot(roomID)
	if err != nil {
		return
	}
	m.hub.Broadcast(roomID, &WSMessage{
		Type:   MsgTypeQueueUpdate,
		RoomID: roomID,
		Data:   mustMarshal(map[string]any{"queue": queue}),
	}, "")
}

func (m *Manager) broadcastSystemMessage(roomID, content string) {
	chat := model.ChatMessage{
		ID:          uuid.NewString(),
		UserID:      "system",
		DisplayName: "系统",
		Content:     content,
		Timestamp:   time.Now().UnixMilli(),
		Type:        "SYSTEM",
	}
	m.hub.Broadcast(roomID, &WSMessage{
		Type:   MsgTypeChat,
		RoomID: roomID,
		Data:   mustMarshal(chat),
	}, "")
}

func (m *Manager) sendError(client *Client, message string) {
	client.SendMessage(&WSMessage{
		Type: MsgTypeError,
		Data: mustMarshal(map[string]string{"message": message}),
	})
}

func songLabel(song model.Song) string {
	if song.Artist == "" {
		return song.Title
	}
	return song.Title + " - " + song.Artist
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("序列化广播数据失败", logger.ErrorField(err))
		return json.RawMessage("{}")
	}
	return data
}
