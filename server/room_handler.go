package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/TheHyyy/vibe-music/core/auth"
	"github.com/TheHyyy/vibe-music/core/room"
	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

var (
	errNoToken   = errors.New("未登录")
	errWrongRoom = errors.New("无权访问")
)

// RoomHandler 房间 HTTP / WebSocket 处理器
type RoomHandler struct {
	manager  *room.Manager
	issuer   *auth.Issuer
	upgrader websocket.Upgrader
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(manager *room.Manager, issuer *auth.Issuer) *RoomHandler {
	return &RoomHandler{
		manager: manager,
		issuer:  issuer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// newUserID 匿名访客身份：进房即分配，不做账号体系
func newUserID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// authRoom 解析 Bearer 令牌并校验令牌与路径里的房间一致
func (h *RoomHandler) authRoom(r *http.Request, roomID string) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return nil, errNoToken
	}
	claims, err := h.issuer.VerifyToken(strings.TrimSpace(token))
	if err != nil {
		return nil, errNoToken
	}
	if claims.RoomID != roomID {
		return nil, errWrongRoom
	}
	return claims, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errWrongRoom):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ========== 房间管理 ==========

// ListRoomsHandler 大厅房间列表
func (h *RoomHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.manager.Store().ListRooms())
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"displayName"`
	Password    string               `json:"password,omitempty"`
	Settings    *model.SettingsPatch `json:"settings,omitempty"`
}

// CreateRoomHandler 创建房间。创建者获得访客身份和会话令牌，自动成为房主。
func (h *RoomHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Name == "" || len([]rune(req.Name)) > 120 {
		writeError(w, http.StatusBadRequest, "房间名长度需在 1-120 之间")
		return
	}
	if req.DisplayName == "" || len([]rune(req.DisplayName)) > 80 {
		writeError(w, http.StatusBadRequest, "昵称长度需在 1-80 之间")
		return
	}

	userID := newUserID()
	rm, host, err := h.manager.CreateRoom(room.CreateRoomInput{
		Name:     req.Name,
		HostID:   userID,
		HostName: req.DisplayName,
		Password: req.Password,
	}, req.Settings)
	if err != nil {
		logger.Error("创建房间失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := h.issuer.SignToken(host.ID, rm.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := h.manager.State(rm.ID, host.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{"roomId": rm.ID, "token": token, "state": state})
}

// JoinByCodeRequest 按邀请码加入请求
type JoinByCodeRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password,omitempty"`
}

// JoinByCodeHandler 按邀请码加入房间
func (h *RoomHandler) JoinByCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req JoinByCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Code == "" || req.DisplayName == "" || len([]rune(req.DisplayName)) > 80 {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	userID := newUserID()
	roomID, member, err := h.manager.JoinByCode(req.Code, room.JoinInput{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.issuer.SignToken(member.ID, roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := h.manager.State(roomID, member.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{"roomId": roomID, "token": token, "state": state})
}

// JoinByIDRequest 按房间ID加入请求
type JoinByIDRequest struct {
	DisplayName string `json:"displayName"`
	Password    string `json:"password,omitempty"`
	InviteToken string `json:"inviteToken,omitempty"`
}

// JoinByIDHandler 按房间ID加入（分享链接场景，可带邀请令牌绕过密码）
func (h *RoomHandler) JoinByIDHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]

	var req JoinByIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || len([]rune(req.DisplayName)) > 80 {
		writeError(w, http.StatusBadRequest, "昵称长度需在 1-80 之间")
		return
	}

	userID := newUserID()
	member, err := h.manager.Join(roomID, room.JoinInput{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		InviteToken: req.InviteToken,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.issuer.SignToken(member.ID, roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := h.manager.State(roomID, member.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{"roomId": roomID, "token": token, "state": state})
}

// PublicInfoHandler 未加入用户可见的房间信息
func (h *RoomHandler) PublicInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Store().PublicInfo(mux.Vars(r)["room_id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, info)
}

// StateHandler 当前成员视角的房间状态
func (h *RoomHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	state, err := h.manager.State(roomID, claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, state)
}

// SettingsHandler 部分更新房间设置
func (h *RoomHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var patch model.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	settings, err := h.manager.UpdateSettings(roomID, claims.UserID, patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, settings)
}

// KickRequest 踢人请求
type KickRequest struct {
	UserID string `json:"userId"`
	Ban    bool   `json:"ban,omitempty"`
}

// KickHandler 房主踢人，可选拉黑
func (h *RoomHandler) KickHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	if err := h.manager.Kick(roomID, claims.UserID, req.UserID, req.Ban); err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]bool{"ok": true})
}

// ========== 队列与播放 ==========

// EnqueueRequest 点歌请求
type EnqueueRequest struct {
	Song model.Song `json:"song"`
}

// EnqueueHandler 点歌
func (h *RoomHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if req.Song.ID == "" || req.Song.Title == "" {
		writeError(w, http.StatusBadRequest, "无效的歌曲")
		return
	}

	item, err := h.manager.Enqueue(roomID, claims.UserID, req.Song)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, item)
}

// VoteRequest 投票请求
type VoteRequest struct {
	Type model.VoteType `json:"type"`
}

// VoteHandler 对队列条目投票
func (h *RoomHandler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID, itemID := vars["room_id"], vars["item_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	switch req.Type {
	case model.VoteUp, model.VoteDown, model.VoteSkip:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("无效的投票类型: %s", req.Type))
		return
	}

	result, err := h.manager.Vote(roomID, claims.UserID, itemID, req.Type)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{
		"itemId":    itemID,
		"voteScore": result.Score,
		"skipVotes": result.SkipCount,
	})
}

// NextRequest 管理员切歌请求
type NextRequest struct {
	CurrentSongID string `json:"currentSongId,omitempty"`
}

// NextHandler 房主/管理员切歌
func (h *RoomHandler) NextHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req NextRequest
	// 请求体可选
	json.NewDecoder(r.Body).Decode(&req)

	nowPlaying, err := h.manager.Advance(roomID, claims.UserID, req.CurrentSongID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{"nowPlaying": nowPlaying})
}

// EndedRequest 曲目播完上报
type EndedRequest struct {
	SongID string `json:"songId"`
}

// EndedHandler 客户端上报当前曲目播完
func (h *RoomHandler) EndedHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	claims, err := h.authRoom(r, roomID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req EndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SongID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	nowPlaying, err := h.manager.Ended(roomID, claims.UserID, req.SongID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, map[string]any{"nowPlaying": nowPlaying})
}

// ========== WebSocket ==========

// WSHandler WebSocket 接入。令牌经 query 参数传递（浏览器 WebSocket
// 无法自定义请求头），房间以令牌载荷为准。
func (h *RoomHandler) WSHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "未登录")
		return
	}
	claims, err := h.issuer.VerifyToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "未登录")
		return
	}
	if claims.RoomID != roomID {
		writeError(w, http.StatusForbidden, "无权访问")
		return
	}

	member, err := h.manager.Store().Member(roomID, claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	client := &room.Client{
		Hub:         h.manager.Hub(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		RoomID:      roomID,
		UserID:      claims.UserID,
		DisplayName: member.DisplayName,
	}
	h.manager.Hub().Register(client)
	h.manager.HandleSocketJoin(client)

	go client.WritePump()
	go client.ReadPump(h.manager.HandleMessage)
}
