package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheHyyy/vibe-music/core/auth"
	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6
	maxHistory  = 50

	// 定宽 UTC 时间格式：同进程内字典序等价于时间序（RFC3339Nano 会裁掉
	// 末尾的 0，字典序不再单调，不能用）。
	createdAtLayout = "2006-01-02T15:04:05.000000000Z"
)

// voteKey 一人一票：同一 voter 对同一条目只保留最后一次选择
type voteKey struct {
	itemID  string
	voterID string
}

// record 单个房间的聚合状态。除注册表外所有结构都私有于一个房间，
// 只能经由 Store 的方法访问。
type record struct {
	room       model.Room
	members    map[string]model.UserSummary
	queue      []*model.QueueItem
	history    []*model.QueueItem
	nowPlaying *model.QueueItem
	playback   model.PlaybackState
	blacklist  map[string]struct{}
	votes      map[voteKey]model.VoteType
}

// Store 房间注册表 + 成员管理
// 进程内唯一的跨房间共享状态是 rooms 和 codeIndex 两张表。所有公开方法
// 在一次加锁内完成校验与变更（先校验后变更，失败不留下半成品状态），
// 对应单线程事件循环语义在 Go 里的等价物。
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*record
	codeIndex map[string]string // 大写邀请码 -> roomID

	scheduler    *Scheduler
	destroyGrace time.Duration
}

// NewStore 创建房间注册表
func NewStore(scheduler *Scheduler, destroyGrace time.Duration) *Store {
	return &Store{
		rooms:        make(map[string]*record),
		codeIndex:    make(map[string]string),
		scheduler:    scheduler,
		destroyGrace: destroyGrace,
	}
}

// DefaultSettings 房间默认设置
func DefaultSettings() model.RoomSettings {
	return model.RoomSettings{
		AllowAnonymous:      true,
		AllowDuplicateSongs: false,
		MaxQueuedPerUser:    30,
		SkipVoteThreshold:   2,
	}
}

// CreateRoomInput 创建房间入参
type CreateRoomInput struct {
	Name     string
	HostID   string
	HostName string
	Password string // 明文，存储前做 bcrypt
}

// CreateRoom 创建房间，房主自动成为首个成员
func (s *Store) CreateRoom(input CreateRoomInput) (*model.Room, model.UserSummary, error) {
	var passwordHash string
	if input.Password != "" {
		hash, err := auth.HashPassword(input.Password)
		if err != nil {
			return nil, model.UserSummary{}, fmt.Errorf("创建房间失败: %w", err)
		}
		passwordHash = hash
	}

	host := model.UserSummary{
		ID:          input.HostID,
		DisplayName: input.HostName,
		Role:        model.RoleHost,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.generateUniqueCodeLocked()
	if err != nil {
		return nil, model.UserSummary{}, err
	}

	rm := model.Room{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Code:         code,
		HostID:       host.ID,
		Settings:     DefaultSettings(),
		PasswordHash: passwordHash,
		InviteToken:  strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
	}

	rec := &record{
		room:      rm,
		members:   map[string]model.UserSummary{host.ID: host},
		blacklist: make(map[string]struct{}),
		votes:     make(map[voteKey]model.VoteType),
	}
	s.rooms[rm.ID] = rec
	s.codeIndex[code] = rm.ID

	logger.Info("房间创建成功",
		logger.String("roomId", rm.ID),
		logger.String("code", code),
		logger.String("hostId", host.ID),
		logger.String("roomName", rm.Name))

	roomCopy := rm
	return &roomCopy, host, nil
}

// generateUniqueCodeLocked 生成未被占用的6位邀请码，需要持有锁
func (s *Store) generateUniqueCodeLocked() (string, error) {
	for i := 0; i < 100; i++ {
		buf := make([]byte, codeLength)
		for j := range buf {
			buf[j] = codeCharset[rand.Intn(len(codeCharset))]
		}
		code := string(buf)
		if _, exists := s.codeIndex[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("无法生成唯一房间邀请码")
}

// LookupByCode 按邀请码查房间ID（大小写不敏感）
func (s *Store) LookupByCode(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.codeIndex[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", ErrRoomNotFound
	}
	return roomID, nil
}

// JoinInput 加入房间入参
type JoinInput struct {
	UserID      string
	DisplayName string
	Password    string // 明文
	InviteToken string // 有效的邀请令牌可绕过密码
}

// Join 加入房间。重复加入幂等：已在房间内直接返回现有成员。
// 任何成功的加入都会取消待触发的房间销毁定时器。
func (s *Store) Join(roomID string, input JoinInput) (model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return model.UserSummary{}, ErrRoomNotFound
	}
	if _, banned := rec.blacklist[input.UserID]; banned {
		return model.UserSummary{}, ErrBlacklisted
	}
	if rec.room.HasPassword() {
		inviteValid := input.InviteToken != "" && input.InviteToken == rec.room.InviteToken
		if !inviteValid && !auth.CheckPasswordHash(input.Password, rec.room.PasswordHash) {
			return model.UserSummary{}, ErrInvalidPassword
		}
	}

	// 有人进来了，撤销空房销毁
	if s.scheduler.Cancel(TimerDestroy, roomID, "") {
		logger.Info("取消房间销毁计划", logger.String("roomId", roomID))
	}

	if existing, ok := rec.members[input.UserID]; ok {
		return existing, nil
	}

	role := model.RoleMember
	if rec.room.HostID == input.UserID {
		role = model.RoleHost
	}
	member := model.UserSummary{
		ID:          input.UserID,
		DisplayName: input.DisplayName,
		Role:        role,
	}
	rec.members[member.ID] = member

	logger.Info("用户加入房间",
		logger.String("roomId", roomID),
		logger.String("userId", member.ID),
		logger.String("displayName", member.DisplayName))

	return member, nil
}

// Member 查询房间成员
func (s *Store) Member(roomID, userID string) (model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return model.UserSummary{}, ErrRoomNotFound
	}
	member, ok := rec.members[userID]
	if !ok {
		return model.UserSummary{}, ErrMemberNotFound
	}
	return member, nil
}

// Role 查询成员角色，纯查询，永不报错；不在房间返回空串
func (s *Store) Role(roomID, userID string) model.RoomRole {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return ""
	}
	member, ok := rec.members[userID]
	if !ok {
		return ""
	}
	return member.Role
}

// RemoveMember 移除成员。成员数归零时安排空房销毁（重复安排是幂等的，
// Scheduler 会替换同键定时器）。
func (s *Store) RemoveMember(roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	delete(rec.members, userID)

	if len(rec.members) == 0 {
		logger.Info("房间已空，安排延迟销毁",
			logger.String("roomId", roomID),
			logger.Any("delay", s.destroyGrace))
		s.scheduler.Arm(TimerDestroy, roomID, "", s.destroyGrace, func() {
			s.destroyIfEmpty(roomID)
		})
	}
	return nil
}

// Ban 拉黑并移除成员，被拉黑的用户无法再次加入
func (s *Store) Ban(roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	rec.blacklist[userID] = struct{}{}
	delete(rec.members, userID)

	if len(rec.members) == 0 {
		s.scheduler.Arm(TimerDestroy, roomID, "", s.destroyGrace, func() {
			s.destroyIfEmpty(roomID)
		})
	}
	return nil
}

// destroyIfEmpty 定时器到期回调。到期时重新校验房间仍为空——
// 宽限期内可能有人加入（加入会取消定时器，但必须防御触发与取消的竞争）。
func (s *Store) destroyIfEmpty(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok || len(rec.members) != 0 {
		return
	}

	delete(s.rooms, roomID)
	delete(s.codeIndex, rec.room.Code)
	s.scheduler.CancelRoom(roomID)

	logger.Info("销毁空房间",
		logger.String("roomId", roomID),
		logger.String("roomName", rec.room.Name))
}

// UpdateSettings 部分更新房间设置，仅房主可调用。
// 先整体校验再整体落地，非法取值不产生任何变更。
func (s *Store) UpdateSettings(roomID, userID string, patch model.SettingsPatch) (model.RoomSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return model.RoomSettings{}, ErrRoomNotFound
	}
	member, ok := rec.members[userID]
	if !ok {
		return model.RoomSettings{}, ErrMemberNotFound
	}
	if member.Role != model.RoleHost {
		return model.RoomSettings{}, ErrUnauthorized
	}

	if patch.MaxQueuedPerUser != nil && (*patch.MaxQueuedPerUser < 1 || *patch.MaxQueuedPerUser > 50) {
		return model.RoomSettings{}, fmt.Errorf("无效的设置: maxQueuedPerUser 必须在 1-50 之间")
	}
	if patch.SkipVoteThreshold != nil && (*patch.SkipVoteThreshold < 1 || *patch.SkipVoteThreshold > 100) {
		return model.RoomSettings{}, fmt.Errorf("无效的设置: skipVoteThreshold 必须在 1-100 之间")
	}

	if patch.AllowAnonymous != nil {
		rec.room.Settings.AllowAnonymous = *patch.AllowAnonymous
	}
	if patch.AllowDuplicateSongs != nil {
		rec.room.Settings.AllowDuplicateSongs = *patch.AllowDuplicateSongs
	}
	if patch.MaxQueuedPerUser != nil {
		rec.room.Settings.MaxQueuedPerUser = *patch.MaxQueuedPerUser
	}
	if patch.SkipVoteThreshold != nil {
		rec.room.Settings.SkipVoteThreshold = *patch.SkipVoteThreshold
	}
	return rec.room.Settings, nil
}

// ListRooms 大厅房间列表
func (s *Store) ListRooms() []model.RoomListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]model.RoomListEntry, 0, len(s.rooms))
	for _, rec := range s.rooms {
		entry := model.RoomListEntry{
			ID:          rec.room.ID,
			Name:        rec.room.Name,
			HostName:    s.hostNameLocked(rec),
			MemberCount: len(rec.members),
			HasPassword: rec.room.HasPassword(),
		}
		if rec.nowPlaying != nil {
			song := rec.nowPlaying.Song
			entry.NowPlaying = &song
		}
		list = append(list, entry)
	}
	return list
}

// PublicInfo 未加入用户可见的房间信息
func (s *Store) PublicInfo(roomID string) (model.RoomPublicInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return model.RoomPublicInfo{}, ErrRoomNotFound
	}
	return model.RoomPublicInfo{
		Name:        rec.room.Name,
		Code:        rec.room.Code,
		HostName:    s.hostNameLocked(rec),
		HasPassword: rec.room.HasPassword(),
	}, nil
}

func (s *Store) hostNameLocked(rec *record) string {
	for _, m := range rec.members {
		if m.Role == model.RoleHost {
			return m.DisplayName
		}
	}
	return ""
}

// Exists 房间是否存在
func (s *Store) Exists(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rooms[roomID]
	return ok
}
