package model

// RoomRole 房间角色
type RoomRole string

const (
	RoleHost      RoomRole = "HOST"
	RoleModerator RoomRole = "MODERATOR"
	RoleMember    RoomRole = "MEMBER"
)

// VoteType 投票类型
type VoteType string

const (
	VoteUp   VoteType = "UP"
	VoteDown VoteType = "DOWN"
	VoteSkip VoteType = "SKIP"
)

// UserSummary 房间成员摘要
type UserSummary struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Role        RoomRole `json:"role"`
}

// RoomSettings 房间设置
type RoomSettings struct {
	AllowAnonymous      bool `json:"allowAnonymous"`
	AllowDuplicateSongs bool `json:"allowDuplicateSongs"`
	MaxQueuedPerUser    int  `json:"maxQueuedPerUser"`  // 1-50
	SkipVoteThreshold   int  `json:"skipVoteThreshold"` // 1-100
}

// SettingsPatch 部分更新房间设置。nil 字段表示不修改。
// 字段列表即全部允许的变更，新增设置项必须同时扩展这里。
type SettingsPatch struct {
	AllowAnonymous      *bool `json:"allowAnonymous,omitempty"`
	AllowDuplicateSongs *bool `json:"allowDuplicateSongs,omitempty"`
	MaxQueuedPerUser    *int  `json:"maxQueuedPerUser,omitempty"`
	SkipVoteThreshold   *int  `json:"skipVoteThreshold,omitempty"`
}

// Room 房间
// PasswordHash 与 InviteToken 属于敏感字段，PasswordHash 永不序列化。
type Room struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Code         string       `json:"code"` // 6位大写邀请码
	HostID       string       `json:"hostId"`
	Settings     RoomSettings `json:"settings"`
	PasswordHash string       `json:"-"`
	InviteToken  string       `json:"inviteToken,omitempty"`
}

// HasPassword 房间是否设置了密码
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// Song 歌曲（来源无关），ID 形如 "NETEASE:123456"
type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	DurationSec int    `json:"durationSec,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Source      string `json:"source"`
}

// QueueItem 队列条目
// CreatedAt 使用定宽 UTC 时间串，同进程内字典序即时间序，用于同分并列时的排序。
type QueueItem struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"roomId"`
	Song        Song        `json:"song"`
	RequestedBy UserSummary `json:"requestedBy"`
	VoteScore   int         `json:"voteScore"`
	SkipVotes   int         `json:"skipVotes"`
	CreatedAt   string      `json:"createdAt"`
}

// PlaybackState 播放时钟
// 未暂停时客户端按 (now - startTime) 推算播放进度；暂停时冻结在 pausedAt。
type PlaybackState struct {
	IsPaused  bool  `json:"isPaused"`
	StartTime int64 `json:"startTime"` // epoch ms，当前曲目 0 进度对应的墙钟时刻
	PausedAt  int64 `json:"pausedAt,omitempty"`
}

// RoomStatePayload 按成员视角构建的房间状态快照（已脱敏）
type RoomStatePayload struct {
	Room        Room          `json:"room"`
	CurrentUser UserSummary   `json:"currentUser"`
	Members     []UserSummary `json:"members"`
	NowPlaying  *QueueItem    `json:"nowPlaying,omitempty"`
	Queue       []*QueueItem  `json:"queue"`
	History     []*QueueItem  `json:"history"`
	Playback    PlaybackState `json:"playback"`
}

// RoomListEntry 大厅房间列表条目
type RoomListEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HostName    string `json:"hostName"`
	MemberCount int    `json:"memberCount"`
	HasPassword bool   `json:"hasPassword"`
	NowPlaying  *Song  `json:"nowPlaying,omitempty"`
}

// RoomPublicInfo 未加入用户可见的房间信息
type RoomPublicInfo struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	HostName    string `json:"hostName,omitempty"`
	HasPassword bool   `json:"hasPassword"`
}

// ChatMessage 聊天消息（含系统消息）
type ChatMessage struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type,omitempty"` // SYSTEM 或空
}
