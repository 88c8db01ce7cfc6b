package room

import (
	"time"

	"github.com/TheHyyy/vibe-music/model"
)

// UpdatePlayback 播放时钟上报，仅 HOST/MODERATOR 可调用。
//
// startTime 由服务端按 now - currentTime*1000 反推：所有客户端无论与
// 上报端存在多少时钟偏差，都能用自己的墙钟减 startTime 得到一致的播放
// 进度。转入暂停时记录 pausedAt，恢复播放时清除。
//
// 除 Advance（整体重置）和 Enqueue（空闲时开播）外，没有其他路径可以
// 修改 PlaybackState。
func (s *Store) UpdatePlayback(roomID, userID string, isPaused bool, currentTime float64) (model.PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return model.PlaybackState{}, ErrRoomNotFound
	}
	member, ok := rec.members[userID]
	if !ok {
		return model.PlaybackState{}, ErrMemberNotFound
	}
	if member.Role != model.RoleHost && member.Role != model.RoleModerator {
		return model.PlaybackState{}, ErrUnauthorized
	}

	nowMs := time.Now().UnixMilli()
	state := model.PlaybackState{
		IsPaused:  isPaused,
		StartTime: nowMs - int64(currentTime*1000),
	}
	if isPaused {
		state.PausedAt = nowMs
	}
	rec.playback = state
	return state, nil
}
