package room

import (
	"github.com/TheHyyy/vibe-music/model"
)

// StateForUser 构建某个成员视角的房间状态快照。
// 快照是深拷贝：广播序列化期间的后续变更不会污染已取出的快照，
// 保证每次广播都反映取快照那一刻的完整状态。
func (s *Store) StateForUser(roomID, userID string) (*model.RoomStatePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.stateForUserLocked(rec, userID)
}

// SnapshotAll 在同一个临界区内构建所有成员的快照。
// 一次变更触发的广播由此和该变更保持先后一致：两次广播反映变更被
// 应用的顺序，不会出现新旧交错。
func (s *Store) SnapshotAll(roomID string) (map[string]*model.RoomStatePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	snapshots := make(map[string]*model.RoomStatePayload, len(rec.members))
	for userID := range rec.members {
		payload, err := s.stateForUserLocked(rec, userID)
		if err != nil {
			continue
		}
		snapshots[userID] = payload
	}
	return snapshots, nil
}

func (s *Store) stateForUserLocked(rec *record, userID string) (*model.RoomStatePayload, error) {
	currentUser, ok := rec.members[userID]
	if !ok {
		return nil, ErrMemberNotFound
	}

	members := make([]model.UserSummary, 0, len(rec.members))
	for _, m := range rec.members {
		members = append(members, m)
	}

	payload := &model.RoomStatePayload{
		Room:        rec.room, // 值拷贝；PasswordHash 带 json:"-" 不会外泄
		CurrentUser: currentUser,
		Members:     members,
		Queue:       copyItems(rec.queue),
		History:     copyItems(rec.history),
		Playback:    rec.playback,
	}
	if rec.nowPlaying != nil {
		np := *rec.nowPlaying
		payload.NowPlaying = &np
	}
	return payload, nil
}

func copyItems(items []*model.QueueItem) []*model.QueueItem {
	out := make([]*model.QueueItem, len(items))
	for i, it := range items {
		out[i] = copyItem(it)
	}
	return out
}

// copyItem 返回条目的独立副本，脱离 Store 内部状态。
// 锁外序列化返回值时，并发投票改写票数不会触碰到副本。
func copyItem(it *model.QueueItem) *model.QueueItem {
	if it == nil {
		return nil
	}
	cp := *it
	return &cp
}
