package room

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

// Enqueue 点歌。requester 不必是房间成员（自动点歌使用合成身份），
// 成员校验由调用方完成。返回的 startedPlaying 表示这首歌直接成为了
// 当前播放（点歌时播放器空闲）。
func (s *Store) Enqueue(roomID string, requester model.UserSummary, song model.Song) (*model.QueueItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	return s.enqueueLocked(rec, roomID, requester, song)
}

func (s *Store) enqueueLocked(rec *record, roomID string, requester model.UserSummary, song model.Song) (*model.QueueItem, bool, error) {
	settings := rec.room.Settings
	if !settings.AllowDuplicateSongs {
		for _, it := range rec.queue {
			if it.Song.ID == song.ID {
				return nil, false, ErrDuplicateSong
			}
		}
	}

	// 配额只统计仍在队列中的条目；正在播放和已播完的不占名额
	queuedByUser := 0
	for _, it := range rec.queue {
		if it.RequestedBy.ID == requester.ID {
			queuedByUser++
		}
	}
	if queuedByUser >= settings.MaxQueuedPerUser {
		return nil, false, ErrQuotaExceeded
	}

	now := time.Now()
	item := &model.QueueItem{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Song:        song,
		RequestedBy: requester,
		CreatedAt:   now.UTC().Format(createdAtLayout),
	}

	// 播放器空闲时直接开播，播放时钟从当下起算
	if rec.nowPlaying == nil {
		rec.nowPlaying = item
		rec.playback = model.PlaybackState{IsPaused: false, StartTime: now.UnixMilli()}

		logger.Info("点歌直接开播",
			logger.String("roomId", roomID),
			logger.String("songTitle", song.Title),
			logger.String("requestedBy", requester.ID))
		return copyItem(item), true, nil
	}

	rec.queue = append(rec.queue, item)
	sortQueue(rec.queue)

	logger.Info("歌曲加入队列",
		logger.String("roomId", roomID),
		logger.String("songTitle", song.Title),
		logger.String("requestedBy", requester.ID),
		logger.Int("queueLen", len(rec.queue)))
	// 返回副本：调用方在锁外序列化它，期间并发投票仍可能改写原条目
	return copyItem(item), false, nil
}

// sortQueue 权威排序：票数降序，同分按点歌时间升序（先点的在前）。
// 稳定排序保证完全同刻创建的条目保持插入顺序。
func sortQueue(queue []*model.QueueItem) {
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].VoteScore != queue[j].VoteScore {
			return queue[i].VoteScore > queue[j].VoteScore
		}
		return queue[i].CreatedAt < queue[j].CreatedAt
	})
}

// VoteResult 投票结果
type VoteResult struct {
	Score        int
	SkipCount    int
	OnNowPlaying bool // 被投的条目是否为当前播放
	ShouldSkip   bool // 本票为 SKIP、投在当前播放上且达到了房间跳过阈值
}

// Vote 投票。同一 voter 对同一条目只保留一票：重复投相同值是空操作，
// 投不同值覆盖旧值（不会同时计为 UP 和 SKIP）。
// 分数与跳过数每次都从完整投票表重算，不做增量维护，避免覆盖票时漏减。
func (s *Store) Vote(roomID, voterID, itemID string, vt model.VoteType) (VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return VoteResult{}, ErrRoomNotFound
	}

	key := voteKey{itemID: itemID, voterID: voterID}
	if prev, ok := rec.votes[key]; ok && prev == vt {
		return VoteResult{
			Score:        tallyScore(rec, itemID),
			SkipCount:    tallySkips(rec, itemID),
			OnNowPlaying: rec.nowPlaying != nil && rec.nowPlaying.ID == itemID,
		}, nil
	}
	rec.votes[key] = vt

	score := tallyScore(rec, itemID)
	skips := tallySkips(rec, itemID)

	// 把重算结果落到条目当前所在的位置（队列或当前播放），然后重排队列
	for _, it := range rec.queue {
		if it.ID == itemID {
			it.VoteScore = score
			it.SkipVotes = skips
		}
	}
	sortQueue(rec.queue)

	onNowPlaying := false
	if rec.nowPlaying != nil && rec.nowPlaying.ID == itemID {
		rec.nowPlaying.VoteScore = score
		rec.nowPlaying.SkipVotes = skips
		onNowPlaying = true
	}

	return VoteResult{
		Score:        score,
		SkipCount:    skips,
		OnNowPlaying: onNowPlaying,
		ShouldSkip:   vt == model.VoteSkip && onNowPlaying && skips >= rec.room.Settings.SkipVoteThreshold,
	}, nil
}

// tallyScore 全量扫描投票表计算 (#UP - #DOWN)，需要持有锁
func tallyScore(rec *record, itemID string) int {
	score := 0
	for key, v := range rec.votes {
		if key.itemID != itemID {
			continue
		}
		switch v {
		case model.VoteUp:
			score++
		case model.VoteDown:
			score--
		}
	}
	return score
}

// tallySkips 全量扫描投票表计算 #SKIP，独立于分数
func tallySkips(rec *record, itemID string) int {
	count := 0
	for key, v := range rec.votes {
		if key.itemID == itemID && v == model.VoteSkip {
			count++
		}
	}
	return count
}

// Advance 切到下一首：当前播放移入历史（上限50，最旧的淘汰），
// 队首升为当前播放并重置播放时钟；队列为空则完全停止。
//
// expectedCurrentID 非空时做幂等保护：调用方声明它认为刚播完的是哪首，
// 与实际当前播放不一致说明已有并发请求（房主切歌与客户端 ended 赛跑）
// 完成了这次推进，本次调用原样返回不再推进。
func (s *Store) Advance(roomID, expectedCurrentID string) (*model.QueueItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	if expectedCurrentID != "" && (rec.nowPlaying == nil || rec.nowPlaying.ID != expectedCurrentID) {
		actual := ""
		if rec.nowPlaying != nil {
			actual = rec.nowPlaying.ID
		}
		logger.Info("忽略重复的切歌请求",
			logger.String("roomId", roomID),
			logger.String("expected", expectedCurrentID),
			logger.String("actual", actual))
		return copyItem(rec.nowPlaying), false, nil
	}

	if rec.nowPlaying != nil {
		rec.history = append([]*model.QueueItem{rec.nowPlaying}, rec.history...)
		if len(rec.history) > maxHistory {
			rec.history = rec.history[:maxHistory]
		}
	}

	if len(rec.queue) > 0 {
		rec.nowPlaying = rec.queue[0]
		rec.queue = rec.queue[1:]
		rec.playback = model.PlaybackState{IsPaused: false, StartTime: time.Now().UnixMilli()}

		logger.Info("切歌",
			logger.String("roomId", roomID),
			logger.String("songTitle", rec.nowPlaying.Song.Title))
	} else {
		rec.nowPlaying = nil
		rec.playback = model.PlaybackState{}
	}

	return copyItem(rec.nowPlaying), true, nil
}

// Idle 播放器是否空闲（无当前播放且队列为空），自动点歌用
func (s *Store) Idle(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	return rec.nowPlaying == nil && len(rec.queue) == 0
}

// EnqueueIfIdle 仅当播放器仍然空闲时点歌。
// 自动点歌要先异步请求推荐源，等待期间任何变更都可能落地，
// 所以空闲判断和入队必须在同一个临界区内重新执行。
func (s *Store) EnqueueIfIdle(roomID string, requester model.UserSummary, song model.Song) (*model.QueueItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	if rec.nowPlaying != nil || len(rec.queue) > 0 {
		return nil, false, nil
	}
	return s.enqueueLocked(rec, roomID, requester, song)
}

// QueueSnapshot 队列的深拷贝快照（queue:update 广播用）
func (s *Store) QueueSnapshot(roomID string) ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyItems(rec.queue), nil
}
