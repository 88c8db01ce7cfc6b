package room

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TheHyyy/vibe-music/model"
)

func testSong(n int) model.Song {
	return model.Song{
		ID:     fmt.Sprintf("MOCK:%d", n),
		Title:  fmt.Sprintf("歌曲%d", n),
		Artist: "Echo",
		Source: "MOCK",
	}
}

func TestEnqueueStartsPlaybackWhenIdle(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	before := time.Now().UnixMilli()
	first, started, err := s.Enqueue(rm.ID, host, testSong(1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !started {
		t.Fatal("first song should start playing immediately")
	}

	state, err := s.StateForUser(rm.ID, host.ID)
	if err != nil {
		t.Fatalf("StateForUser: %v", err)
	}
	if state.NowPlaying == nil || state.NowPlaying.ID != first.ID {
		t.Fatal("nowPlaying not set to first song")
	}
	if len(state.Queue) != 0 {
		t.Fatalf("queue length = %d, want 0", len(state.Queue))
	}
	if state.Playback.IsPaused || state.Playback.StartTime < before {
		t.Fatalf("playback clock not reset: %+v", state.Playback)
	}

	second, started, err := s.Enqueue(rm.ID, host, testSong(2))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if started {
		t.Fatal("second song must queue, not play")
	}

	state, _ = s.StateForUser(rm.ID, host.ID)
	if state.NowPlaying.ID != first.ID {
		t.Fatal("nowPlaying replaced by later enqueue")
	}
	if len(state.Queue) != 1 || state.Queue[0].ID != second.ID {
		t.Fatal("second song missing from queue")
	}
}

func TestQueueOrderingByVotesThenCreatedAt(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	// 第一首直接开播，后三首排队
	if _, _, err := s.Enqueue(rm.ID, host, testSong(0)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	var queued []*model.QueueItem
	for n := 1; n <= 3; n++ {
		item, _, err := s.Enqueue(rm.ID, host, testSong(n))
		if err != nil {
			t.Fatalf("Enqueue %d: %v", n, err)
		}
		queued = append(queued, item)
	}

	// 同分时保持点歌先后
	state, _ := s.StateForUser(rm.ID, host.ID)
	for i, it := range state.Queue {
		if it.ID != queued[i].ID {
			t.Fatalf("tie-break order broken at %d", i)
		}
	}

	// 给最后一首投一票，应当排到最前
	if _, err := s.Vote(rm.ID, host.ID, queued[2].ID, model.VoteUp); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	state, _ = s.StateForUser(rm.ID, host.ID)
	if state.Queue[0].ID != queued[2].ID {
		t.Fatal("upvoted song not promoted to front")
	}
	if state.Queue[1].ID != queued[0].ID || state.Queue[2].ID != queued[1].ID {
		t.Fatal("remaining songs lost their relative order")
	}
}

func TestVoteUpsert(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")
	if _, err := s.Join(rm.ID, JoinInput{UserID: "u1", DisplayName: "A"}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	s.Enqueue(rm.ID, host, testSong(0))
	item, _, err := s.Enqueue(rm.ID, host, testSong(1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	r1, err := s.Vote(rm.ID, "u1", item.ID, model.VoteUp)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r1.Score != 1 {
		t.Fatalf("score = %d, want 1", r1.Score)
	}

	// 重复同值是空操作
	r2, err := s.Vote(rm.ID, "u1", item.ID, model.VoteUp)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r2.Score != 1 {
		t.Fatalf("repeated vote changed score: %d", r2.Score)
	}

	// 改投覆盖旧票，不会同时计两票
	r3, err := s.Vote(rm.ID, "u1", item.ID, model.VoteDown)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r3.Score != -1 {
		t.Fatalf("switched vote score = %d, want -1", r3.Score)
	}

	// SKIP 不影响分数
	r4, err := s.Vote(rm.ID, "u1", item.ID, model.VoteSkip)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r4.Score != 0 || r4.SkipCount != 1 {
		t.Fatalf("skip vote tallies = (%d, %d), want (0, 1)", r4.Score, r4.SkipCount)
	}
}

func TestSkipThresholdOnNowPlaying(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")
	for _, id := range []string{"u1", "u2"} {
		if _, err := s.Join(rm.ID, JoinInput{UserID: id, DisplayName: id}); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}

	playing, _, err := s.Enqueue(rm.ID, host, testSong(0))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	queued, _, err := s.Enqueue(rm.ID, host, testSong(1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// 默认阈值 2：第一票不触发
	r1, err := s.Vote(rm.ID, "u1", playing.ID, model.VoteSkip)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r1.ShouldSkip {
		t.Fatal("single skip vote hit threshold")
	}
	r2, err := s.Vote(rm.ID, "u2", playing.ID, model.VoteSkip)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if !r2.ShouldSkip || !r2.OnNowPlaying {
		t.Fatalf("second skip vote result = %+v, want ShouldSkip", r2)
	}

	// 排队条目上的 SKIP 永不触发切歌
	r3, err := s.Vote(rm.ID, "u1", queued.ID, model.VoteSkip)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if r3.ShouldSkip || r3.OnNowPlaying {
		t.Fatalf("queued item skip result = %+v", r3)
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	first, _, _ := s.Enqueue(rm.ID, host, testSong(1))
	second, _, _ := s.Enqueue(rm.ID, host, testSong(2))

	next, advanced, err := s.Advance(rm.ID, first.ID)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !advanced || next == nil || next.ID != second.ID {
		t.Fatalf("advance result = (%v, %v)", next, advanced)
	}

	// 重复的 ended 上报不再推进
	next, advanced, err = s.Advance(rm.ID, first.ID)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if advanced {
		t.Fatal("duplicate advance went through")
	}
	if next == nil || next.ID != second.ID {
		t.Fatal("duplicate advance changed nowPlaying")
	}

	// 队列播空后，迟到的重复上报也必须是空操作
	if _, advanced, _ = s.Advance(rm.ID, second.ID); !advanced {
		t.Fatal("legitimate advance rejected")
	}
	if _, advanced, _ = s.Advance(rm.ID, second.ID); advanced {
		t.Fatal("late duplicate advanced an empty player")
	}

	// 无条件切歌（房主操作）不受保护约束
	s.Enqueue(rm.ID, host, testSong(3))
	if _, advanced, _ = s.Advance(rm.ID, ""); !advanced {
		t.Fatal("unconditional advance rejected")
	}
}

func TestAdvanceHistoryCap(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	// 播完 maxHistory+5 首歌
	for n := 0; n < maxHistory+5; n++ {
		if _, _, err := s.Enqueue(rm.ID, host, testSong(n)); err != nil {
			t.Fatalf("Enqueue %d: %v", n, err)
		}
		if _, _, err := s.Advance(rm.ID, ""); err != nil {
			t.Fatalf("Advance %d: %v", n, err)
		}
	}

	state, err := s.StateForUser(rm.ID, host.ID)
	if err != nil {
		t.Fatalf("StateForUser: %v", err)
	}
	if len(state.History) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(state.History), maxHistory)
	}
	// 最新播完的在最前
	if state.History[0].Song.ID != testSong(maxHistory + 4).ID {
		t.Fatalf("history[0] = %s, want newest", state.History[0].Song.ID)
	}
}

func TestDuplicateSongRejected(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	s.Enqueue(rm.ID, host, testSong(0)) // 开播
	if _, _, err := s.Enqueue(rm.ID, host, testSong(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := s.Enqueue(rm.ID, host, testSong(1)); !errors.Is(err, ErrDuplicateSong) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateSong", err)
	}
	// 与当前播放重复允许（查重只看队列）
	if _, _, err := s.Enqueue(rm.ID, host, testSong(0)); err != nil {
		t.Fatalf("re-request of nowPlaying rejected: %v", err)
	}

	// 开关打开后允许队列内重复
	allow := true
	if _, err := s.UpdateSettings(rm.ID, host.ID, model.SettingsPatch{AllowDuplicateSongs: &allow}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if _, _, err := s.Enqueue(rm.ID, host, testSong(1)); err != nil {
		t.Fatalf("duplicate rejected despite allowDuplicateSongs: %v", err)
	}
}

func TestQuotaCountsQueueOnly(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	one := 1
	if _, err := s.UpdateSettings(rm.ID, host.ID, model.SettingsPatch{MaxQueuedPerUser: &one}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	// 第一首成为当前播放，不占配额
	if _, _, err := s.Enqueue(rm.ID, host, testSong(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// 第二首进队列，占满配额
	if _, _, err := s.Enqueue(rm.ID, host, testSong(2)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := s.Enqueue(rm.ID, host, testSong(3)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("over-quota err = %v, want ErrQuotaExceeded", err)
	}

	// 队首升为当前播放后配额释放
	if _, _, err := s.Advance(rm.ID, ""); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, _, err := s.Enqueue(rm.ID, host, testSong(3)); err != nil {
		t.Fatalf("quota not released after advance: %v", err)
	}
}

func TestEnqueueIfIdle(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, _ := mustCreateRoom(t, s, "")

	item, started, err := s.EnqueueIfIdle(rm.ID, autoplayUser, testSong(1))
	if err != nil {
		t.Fatalf("EnqueueIfIdle: %v", err)
	}
	if item == nil || !started {
		t.Fatal("idle enqueue did not start playback")
	}

	// 不再空闲时是空操作
	item, started, err = s.EnqueueIfIdle(rm.ID, autoplayUser, testSong(2))
	if err != nil {
		t.Fatalf("EnqueueIfIdle: %v", err)
	}
	if item != nil || started {
		t.Fatal("busy player accepted idle-only enqueue")
	}

	if s.Idle(rm.ID) {
		t.Fatal("Idle reports true while playing")
	}
}

func TestEnqueueAndAdvanceReturnCopies(t *testing.T) {
	s := newTestStore(time.Minute)
	rm, host := mustCreateRoom(t, s, "")

	if _, _, err := s.Enqueue(rm.ID, host, testSong(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	queued, _, err := s.Enqueue(rm.ID, host, testSong(2))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// 返回值在锁外被持有（比如正在序列化响应），期间的投票不应改写它
	if _, err := s.Vote(rm.ID, host.ID, queued.ID, model.VoteUp); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if queued.VoteScore != 0 {
		t.Fatalf("returned item mutated by later vote: score = %d", queued.VoteScore)
	}
	state, err := s.StateForUser(rm.ID, host.ID)
	if err != nil {
		t.Fatalf("StateForUser: %v", err)
	}
	if len(state.Queue) != 1 || state.Queue[0].VoteScore != 1 {
		t.Fatal("vote not applied inside store")
	}

	np, advanced, err := s.Advance(rm.ID, "")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !advanced || np == nil || np.ID != queued.ID {
		t.Fatal("queued song did not become nowPlaying")
	}
	if _, err := s.Vote(rm.ID, host.ID, np.ID, model.VoteSkip); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if np.SkipVotes != 0 {
		t.Fatalf("returned nowPlaying mutated by later vote: skips = %d", np.SkipVotes)
	}
}
