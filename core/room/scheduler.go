package room

import (
	"sync"
	"time"
)

// TimerKind 延迟任务类别
type TimerKind string

const (
	// TimerLeave 断线宽限：到期后移除成员
	TimerLeave TimerKind = "leave"
	// TimerDestroy 空房宽限：到期后销毁房间
	TimerDestroy TimerKind = "destroy"
)

// timerKey 定时器键。按 (kind, roomID, userID) 区分，取消一个键不影响其他键。
type timerKey struct {
	kind   TimerKind
	roomID string
	userID string // destroy 类任务为空
}

// Scheduler 延迟生命周期调度器
// 同一个键重复 Arm 会先清掉旧的定时器，保证每个键至多一个待触发回调；
// Cancel 之后回调不可能再执行（回调触发前先在锁内摘除句柄再判断）。
type Scheduler struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// NewScheduler 创建调度器
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[timerKey]*time.Timer)}
}

// Arm 安排一个延迟回调，替换同键的已有定时器
func (s *Scheduler) Arm(kind TimerKind, roomID, userID string, delay time.Duration, fn func()) {
	key := timerKey{kind: kind, roomID: roomID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// 已被 Cancel 或被新的 Arm 替换时放弃执行
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fn()
	})
	s.timers[key] = t
}

// Cancel 取消一个待触发的定时器，返回是否确实取消了
func (s *Scheduler) Cancel(kind TimerKind, roomID, userID string) bool {
	key := timerKey{kind: kind, roomID: roomID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
		return true
	}
	return false
}

// Armed 查询某个键是否有待触发的定时器
func (s *Scheduler) Armed(kind TimerKind, roomID, userID string) bool {
	key := timerKey{kind: kind, roomID: roomID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[key]
	return ok
}

// CancelRoom 取消某个房间名下的全部定时器（房间销毁时调用）
func (s *Scheduler) CancelRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		if key.roomID == roomID {
			t.Stop()
			delete(s.timers, key)
		}
	}
}
