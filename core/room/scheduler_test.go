package room

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerArmFires(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{})

	s.Arm(TimerLeave, "r1", "u1", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("armed timer never fired")
	}
	if s.Armed(TimerLeave, "r1", "u1") {
		t.Fatal("fired timer still registered")
	}
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	s := NewScheduler()
	var fired atomic.Bool

	s.Arm(TimerLeave, "r1", "u1", 20*time.Millisecond, func() { fired.Store(true) })
	if !s.Cancel(TimerLeave, "r1", "u1") {
		t.Fatal("Cancel returned false for armed timer")
	}
	if s.Cancel(TimerLeave, "r1", "u1") {
		t.Fatal("second Cancel reported success")
	}

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer fired")
	}
}

func TestSchedulerArmReplaces(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Bool

	s.Arm(TimerDestroy, "r1", "", 20*time.Millisecond, func() { first.Store(true) })
	s.Arm(TimerDestroy, "r1", "", 20*time.Millisecond, func() { second.Store(true) })

	time.Sleep(80 * time.Millisecond)
	if first.Load() {
		t.Fatal("replaced timer fired")
	}
	if !second.Load() {
		t.Fatal("replacement timer never fired")
	}
}

func TestSchedulerKeysAreIndependent(t *testing.T) {
	s := NewScheduler()
	var leave, destroy atomic.Bool

	s.Arm(TimerLeave, "r1", "u1", 20*time.Millisecond, func() { leave.Store(true) })
	s.Arm(TimerDestroy, "r1", "", 20*time.Millisecond, func() { destroy.Store(true) })
	s.Cancel(TimerLeave, "r1", "u1")

	time.Sleep(80 * time.Millisecond)
	if leave.Load() {
		t.Fatal("cancelled leave timer fired")
	}
	if !destroy.Load() {
		t.Fatal("destroy timer affected by unrelated cancel")
	}
}

func TestSchedulerCancelRoom(t *testing.T) {
	s := NewScheduler()
	var fired atomic.Int32

	s.Arm(TimerLeave, "r1", "u1", 20*time.Millisecond, func() { fired.Add(1) })
	s.Arm(TimerLeave, "r1", "u2", 20*time.Millisecond, func() { fired.Add(1) })
	s.Arm(TimerDestroy, "r1", "", 20*time.Millisecond, func() { fired.Add(1) })
	s.Arm(TimerLeave, "r2", "u1", 20*time.Millisecond, func() { fired.Add(1) })

	s.CancelRoom("r1")

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired count = %d, want 1 (only r2)", got)
	}
}
