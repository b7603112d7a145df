package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/presence"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sec(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }

type memSink struct {
	rows  []dailylog.Row
	fails int
	calls int
}

func (s *memSink) Append(at time.Time, row dailylog.Row) error {
	s.calls++
	if s.fails > 0 {
		s.fails--
		return errors.New("file locked")
	}
	row.Time = dailylog.ClockOf(at)
	s.rows = append(s.rows, row)
	return nil
}

func (s *memSink) last() dailylog.Row { return s.rows[len(s.rows)-1] }

type staticTask struct{ task, subtask string }

func (s staticTask) CurrentTask() (string, string) { return s.task, s.subtask }

type sessionLog struct {
	started, ended string
	blocks         int
	active         time.Duration
}

func (l *sessionLog) StartSession(id string, at time.Time) error {
	l.started = id
	return nil
}

func (l *sessionLog) EndSession(id string, at time.Time, blocks int, active time.Duration) error {
	l.ended, l.blocks, l.active = id, blocks, active
	return nil
}

func newMachine(t *testing.T, sink *memSink) *Machine {
	t.Helper()
	return New(Options{Settings: DefaultSettings(), Sink: sink, Tasks: staticTask{"Write", "Intro"}})
}

// present feeds a detection and a tick for every second in (from, to].
func present(m *Machine, from, to int) {
	for i := from + 1; i <= to; i++ {
		m.OnPresence(sec(i), true, 0.95)
		m.OnTick(sec(i))
	}
}

// ============================================================
// Start / End
// ============================================================

func TestStartLogsInitialRow(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	if err := m.OnStart(t0); err != nil {
		t.Fatal(err)
	}
	if len(sink.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(sink.rows))
	}
	r := sink.rows[0]
	if r.Mode != 1 || r.Status != 0 || r.Work != 1 || r.Block != 1 {
		t.Fatalf("unexpected start row: %+v", r)
	}
	if r.Task != "Write" || r.Subtask != "Intro" {
		t.Fatalf("task not recorded: %+v", r)
	}
	if m.Snapshot(t0).State != Working {
		t.Fatal("expected Working after start")
	}
}

func TestStartOnlyFromIdle(t *testing.T) {
	m := newMachine(t, &memSink{})
	m.OnStart(t0)
	if err := m.OnStart(sec(1)); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	m.OnEnd(sec(2))
	if err := m.OnStart(sec(3)); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("stopped session should not restart, got %v", err)
	}
}

func TestEventsIgnoredBeforeStart(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnPresence(t0, true, 1)
	m.OnTick(sec(1))
	m.OnHoldToggle(sec(2))
	if len(sink.rows) != 0 {
		t.Fatalf("idle machine should not log, got %d rows", len(sink.rows))
	}
}

func TestEndFlushesAndLogsZeroRow(t *testing.T) {
	sink := &memSink{}
	sessions := &sessionLog{}
	m := New(Options{Sink: sink, Sessions: sessions})
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)
	present(m, 0, 30)
	m.OnEnd(sec(30))

	r := sink.last()
	if r.Mode != 0 || r.Status != 0 || r.Work != 0 {
		t.Fatalf("final row should clear all flags: %+v", r)
	}
	if r.Timer != 30*time.Second {
		t.Fatalf("final timer = %v, want 30s", r.Timer)
	}
	snap := m.Snapshot(sec(100))
	if snap.State != Stopped || snap.Active != 30*time.Second {
		t.Fatalf("stopped snapshot should be frozen: %+v", snap)
	}
	if sessions.started == "" || sessions.ended != sessions.started {
		t.Fatalf("session not recorded: %+v", sessions)
	}
	if sessions.active != 30*time.Second || sessions.blocks != 0 {
		t.Fatalf("session totals: %+v", sessions)
	}

	n := len(sink.rows)
	m.OnEnd(sec(40))
	m.OnTick(sec(41))
	if len(sink.rows) != n {
		t.Fatal("stopped machine should not log")
	}
}

// ============================================================
// Presence
// ============================================================

func TestPresenceFoundLogsOnce(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(sec(1), true, 0.9)
	m.OnPresence(sec(1), true, 0.9)
	m.OnPresence(sec(2), true, 0.9)

	if len(sink.rows) != 2 {
		t.Fatalf("expected start row + one presence row, got %d", len(sink.rows))
	}
	if r := sink.last(); !r.IsActiveStart() {
		t.Fatalf("presence row should be an active start: %+v", r)
	}
}

func TestPresenceBelowThresholdIgnored(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(sec(1), true, 0.79)
	if m.Snapshot(sec(1)).Status != 0 {
		t.Fatal("low-confidence detection should not count as present")
	}
	m.OnPresence(sec(2), true, 0.8)
	if m.Snapshot(sec(2)).Status != 1 {
		t.Fatal("detection at the threshold should count as present")
	}
}

func TestPresenceGracePeriod(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(sec(10), true, 1)

	m.OnPresence(sec(11), false, 0)
	m.OnTick(sec(11))
	m.OnPresence(sec(12), false, 0)
	m.OnTick(sec(12))
	if m.Snapshot(sec(12)).Status != 1 {
		t.Fatal("status should survive a miss within the grace period")
	}

	m.OnPresence(sec(13), false, 0)
	if m.Snapshot(sec(13)).Status != 0 {
		t.Fatal("status should drop once the grace period has passed")
	}
	r := sink.last()
	if r.Status != 0 || r.Timer != 3*time.Second {
		t.Fatalf("drop row: %+v", r)
	}
}

func TestMissingFramesStarveTimer(t *testing.T) {
	m := newMachine(t, &memSink{})
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)
	for i := 1; i <= 60; i++ {
		m.OnTick(sec(i))
	}
	snap := m.Snapshot(sec(60))
	if snap.Status != 0 {
		t.Fatal("ticks alone should settle status to 0")
	}
	if snap.Active != 3*time.Second {
		t.Fatalf("active = %v, want 3s", snap.Active)
	}
}

// ============================================================
// Blocks and breaks
// ============================================================

func TestBlockTransition(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)

	present(m, 0, 2699)
	if s := m.Snapshot(sec(2699)); s.Block != 1 || s.Work != 1 {
		t.Fatalf("block ended early: %+v", s)
	}

	present(m, 2699, 2700)
	s := m.Snapshot(sec(2700))
	if s.Block != 2 || s.Work != 0 || s.Active != 0 || s.State != OnBreak {
		t.Fatalf("expected break after 2700 ticks: %+v", s)
	}
	if s.TotalActive != 2700*time.Second {
		t.Fatalf("total active = %v", s.TotalActive)
	}
	r := sink.last()
	if r.Work != 0 || r.Block != 2 || r.Timer != 0 {
		t.Fatalf("transition row: %+v", r)
	}

	if s.Accumulating() {
		t.Fatalf("break snapshot should not accumulate: %+v", s)
	}

	present(m, 2700, 2701)
	if s := m.Snapshot(sec(2701)); s.Block != 2 {
		t.Fatalf("block incremented twice: %d", s.Block)
	}
}

func TestBreakEndsAfterDuration(t *testing.T) {
	sink := &memSink{}
	m := New(Options{
		Settings: Settings{BlockDuration: 10 * time.Second, BreakDuration: 5 * time.Second, GracePeriod: 2 * time.Second, ConfidenceThreshold: 0.5},
		Sink:     sink,
	})
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)
	present(m, 0, 10)
	if m.Snapshot(sec(10)).Work != 0 {
		t.Fatal("expected break")
	}

	// Break time runs regardless of presence.
	for i := 11; i <= 14; i++ {
		m.OnTick(sec(i))
	}
	if s := m.Snapshot(sec(14)); s.Work != 0 || s.BreakElapsed != 4*time.Second {
		t.Fatalf("break ended early: %+v", s)
	}
	m.OnPresence(sec(15), true, 1)
	m.OnTick(sec(15))
	s := m.Snapshot(sec(15))
	if s.Work != 1 || s.State != Working || s.Block != 2 {
		t.Fatalf("expected work to resume: %+v", s)
	}
	if !sink.last().IsActiveStart() {
		t.Fatalf("resume row should be an active start: %+v", sink.last())
	}

	present(m, 15, 20)
	if s := m.Snapshot(sec(20)); s.Active != 5*time.Second {
		t.Fatalf("active after resume = %v", s.Active)
	}
}

func TestSnapshotAccumulating(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{"working", Snapshot{State: Working, Mode: 1, Status: 1, Work: 1}, true},
		{"held", Snapshot{State: Working, Mode: 0, Status: 1, Work: 1}, false},
		{"away", Snapshot{State: Working, Mode: 1, Status: 0, Work: 1}, false},
		{"break", Snapshot{State: OnBreak, Mode: 1, Status: 1, Work: 0}, false},
		{"break with stale work flag", Snapshot{State: OnBreak, Mode: 1, Status: 1, Work: 1}, false},
		{"stopped", Snapshot{State: Stopped, Mode: 1, Status: 1, Work: 1}, false},
	}
	for _, tt := range tests {
		if got := tt.snap.Accumulating(); got != tt.want {
			t.Fatalf("%s: Accumulating() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ============================================================
// Hold
// ============================================================

func TestHoldFreezesAccumulation(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)
	present(m, 0, 100)

	m.OnHoldToggle(sec(100))
	if r := sink.last(); r.Mode != 0 || r.Status != 1 || r.Work != 1 {
		t.Fatalf("hold row should only flip mode: %+v", r)
	}
	present(m, 100, 110)
	if a := m.Snapshot(sec(110)).Active; a != 100*time.Second {
		t.Fatalf("paused ticks accumulated: %v", a)
	}

	m.OnHoldToggle(sec(110))
	if !sink.last().IsActiveStart() {
		t.Fatal("unhold with presence should be an active start")
	}
	present(m, 110, 120)
	if a := m.Snapshot(sec(120)).Active; a != 110*time.Second {
		t.Fatalf("active = %v, want 110s", a)
	}
}

func TestHoldDuringBreak(t *testing.T) {
	m := New(Options{Settings: Settings{BlockDuration: 5 * time.Second, BreakDuration: 5 * time.Second, GracePeriod: 2 * time.Second, ConfidenceThreshold: 0.5}})
	m.OnStart(t0)
	m.OnPresence(t0, true, 1)
	present(m, 0, 5)
	m.OnHoldToggle(sec(6))
	present(m, 6, 10)
	s := m.Snapshot(sec(10))
	if s.Work != 1 || s.Mode != 0 {
		t.Fatalf("break should end while held: %+v", s)
	}
	present(m, 10, 15)
	if a := m.Snapshot(sec(15)).Active; a != 0 {
		t.Fatalf("held work should not accumulate: %v", a)
	}
}

// ============================================================
// Sink failures
// ============================================================

func TestSinkRetried(t *testing.T) {
	sink := &memSink{fails: 2}
	m := newMachine(t, sink)
	m.OnStart(t0)
	if len(sink.rows) != 1 || sink.calls != 3 {
		t.Fatalf("expected success on third attempt, rows=%d calls=%d", len(sink.rows), sink.calls)
	}
}

func TestSinkFailureDoesNotStopMachine(t *testing.T) {
	sink := &memSink{fails: 100}
	m := newMachine(t, sink)
	m.OnStart(t0)
	m.OnPresence(sec(1), true, 1)
	if m.Snapshot(sec(1)).Status != 1 {
		t.Fatal("machine should keep running when logging fails")
	}
	if sink.calls != 2*sinkAttempts {
		t.Fatalf("expected %d attempts, got %d", 2*sinkAttempts, sink.calls)
	}
}

func TestOnChangeObserver(t *testing.T) {
	var seen []Snapshot
	m := New(Options{Sink: &memSink{}, OnChange: func(s Snapshot) { seen = append(seen, s) }})
	m.OnStart(t0)
	m.OnPresence(sec(1), true, 1)
	m.OnHoldToggle(sec(2))
	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	if !seen[2].Held() || !seen[1].Accumulating() {
		t.Fatalf("unexpected snapshots: %+v", seen)
	}
}

// ============================================================
// Runner
// ============================================================

func TestRunnerSerializesEvents(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	detections := make(chan presence.Detection, 4)
	r := NewRunner(m, detections, nil)
	r.TickInterval = time.Hour
	r.Now = func() time.Time { return t0 }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	detections <- presence.Detection{Found: true, Confidence: 1, At: t0}
	var snap Snapshot
	deadline := time.After(2 * time.Second)
	for snap.Status != 1 {
		select {
		case snap = <-r.Updates():
		case <-deadline:
			t.Fatal("presence never reached the machine")
		}
	}

	snap, err := r.ToggleHold()
	if err != nil || !snap.Held() {
		t.Fatalf("toggle hold: %+v %v", snap, err)
	}
	snap, err = r.End()
	if err != nil || snap.State != Stopped {
		t.Fatalf("end: %+v %v", snap, err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if _, err := r.Snapshot(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Run returned, got %v", err)
	}
	if len(sink.rows) != 4 {
		t.Fatalf("expected start, presence, hold, end rows; got %d", len(sink.rows))
	}
}

func TestRunnerCancelEndsSession(t *testing.T) {
	sink := &memSink{}
	m := newMachine(t, sink)
	r := NewRunner(m, nil, nil)
	r.TickInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	r.Start()
	cancel()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	<-errc
	if r := sink.last(); r.Mode != 0 || r.Status != 0 || r.Work != 0 {
		t.Fatalf("cancel should log a final row: %+v", r)
	}
}

func TestRunnerSurvivesClosedDetections(t *testing.T) {
	m := newMachine(t, &memSink{})
	detections := make(chan presence.Detection)
	close(detections)
	r := NewRunner(m, detections, nil)
	r.TickInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	snap, err := r.Snapshot()
	if err != nil || snap.State != Working {
		t.Fatalf("runner should keep going without detections: %+v %v", snap, err)
	}
}
