// Package tracker implements the work/break state machine.
//
// A Machine owns the tracker session. Its On* methods are the only way to
// change it, and they must all be called from a single goroutine; Runner is
// the actor that does this for a live session.
package tracker

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/deskwatch/internal/dailylog"
)

var (
	ErrAlreadyStarted = errors.New("tracker: session already started")
	ErrStopped        = errors.New("tracker: session stopped")
)

// State is the coarse phase of a session. Hold is tracked separately as
// the mode flag and can be set in any phase.
type State int

const (
	Idle State = iota
	Working
	OnBreak
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Working:
		return "working"
	case OnBreak:
		return "break"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Settings are the tunables of a session.
type Settings struct {
	BlockDuration       time.Duration
	BreakDuration       time.Duration
	GracePeriod         time.Duration
	ConfidenceThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		BlockDuration:       45 * time.Minute,
		BreakDuration:       15 * time.Minute,
		GracePeriod:         2 * time.Second,
		ConfidenceThreshold: 0.8,
	}
}

// Sink receives every state snapshot. dailylog.Store implements it.
type Sink interface {
	Append(at time.Time, row dailylog.Row) error
}

// TaskProvider names the task currently being worked on.
type TaskProvider interface {
	CurrentTask() (task, subtask string)
}

// SessionRecorder keeps a history of sessions.
type SessionRecorder interface {
	StartSession(id string, at time.Time) error
	EndSession(id string, at time.Time, blocks int, active time.Duration) error
}

// Snapshot is a read-only copy of the session at a moment.
type Snapshot struct {
	SessionID    string
	State        State
	Mode         int
	Status       int
	Work         int
	Block        int
	Task         string
	Subtask      string
	Active       time.Duration // active time in the current block
	BreakElapsed time.Duration
	TotalActive  time.Duration // active time across all blocks
	StartedAt    time.Time
	At           time.Time
}

// Held reports whether the user has suspended tracking.
func (s Snapshot) Held() bool { return s.Mode == 0 }

// Accumulating reports whether active time is currently growing.
func (s Snapshot) Accumulating() bool {
	return s.State == Working && s.Mode == 1 && s.Status == 1 && s.Work == 1
}

// Options wires a Machine to its collaborators. Only Sink is required.
type Options struct {
	Settings Settings
	Sink     Sink
	Tasks    TaskProvider
	Sessions SessionRecorder
	Logger   *slog.Logger

	// OnChange is called after every logged transition.
	OnChange func(Snapshot)
}

const sinkAttempts = 3

type Machine struct {
	settings Settings
	sink     Sink
	tasks    TaskProvider
	sessions SessionRecorder
	logger   *slog.Logger
	onChange func(Snapshot)

	id        string
	state     State
	mode      int
	status    int
	work      int
	block     int
	active    time.Duration
	total     time.Duration
	lastStart time.Time // zero while not accumulating
	lastSeen  time.Time
	breakFrom time.Time
	startedAt time.Time
}

func New(opts Options) *Machine {
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{
		settings: opts.Settings,
		sink:     opts.Sink,
		tasks:    opts.Tasks,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		mode:     1,
		work:     1,
		block:    1,
	}
}

// Settings returns the tunables the machine runs with.
func (m *Machine) Settings() Settings { return m.settings }

// OnStart begins a session. It is only valid from Idle.
func (m *Machine) OnStart(now time.Time) error {
	if m.state != Idle {
		return ErrAlreadyStarted
	}
	m.id = uuid.NewString()
	m.state = Working
	m.mode, m.status, m.work, m.block = 1, 0, 1, 1
	m.startedAt = now
	if m.sessions != nil {
		if err := m.sessions.StartSession(m.id, now); err != nil {
			m.logger.Warn("record session start", "session", m.id, "err", err)
		}
	}
	m.logger.Info("session started", "session", m.id)
	m.record(now)
	return nil
}

// OnEnd flushes pending active time, writes a final row with every flag
// cleared and stops the session. Ending a stopped session does nothing.
func (m *Machine) OnEnd(now time.Time) {
	if m.state == Stopped {
		return
	}
	m.flush(now)
	wasRunning := m.state != Idle
	m.state = Stopped
	m.mode, m.status, m.work = 0, 0, 0
	if wasRunning && m.sessions != nil {
		if err := m.sessions.EndSession(m.id, now, m.block-1, m.total); err != nil {
			m.logger.Warn("record session end", "session", m.id, "err", err)
		}
	}
	m.logger.Info("session ended", "session", m.id, "blocks", m.block-1, "active", m.total)
	m.record(now)
}

// OnHoldToggle flips the mode flag. Status and work are untouched.
func (m *Machine) OnHoldToggle(now time.Time) {
	if !m.running() {
		return
	}
	m.flush(now)
	m.mode = 1 - m.mode
	m.resume(now)
	m.logger.Info("hold toggled", "held", m.mode == 0)
	m.record(now)
}

// OnPresence feeds one detector result. A detection below the confidence
// threshold counts as absent. Presence flips status to 1 at once; absence
// only flips it to 0 once more than the grace period has passed since the
// last sighting.
func (m *Machine) OnPresence(now time.Time, found bool, confidence float64) {
	if !m.running() {
		return
	}
	if found && confidence >= m.settings.ConfidenceThreshold {
		m.lastSeen = now
		if m.status == 0 {
			m.setStatus(now, 1)
		}
		return
	}
	m.checkGrace(now)
}

// OnTick advances time-based rules. It is expected about once a second.
func (m *Machine) OnTick(now time.Time) {
	if !m.running() {
		return
	}
	m.checkGrace(now)

	if m.work == 1 {
		if m.activeAt(now) >= m.settings.BlockDuration {
			m.flush(now)
			m.work = 0
			m.block++
			m.active = 0
			m.breakFrom = now
			m.state = OnBreak
			m.logger.Info("block completed", "block", m.block-1)
			m.record(now)
		}
		return
	}

	if now.Sub(m.breakFrom) >= m.settings.BreakDuration {
		m.work = 1
		m.breakFrom = time.Time{}
		m.state = Working
		m.resume(now)
		m.logger.Info("break over", "block", m.block)
		m.record(now)
	}
}

// Snapshot reports the session as of now without changing it.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		SessionID: m.id,
		State:     m.state,
		Mode:      m.mode,
		Status:    m.status,
		Work:      m.work,
		Block:     m.block,
		Active:    m.activeAt(now),
		StartedAt: m.startedAt,
		At:        now,
	}
	s.TotalActive = m.total + (s.Active - m.active)
	if m.work == 0 && !m.breakFrom.IsZero() {
		s.BreakElapsed = now.Sub(m.breakFrom).Truncate(time.Second)
	}
	s.Task, s.Subtask = m.currentTask()
	return s
}

func (m *Machine) running() bool {
	return m.state == Working || m.state == OnBreak
}

func (m *Machine) accumulating() bool {
	return m.state == Working && m.mode == 1 && m.status == 1 && m.work == 1
}

func (m *Machine) activeAt(now time.Time) time.Duration {
	if m.lastStart.IsZero() {
		return m.active
	}
	d := now.Sub(m.lastStart)
	if d < 0 {
		d = 0
	}
	return m.active + d
}

// flush moves the running delta into active time. It runs before any flag
// changes so the delta is charged to the state that earned it.
func (m *Machine) flush(now time.Time) {
	if m.lastStart.IsZero() {
		return
	}
	if d := now.Sub(m.lastStart); d > 0 {
		m.active += d
		m.total += d
	}
	m.lastStart = time.Time{}
}

func (m *Machine) resume(now time.Time) {
	if m.accumulating() && m.lastStart.IsZero() {
		m.lastStart = now
	}
}

func (m *Machine) setStatus(now time.Time, status int) {
	m.flush(now)
	m.status = status
	m.resume(now)
	m.logger.Info("presence changed", "present", status == 1)
	m.record(now)
}

func (m *Machine) checkGrace(now time.Time) {
	if m.status == 1 && now.Sub(m.lastSeen) > m.settings.GracePeriod {
		m.setStatus(now, 0)
	}
}

func (m *Machine) currentTask() (string, string) {
	if m.tasks == nil {
		return "", ""
	}
	return m.tasks.CurrentTask()
}

// record writes the current state to the sink and notifies the observer.
// A sink that keeps failing is logged and skipped; the session goes on.
func (m *Machine) record(now time.Time) {
	task, subtask := m.currentTask()
	row := dailylog.Row{
		Mode:    m.mode,
		Status:  m.status,
		Work:    m.work,
		Block:   m.block,
		Task:    task,
		Subtask: subtask,
		Timer:   m.activeAt(now),
	}
	if m.sink != nil {
		var err error
		for attempt := 1; attempt <= sinkAttempts; attempt++ {
			if err = m.sink.Append(now, row); err == nil {
				break
			}
			if errors.Is(err, dailylog.ErrNotInitialized) {
				break
			}
		}
		if err != nil {
			m.logger.Error("append log row", "err", err, "attempts", sinkAttempts)
		}
	}
	if m.onChange != nil {
		m.onChange(m.Snapshot(now))
	}
}
