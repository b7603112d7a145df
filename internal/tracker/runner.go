package tracker

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/sadopc/deskwatch/internal/presence"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdEnd
	cmdHold
	cmdSnapshot
)

type command struct {
	kind  commandKind
	reply chan reply
}

type reply struct {
	snap Snapshot
	err  error
}

// Runner owns a Machine and is the only goroutine that touches it. Ticks,
// detections and user commands are serialized through its loop.
type Runner struct {
	machine    *Machine
	detections <-chan presence.Detection
	commands   chan command
	updates    chan Snapshot
	done       chan struct{}
	logger     *slog.Logger

	// Now and TickInterval can be replaced before Run is called.
	Now          func() time.Time
	TickInterval time.Duration
}

// NewRunner wraps m. detections may be nil when presence is fed some other
// way; a closed detections channel means the detector gave up.
func NewRunner(m *Machine, detections <-chan presence.Detection, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		machine:      m,
		detections:   detections,
		commands:     make(chan command),
		updates:      make(chan Snapshot, 1),
		done:         make(chan struct{}),
		logger:       logger,
		Now:          time.Now,
		TickInterval: time.Second,
	}
}

// Settings returns the settings of the wrapped machine.
func (r *Runner) Settings() Settings { return r.machine.Settings() }

// Updates delivers the latest snapshot after every event. Slow readers
// only ever see the most recent one.
func (r *Runner) Updates() <-chan Snapshot { return r.updates }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Run processes events until the session is ended or ctx is cancelled.
// Cancelling ctx ends a running session first.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.TickInterval)
	defer ticker.Stop()

	detections := r.detections
	for {
		select {
		case <-ctx.Done():
			r.machine.OnEnd(r.Now())
			r.publish()
			return nil

		case <-ticker.C:
			r.machine.OnTick(r.Now())

		case d, ok := <-detections:
			if !ok {
				r.logger.Warn("presence detection stopped; timer will starve")
				detections = nil
				continue
			}
			at := d.At
			if at.IsZero() {
				at = r.Now()
			}
			r.machine.OnPresence(at, d.Found, d.Confidence)

		case c := <-r.commands:
			now := r.Now()
			var err error
			switch c.kind {
			case cmdStart:
				err = r.machine.OnStart(now)
			case cmdEnd:
				r.machine.OnEnd(now)
			case cmdHold:
				r.machine.OnHoldToggle(now)
			}
			c.reply <- reply{snap: r.machine.Snapshot(now), err: err}
			if c.kind == cmdEnd {
				r.publish()
				return nil
			}
		}
		r.publish()
	}
}

func (r *Runner) publish() {
	snap := r.machine.Snapshot(r.Now())
	select {
	case <-r.updates:
	default:
	}
	r.updates <- snap
}

func (r *Runner) send(kind commandKind) (Snapshot, error) {
	c := command{kind: kind, reply: make(chan reply, 1)}
	select {
	case r.commands <- c:
	case <-r.done:
		return Snapshot{}, ErrStopped
	}
	rep := <-c.reply
	return rep.snap, rep.err
}

func (r *Runner) Start() (Snapshot, error) { return r.send(cmdStart) }

func (r *Runner) End() (Snapshot, error) { return r.send(cmdEnd) }

func (r *Runner) ToggleHold() (Snapshot, error) { return r.send(cmdHold) }

func (r *Runner) Snapshot() (Snapshot, error) { return r.send(cmdSnapshot) }
