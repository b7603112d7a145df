// Package presence turns a camera-backed face detector into a stream of
// presence detections.
package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrNoSignal is returned by Monitor.Run when neither device delivers
// frames after a reacquire attempt.
var ErrNoSignal = errors.New("presence: no device delivers frames")

// Detection is the detector's verdict on one frame.
type Detection struct {
	Found      bool
	Confidence float64
	At         time.Time
}

// Sampler reads and classifies frames from one capture device. Sample
// blocks until a frame has been classified or reading it failed.
type Sampler interface {
	Sample(ctx context.Context) (Detection, error)
	Close() error
}

// Opener opens the capture device with the given index.
type Opener func(index int) (Sampler, error)

type MonitorOptions struct {
	Device     int
	Alternate  int // device tried when Device stops delivering; negative disables
	MaxRetries int // consecutive failed reads before the device is reopened
	Buffer     int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Monitor reads frames on its own goroutine and publishes detections on a
// bounded channel. Capture I/O never blocks the consumer: when the channel
// is full the detection is dropped.
type Monitor struct {
	open   Opener
	opts   MonitorOptions
	out    chan Detection
	logger *slog.Logger

	device   int
	failures int
	dropped  int
}

func NewMonitor(open Opener, opts MonitorOptions) *Monitor {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		open:   open,
		opts:   opts,
		out:    make(chan Detection, opts.Buffer),
		logger: opts.Logger,
		device: opts.Device,
	}
}

// Detections is closed when Run returns.
func (m *Monitor) Detections() <-chan Detection { return m.out }

// Run reads until ctx is done. On MaxRetries consecutive failed reads it
// reopens the device, then falls back to the alternate device. If that
// also fails Run gives up with ErrNoSignal and no more detections arrive.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	s, err := m.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		if s != nil {
			s.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := s.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.failures++
			m.logger.Debug("frame read failed", "device", m.device, "failures", m.failures, "err", err)
			if m.failures < m.opts.MaxRetries {
				continue
			}
			m.failures = 0
			s.Close()
			s = nil
			m.logger.Warn("reinitializing capture device", "device", m.device)
			if s, err = m.reacquire(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}
		m.failures = 0
		m.publish(d)
	}
}

func (m *Monitor) publish(d Detection) {
	if d.At.IsZero() {
		d.At = m.opts.Now()
	}
	select {
	case m.out <- d:
	default:
		m.dropped++
		m.logger.Debug("detection dropped", "dropped", m.dropped)
	}
}

// acquire opens the configured device, falling back to the alternate.
func (m *Monitor) acquire(ctx context.Context) (Sampler, error) {
	s, d, err := m.tryOpen(ctx, m.device)
	if err == nil {
		m.publish(d)
		return s, nil
	}
	m.logger.Warn("capture device unusable", "device", m.device, "err", err)
	return m.switchDevice(ctx)
}

// reacquire reopens the current device and switches to the alternate when
// the reopened device still delivers nothing.
func (m *Monitor) reacquire(ctx context.Context) (Sampler, error) {
	s, d, err := m.tryOpen(ctx, m.device)
	if err == nil {
		m.publish(d)
		return s, nil
	}
	m.logger.Warn("capture device still failing", "device", m.device, "err", err)
	return m.switchDevice(ctx)
}

func (m *Monitor) switchDevice(ctx context.Context) (Sampler, error) {
	alt := m.alternate()
	if alt < 0 {
		return nil, ErrNoSignal
	}
	m.device = alt
	m.logger.Warn("switching capture device", "device", alt)
	s, d, err := m.tryOpen(ctx, alt)
	if err != nil {
		m.logger.Error("no capture device delivers frames", "device", alt, "err", err)
		return nil, ErrNoSignal
	}
	m.publish(d)
	return s, nil
}

// alternate flips between the configured device and its alternate.
func (m *Monitor) alternate() int {
	if m.opts.Alternate < 0 || m.opts.Alternate == m.opts.Device {
		return -1
	}
	if m.device == m.opts.Device {
		return m.opts.Alternate
	}
	return m.opts.Device
}

// tryOpen opens index and reads one frame to prove the device works.
func (m *Monitor) tryOpen(ctx context.Context, index int) (Sampler, Detection, error) {
	s, err := m.open(index)
	if err != nil {
		return nil, Detection{}, fmt.Errorf("open device %d: %w", index, err)
	}
	d, err := s.Sample(ctx)
	if err != nil {
		s.Close()
		return nil, Detection{}, fmt.Errorf("read device %d: %w", index, err)
	}
	return s, d, nil
}
