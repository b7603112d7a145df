package presence

import (
	"context"
	"sync/atomic"
	"time"
)

// ManualSampler reports whatever presence was last set by hand. It stands
// in for a camera when none is available.
type ManualSampler struct {
	present  atomic.Bool
	interval time.Duration
}

func NewManualSampler(interval time.Duration) *ManualSampler {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &ManualSampler{interval: interval}
}

func (m *ManualSampler) Set(present bool) { m.present.Store(present) }

// Toggle flips presence and returns the new value.
func (m *ManualSampler) Toggle() bool {
	for {
		old := m.present.Load()
		if m.present.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (m *ManualSampler) Present() bool { return m.present.Load() }

func (m *ManualSampler) Sample(ctx context.Context) (Detection, error) {
	t := time.NewTimer(m.interval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	}
	if m.present.Load() {
		return Detection{Found: true, Confidence: 1}, nil
	}
	return Detection{}, nil
}

func (m *ManualSampler) Close() error { return nil }

// Opener hands out the same sampler for every device index.
func (m *ManualSampler) Opener() Opener {
	return func(int) (Sampler, error) { return m, nil }
}
