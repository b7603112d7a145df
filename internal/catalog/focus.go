package catalog

import "sync"

// Focus holds the task currently being worked on. The catalog store
// publishes to it and the tracker reads from it.
type Focus struct {
	mu      sync.RWMutex
	task    string
	subtask string
	subs    []func(task, subtask string)
}

func NewFocus() *Focus { return &Focus{} }

// CurrentTask satisfies the tracker's task provider.
func (f *Focus) CurrentTask() (string, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.task, f.subtask
}

// Set changes the focus and notifies subscribers if it moved.
func (f *Focus) Set(task, subtask string) {
	f.mu.Lock()
	if f.task == task && f.subtask == subtask {
		f.mu.Unlock()
		return
	}
	f.task, f.subtask = task, subtask
	subs := append([]func(string, string){}, f.subs...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(task, subtask)
	}
}

// Subscribe registers fn to be called on every change.
func (f *Focus) Subscribe(fn func(task, subtask string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}
