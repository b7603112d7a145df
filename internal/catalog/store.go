// Package catalog stores the to-do list of tasks and subtasks as a single
// JSON document. Every change reads the whole file, mutates it and writes
// it back atomically.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Store struct {
	path   string
	logger *slog.Logger
	focus  *Focus
	mu     sync.Mutex
}

// Open returns a store for the catalog at path. The file is created on
// the first write.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{path: path, logger: logger, focus: NewFocus()}
}

func (s *Store) Path() string { return s.path }

// Focus publishes the current in-progress task after every change.
func (s *Store) Focus() *Focus { return s.focus }

// Load reads the catalog. A missing file is an empty catalog.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Document, error) {
	var doc Document
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			doc.normalize()
			return doc, nil
		}
		return doc, fmt.Errorf("read catalog: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		doc.normalize()
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("decode catalog %s: %w", filepath.Base(s.path), err)
	}
	doc.normalize()
	return doc, nil
}

// Save replaces the catalog with doc.
func (s *Store) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(&doc); err != nil {
		return err
	}
	s.publish(&doc)
	return nil
}

func (s *Store) save(doc *Document) error {
	doc.normalize()
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// Update runs fn on the current catalog and saves the result. Nothing is
// written when fn fails. A catalog that cannot be decoded is never
// overwritten.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	if err := s.save(&doc); err != nil {
		return err
	}
	s.publish(&doc)
	return nil
}

// Refresh reloads the catalog and republishes the current task.
func (s *Store) Refresh() (Document, error) {
	doc, err := s.Load()
	if err != nil {
		s.logger.Warn("catalog unreadable", "path", s.path, "err", err)
		return doc, err
	}
	s.publish(&doc)
	return doc, nil
}

func (s *Store) publish(doc *Document) {
	task, subtask, _ := doc.CurrentTask()
	s.focus.Set(task, subtask)
}

// AddTask appends a new task. EstimatedTime is validated as hours.
func (s *Store) AddTask(t Task) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ErrEmptyName
	}
	est, err := ParseHours(t.EstimatedTime)
	if err != nil {
		return err
	}
	t.EstimatedTime = est
	if t.ActualTime == "" {
		t.ActualTime = "0"
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}
	return s.Update(func(doc *Document) error {
		if _, ok := doc.Task(t.Name); ok {
			return fmt.Errorf("add task %q: %w", t.Name, ErrDuplicateTask)
		}
		doc.Tasks = append(doc.Tasks, t)
		return nil
	})
}

// DeleteTask removes a task and all its subtasks.
func (s *Store) DeleteTask(name string) error {
	return s.Update(func(doc *Document) error {
		for i := range doc.Tasks {
			if doc.Tasks[i].Name == name {
				doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("delete task %q: %w", name, ErrTaskNotFound)
	})
}

// AddSubtask appends a subtask to task. EstimatedTime is validated as
// hours and an empty status means Pending.
func (s *Store) AddSubtask(task string, st Subtask) error {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return ErrEmptyName
	}
	est, err := ParseHours(st.EstimatedTime)
	if err != nil {
		return err
	}
	st.EstimatedTime = est
	if st.Status == "" {
		st.Status = Pending
	}
	if st.ActualTime == "" {
		st.ActualTime = "0"
	}
	return s.Update(func(doc *Document) error {
		t, ok := doc.Task(task)
		if !ok {
			return fmt.Errorf("add subtask to %q: %w", task, ErrTaskNotFound)
		}
		if _, dup := t.Subtask(st.Name); dup {
			return fmt.Errorf("add subtask %q: %w", st.Name, ErrDuplicateSubtask)
		}
		t.Subtasks = append(t.Subtasks, st)
		return nil
	})
}

// DeleteSubtask removes a subtask. When prune is set, a task left without
// subtasks is removed as well.
func (s *Store) DeleteSubtask(task, subtask string, prune bool) error {
	return s.Update(func(doc *Document) error {
		for i := range doc.Tasks {
			t := &doc.Tasks[i]
			if t.Name != task {
				continue
			}
			for j := range t.Subtasks {
				if t.Subtasks[j].Name != subtask {
					continue
				}
				t.Subtasks = append(t.Subtasks[:j], t.Subtasks[j+1:]...)
				if prune && len(t.Subtasks) == 0 {
					doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
				}
				return nil
			}
			return fmt.Errorf("delete subtask %q: %w", subtask, ErrSubtaskNotFound)
		}
		return fmt.Errorf("delete subtask of %q: %w", task, ErrTaskNotFound)
	})
}

// CycleStatus advances a subtask to its next status and returns it.
func (s *Store) CycleStatus(task, subtask string) (Status, error) {
	var next Status
	err := s.Update(func(doc *Document) error {
		st, err := findSubtask(doc, task, subtask)
		if err != nil {
			return err
		}
		st.Status = st.Status.Next()
		next = st.Status
		return nil
	})
	return next, err
}

// SetStatus puts a subtask into status.
func (s *Store) SetStatus(task, subtask string, status Status) error {
	return s.Update(func(doc *Document) error {
		st, err := findSubtask(doc, task, subtask)
		if err != nil {
			return err
		}
		st.Status = status
		return nil
	})
}

// SetActualTime overwrites a subtask's actual time, given in hours.
func (s *Store) SetActualTime(task, subtask, hours string) error {
	v, err := ParseHours(hours)
	if err != nil {
		return err
	}
	if v == NotAvailable {
		v = "0"
	}
	return s.Update(func(doc *Document) error {
		st, err := findSubtask(doc, task, subtask)
		if err != nil {
			return err
		}
		st.ActualTime = v
		return nil
	})
}

// ReplaceSource swaps every task imported under source for tasks. Tasks
// from other sources and hand-made tasks are left alone.
func (s *Store) ReplaceSource(source string, tasks []Task) (removed int, err error) {
	err = s.Update(func(doc *Document) error {
		kept := doc.Tasks[:0]
		for _, t := range doc.Tasks {
			if t.Source == source {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		for _, t := range tasks {
			t.Source = source
			kept = append(kept, t)
		}
		doc.Tasks = kept
		return nil
	})
	return removed, err
}

func findSubtask(doc *Document, task, subtask string) (*Subtask, error) {
	t, ok := doc.Task(task)
	if !ok {
		return nil, fmt.Errorf("find %q: %w", task, ErrTaskNotFound)
	}
	st, ok := t.Subtask(subtask)
	if !ok {
		return nil, fmt.Errorf("find %q/%q: %w", task, subtask, ErrSubtaskNotFound)
	}
	return st, nil
}
