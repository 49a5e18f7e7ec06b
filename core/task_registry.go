package core

import (
	"slices"
	"sync"
)

// TaskRegistry tracks the live task handles of one TaskManager.
// Every method is a single critical section.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[TaskID]*TaskHandle
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[TaskID]*TaskHandle)}
}

// Insert adds h. It returns false if h is already present.
func (r *TaskRegistry) Insert(h *TaskHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[h.id]; ok {
		return false
	}
	r.tasks[h.id] = h
	return true
}

// Remove deletes h and reports whether it was present. Removing an absent
// handle is a no-op.
func (r *TaskRegistry) Remove(h *TaskHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[h.id]; !ok {
		return false
	}
	delete(r.tasks, h.id)
	return true
}

func (r *TaskRegistry) Contains(h *TaskHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[h.id]
	return ok
}

func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Snapshot returns the live handles in creation order.
func (r *TaskRegistry) Snapshot() []*TaskHandle {
	r.mu.Lock()
	out := make([]*TaskHandle, 0, len(r.tasks))
	for _, h := range r.tasks {
		out = append(out, h)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *TaskHandle) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return out
}
