package core

import (
	"sync"
	"sync/atomic"
)

var (
	nextObjectID atomic.Uint64

	objectCountsMu sync.Mutex
	objectCounts   = make(map[string]uint64)
)

// ObjectID returns a process-wide unique, increasing id starting at 0.
func ObjectID() uint64 {
	return nextObjectID.Add(1) - 1
}

// ObjectCount returns how many objects of kind were counted before this call.
// Each kind has its own sequence starting at 0, so names like "Fanout#0" and
// "TaskManager#0" can coexist.
func ObjectCount(kind string) uint64 {
	objectCountsMu.Lock()
	defer objectCountsMu.Unlock()
	n := objectCounts[kind]
	objectCounts[kind] = n + 1
	return n
}
