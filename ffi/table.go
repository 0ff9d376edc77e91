package ffi

import (
	"sync"

	"github.com/hostbridge/plugin-runtime/runtime"
)

// Handle is the opaque instance identifier held by the host. Zero is
// never a valid handle.
type Handle uint64

// table maps handles to live instances. Ids are monotonic; a removed
// handle's id is never assigned again.
type table struct {
	mu   sync.RWMutex
	next Handle
	m    map[Handle]*runtime.Instance
}

func newTable() *table {
	return &table{m: make(map[Handle]*runtime.Instance)}
}

func (t *table) put(inst *runtime.Instance) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.m[h] = inst
	return h
}

func (t *table) get(h Handle) (*runtime.Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.m[h]
	return inst, ok
}

// remove takes the instance out of the table so no new boundary call can
// reach it, and returns it for the caller to shut down.
func (t *table) remove(h Handle) (*runtime.Instance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	inst, ok := t.m[h]
	if ok {
		delete(t.m, h)
	}
	return inst, ok
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
