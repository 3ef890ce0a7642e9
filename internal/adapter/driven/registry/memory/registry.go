package memory

import (
	"sort"
	"sync"

	"github.com/Wyydra/rendezvous/internal/core/port"
)

// Registry is a mutex-guarded name directory. RegisterOrGet runs the
// factory under the lock, so at most one room exists per name.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]port.Room
}

var _ port.Registry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]port.Room),
	}
}

func (r *Registry) Lookup(name string) (port.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

func (r *Registry) RegisterOrGet(name string, factory port.RoomFactory) (port.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[name]; ok {
		return room, false
	}
	room := factory(name)
	r.rooms[name] = room
	return room, true
}

func (r *Registry) Unregister(name string, room port.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[name]; ok && cur == room {
		delete(r.rooms, name)
	}
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
