// pkg/editor/registry.go
package editor

import (
	"sort"
	"sync"
	"time"

	"github.com/David-Botos/parquet-editor/pkg/session"
)

// sessionRegistry holds the open edit sessions by ID
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session.Session)}
}

func (r *sessionRegistry) add(s *session.Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return len(r.sessions)
}

func (r *sessionRegistry) get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) remove(id string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok, len(r.sessions)
}

// list returns the sessions ordered by creation time
func (r *sessionRegistry) list() []*session.Session {
	r.mu.RLock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// prune removes sessions idle since before cutoff and returns the IDs removed
func (r *sessionRegistry) prune(cutoff time.Time) ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.UpdatedAt().Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed, len(r.sessions)
}

// destinationLocks tracks destinations with a commit in flight
type destinationLocks struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newDestinationLocks() *destinationLocks {
	return &destinationLocks{inflight: make(map[string]struct{})}
}

// tryAcquire claims key without blocking, reporting whether it was free
func (l *destinationLocks) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inflight[key]; busy {
		return false
	}
	l.inflight[key] = struct{}{}
	return true
}

func (l *destinationLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, key)
}
