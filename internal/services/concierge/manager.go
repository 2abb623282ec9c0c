package concierge

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMaxSessions = 10000
	defaultSessionTTL  = 2 * time.Hour
)

// Manager keeps sessions keyed by (user, trip). Idle sessions expire and
// the least recently used are evicted past the size limit.
//
// A session evicted while a turn is running or queued is pinned until its
// queue drains, so the next request for the same (user, trip) joins that
// queue instead of starting a parallel session.
type Manager struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Session]
	factory func(userID, tripID string) *Session

	// pinMu is taken from the LRU eviction callback and must never be held
	// while calling into the cache.
	pinMu  sync.Mutex
	pinned map[string]*Session
}

func NewManager(size int, ttl time.Duration, factory func(userID, tripID string) *Session) *Manager {
	if size <= 0 {
		size = defaultMaxSessions
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	m := &Manager{
		factory: factory,
		pinned:  make(map[string]*Session),
	}
	m.cache = expirable.NewLRU[string, *Session](size, m.onEvict, ttl)
	return m
}

// Session returns the live session, creating one if needed, and refreshes its TTL
func (m *Manager) Session(userID, tripID string) *Session {
	key := sessionKey(userID, tripID)

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.cache.Get(key)
	if !ok {
		if sess, ok = m.unpin(key); !ok {
			sess = m.factory(userID, tripID)
		}
	}
	m.cache.Add(key, sess)
	return sess
}

// Lookup returns the session without creating it
func (m *Manager) Lookup(userID, tripID string) (*Session, bool) {
	key := sessionKey(userID, tripID)
	if sess, ok := m.cache.Peek(key); ok {
		return sess, true
	}

	m.pinMu.Lock()
	defer m.pinMu.Unlock()
	sess, ok := m.pinned[key]
	return sess, ok
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.pinMu.Lock()
	pinned := len(m.pinned)
	m.pinMu.Unlock()
	return m.cache.Len() + pinned
}

func (m *Manager) onEvict(key string, sess *Session) {
	if sess.queue.idle() {
		return
	}
	m.pinMu.Lock()
	m.pinned[key] = sess
	m.pinMu.Unlock()
}

// unpin takes key out of the pinned set and drops pinned sessions whose
// queue has drained.
func (m *Manager) unpin(key string) (*Session, bool) {
	m.pinMu.Lock()
	defer m.pinMu.Unlock()

	sess, ok := m.pinned[key]
	delete(m.pinned, key)
	for k, s := range m.pinned {
		if s.queue.idle() {
			delete(m.pinned, k)
		}
	}
	return sess, ok
}

func sessionKey(userID, tripID string) string {
	return userID + "\x00" + tripID
}
