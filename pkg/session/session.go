// Package session keeps the per-sender conversational memory between
// turns. Entries live in process memory with a TTL; a keyed mutex
// serializes turns for the same sender while different senders proceed
// in parallel.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vigila-ai/vigila/pkg/dialogue"
	"github.com/vigila-ai/vigila/pkg/fallback"
	"github.com/vigila-ai/vigila/pkg/observability"
	"github.com/vigila-ai/vigila/pkg/tools"
)

// Entry is everything remembered about a sender between turns.
type Entry struct {
	Dialogue dialogue.State `json:"dialogue"`
	Fallback fallback.State `json:"fallback"`

	LastIntent string         `json:"last_intent,omitempty"`
	LastSlots  map[string]any `json:"last_slots,omitempty"`

	// LastResponseContext supports anaphora on the next turn ("e il
	// secondo?").
	LastResponseContext map[string]any `json:"last_response_context,omitempty"`

	// Detail is the stashed two-phase payload awaiting confirmation.
	Detail *tools.DetailContext `json:"detail,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy: maps are copied, the detail payload
// is shared (it is never mutated after creation).
func (e Entry) Clone() Entry {
	out := e
	out.LastSlots = copyMap(e.LastSlots)
	out.LastResponseContext = copyMap(e.LastResponseContext)
	out.Dialogue.Slots = copyMap(e.Dialogue.Slots)
	out.Dialogue.PendingIntents = append([]string(nil), e.Dialogue.PendingIntents...)
	out.Fallback.Suggestions = append([]string(nil), e.Fallback.Suggestions...)
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

const (
	defaultEvictEveryWrites = 100
	defaultEvictTick        = 30 * time.Second
)

// Store is the in-memory session store.
type Store struct {
	ttl              time.Duration
	evictEveryWrites int
	evictTick        time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
	writes  int

	lockMu sync.Mutex
	locks  map[string]*senderLock

	stop     chan struct{}
	stopOnce sync.Once
}

// senderLock serializes one sender's turns. The refcount counts holders
// plus waiters; the lock leaves the map when it drops to zero, so lock
// lifetime never depends on entry eviction.
type senderLock struct {
	mu   sync.Mutex
	refs int
}

// Option tunes a Store.
type Option func(*Store)

// WithEvictEveryWrites triggers a purge pass every n writes.
func WithEvictEveryWrites(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.evictEveryWrites = n
		}
	}
}

// WithEvictInterval sets the background purge tick.
func WithEvictInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.evictTick = d
		}
	}
}

// NewStore creates a store with the given entry TTL and starts the
// background eviction tick.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:              ttl,
		evictEveryWrites: defaultEvictEveryWrites,
		evictTick:        defaultEvictTick,
		entries:          make(map[string]Entry),
		locks:            make(map[string]*senderLock),
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.evictLoop()
	return s
}

// Lock serializes turns for one sender and returns the matching unlock.
func (s *Store) Lock(sender string) (unlock func()) {
	s.lockMu.Lock()
	l := s.locks[sender]
	if l == nil {
		l = &senderLock{}
		s.locks[sender] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sender)
		}
		s.lockMu.Unlock()
	}
}

// Get returns a copy of the sender's entry. Expired entries read as
// absent.
func (s *Store) Get(sender string) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[sender]
	s.mu.RUnlock()

	if !ok || time.Since(entry.UpdatedAt) > s.ttl {
		return Entry{}, false
	}
	return entry.Clone(), true
}

// Put replaces the sender's entry wholesale and stamps UpdatedAt.
func (s *Store) Put(sender string, entry Entry) {
	entry.UpdatedAt = time.Now()

	s.mu.Lock()
	s.entries[sender] = entry
	s.writes++
	purge := s.writes%s.evictEveryWrites == 0
	s.mu.Unlock()

	if purge {
		s.Evict()
	}
	s.publishCount()
}

// Delete removes a sender's entry, used when deserialization finds a
// corrupt state.
func (s *Store) Delete(sender string) {
	s.mu.Lock()
	delete(s.entries, sender)
	s.mu.Unlock()
	s.publishCount()
}

// Count returns the number of stored entries, expired ones included
// until the next purge.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict removes entries idle for more than twice the TTL.
func (s *Store) Evict() {
	cutoff := time.Now().Add(-2 * s.ttl)

	s.mu.Lock()
	removed := 0
	for sender, entry := range s.entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(s.entries, sender)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		slog.Debug("Evicted idle sessions", "count", removed)
	}
	s.publishCount()
}

// Close stops the eviction loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) evictLoop() {
	ticker := time.NewTicker(s.evictTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evict()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) publishCount() {
	if m := observability.GetGlobalMetrics(); m != nil {
		m.SetSessionsAlive(s.Count())
	}
}
