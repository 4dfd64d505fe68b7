package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/dialogue"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Put("u1", Entry{
		LastIntent: "ask_piano_description",
		LastSlots:  map[string]any{"plan_code": "A1"},
		Dialogue:   dialogue.State{ConfirmedIntent: "ask_piano_description"},
	})

	got, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "ask_piano_description", got.LastIntent)
	assert.Equal(t, "A1", got.LastSlots["plan_code"])
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Put("u1", Entry{LastSlots: map[string]any{"plan_code": "A1"}})

	first, _ := s.Get("u1")
	first.LastSlots["plan_code"] = "MUTATED"

	second, _ := s.Get("u1")
	assert.Equal(t, "A1", second.LastSlots["plan_code"])
}

func TestExpiredEntryReadsAsAbsent(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	defer s.Close()

	s.Put("u1", Entry{LastIntent: "greet"})
	time.Sleep(30 * time.Millisecond)

	_, ok := s.Get("u1")
	assert.False(t, ok)
}

func TestEvictPurgesAfterDoubleTTL(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	defer s.Close()

	s.Put("u1", Entry{LastIntent: "greet"})
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, 1, s.Count())
	s.Evict()
	assert.Zero(t, s.Count())
}

func TestDeleteRemovesEntry(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Put("u1", Entry{LastIntent: "greet"})
	s.Delete("u1")
	_, ok := s.Get("u1")
	assert.False(t, ok)
}

func TestPerSenderLockSerializes(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	var order []int
	var wg sync.WaitGroup
	unlock := s.Lock("u1")

	wg.Add(1)
	go func() {
		defer wg.Done()
		inner := s.Lock("u1")
		order = append(order, 2)
		inner()
	}()

	time.Sleep(10 * time.Millisecond)
	order = append(order, 1)
	unlock()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
}

func TestEvictionKeepsHeldLockSerializing(t *testing.T) {
	s := NewStore(5 * time.Millisecond)
	defer s.Close()

	s.Put("u1", Entry{LastIntent: "greet"})
	unlock := s.Lock("u1")

	// Age the entry past 2×TTL and purge while the lock is held.
	time.Sleep(15 * time.Millisecond)
	s.Evict()
	require.Zero(t, s.Count())

	acquired := make(chan struct{})
	go func() {
		inner := s.Lock("u1")
		close(acquired)
		inner()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn acquired the sender lock while the first still held it")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never acquired the lock after release")
	}
}

func TestEvictOptionsHonored(t *testing.T) {
	s := NewStore(time.Millisecond, WithEvictEveryWrites(2), WithEvictInterval(time.Hour))
	defer s.Close()

	s.Put("u1", Entry{LastIntent: "greet"})
	time.Sleep(5 * time.Millisecond)

	// The second write crosses the configured write threshold and
	// purges the aged entry.
	s.Put("u2", Entry{LastIntent: "greet"})
	assert.Equal(t, 1, s.Count())
}

func TestUpdatedAtMonotonic(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Put("u1", Entry{})
	first, _ := s.Get("u1")

	time.Sleep(5 * time.Millisecond)
	s.Put("u1", Entry{})
	second, _ := s.Get("u1")

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
}
