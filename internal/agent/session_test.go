package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_SerialisesTurns(t *testing.T) {
	store := NewSessionStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease := store.Acquire("s1")
			mem := lease.Memory()
			mem.Turns++
			lease.Release(mem)
		}()
	}
	wg.Wait()

	lease := store.Acquire("s1")
	defer lease.Release(lease.Memory())
	assert.Equal(t, 50, lease.Memory().Turns)
}

func TestSessionStore_ExpiresIdleSessions(t *testing.T) {
	store := NewSessionStore(time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	lease := store.Acquire("old")
	lease.Release(Memory{Turns: 3})
	held := store.Acquire("held")
	require.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	fresh := store.Acquire("new")
	fresh.Release(fresh.Memory())

	assert.Equal(t, 2, store.Len(), "idle session dropped, held one kept")
	held.Release(Memory{})

	again := store.Acquire("old")
	assert.Zero(t, again.Memory().Turns)
	again.Release(again.Memory())
}
