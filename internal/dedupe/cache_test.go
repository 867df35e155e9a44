// ABOUTME: Tests for the in-flight request guard cache.
// ABOUTME: Covers first-claim-wins, release, expiry, eviction, per-connection forget and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClaimFirstWins(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.True(t, c.Claim("conn-1", "broadcast_1"))
	assert.False(t, c.Claim("conn-1", "broadcast_1"))
}

func TestReleaseAllowsReuse(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.True(t, c.Claim("conn-1", "joinChannel_1700000000000"))
	c.Release("conn-1", "joinChannel_1700000000000")
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Claim("conn-1", "joinChannel_1700000000000"))

	// Releasing an id that was never claimed is a no-op.
	c.Release("conn-1", "joinChannel_1")
	assert.Equal(t, 1, c.Len())
}

func TestClaimIsScopedToConnection(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.True(t, c.Claim("conn-1", "joinChannel_5"))
	assert.True(t, c.Claim("conn-2", "joinChannel_5"))
	assert.Equal(t, 2, c.Len())
}

func TestClaimExpires(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.True(t, c.Claim("conn-1", "open_1"))
	time.Sleep(20 * time.Millisecond)

	assert.True(t, c.Claim("conn-1", "open_1"))
	assert.Equal(t, 1, c.Len())
}

func TestClaimEvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Claim("conn-1", "a")
	c.Claim("conn-1", "b")
	c.Claim("conn-1", "c")
	assert.Equal(t, 2, c.Len())

	// "a" was evicted, so it can be claimed again; that evicts "b".
	assert.True(t, c.Claim("conn-1", "a"))
	assert.False(t, c.Claim("conn-1", "c"))
	assert.Equal(t, 2, c.Len())
}

func TestForgetDropsConnectionClaims(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	c.Claim("conn-1", "a")
	c.Claim("conn-1", "b")
	c.Claim("conn-2", "a")

	c.Forget("conn-1")
	assert.Equal(t, 1, c.Len())

	// Forgetting an unknown connection is a no-op.
	c.Forget("conn-9")
	assert.Equal(t, 1, c.Len())

	assert.True(t, c.Claim("conn-1", "a"))
	assert.False(t, c.Claim("conn-2", "a"))
}

func TestSweepRemovesExpired(t *testing.T) {
	c := NewWithInterval(5*time.Millisecond, 100, time.Hour)
	defer c.Close()

	c.Claim("conn-1", "a")
	c.Claim("conn-1", "b")
	time.Sleep(10 * time.Millisecond)
	c.Claim("conn-1", "fresh")

	c.sweep()

	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Claim("conn-1", "fresh"))
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestConcurrentClaimsYieldOneWinner(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	for i := range 20 {
		eventID := fmt.Sprintf("raiseIntent_%d", i)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Claim("conn-1", eventID) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load(), eventID)
	}
}
