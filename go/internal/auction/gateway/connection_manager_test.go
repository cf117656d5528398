package gateway

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newTestClient(poolID uuid.UUID, userID string) *client {
	return &client{
		id:     uuid.New().String(),
		userID: userID,
		poolID: poolID,
		send:   make(chan []byte, 4),
	}
}

func recv(t *testing.T, c *client) []byte {
	t.Helper()
	select {
	case b := <-c.send:
		return b
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast frame")
		return nil
	}
}

func TestFanout_PoolAndUserScoping(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	poolID := uuid.New()
	alice := newTestClient(poolID, "alice")
	bob := newTestClient(poolID, "bob")
	other := newTestClient(uuid.New(), "carol")
	cm.add(alice)
	cm.add(bob)
	cm.add(other)

	event := &AuctionEvent{ID: uuid.New().String(), PoolID: poolID.String(), Type: EventTypeNewBid}

	// Pool-scoped events reach every client in the pool and nobody else.
	cm.fanout(broadcast{poolID: poolID, event: event})
	check.NotNil(t, recv(t, alice))
	check.NotNil(t, recv(t, bob))
	check.Equal(t, 0, len(other.send))

	// User-scoped events reach only that user's connections.
	cm.fanout(broadcast{poolID: poolID, userID: "bob", event: event})
	check.NotNil(t, recv(t, bob))
	check.Equal(t, 0, len(alice.send))
}

func TestRemove_ClosesOnce(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	poolID := uuid.New()
	c := newTestClient(poolID, "alice")
	cm.add(c)

	stats := cm.GetConnectionStats()
	check.Equal(t, 1, stats["total_connections"].(int))

	// Both pumps race to remove on teardown; the second call is a no-op.
	cm.remove(c)
	cm.remove(c)

	_, open := <-c.send
	check.True(t, !open)

	stats = cm.GetConnectionStats()
	check.Equal(t, 0, stats["total_connections"].(int))
	check.Equal(t, 0, stats["active_pools"].(int))

	// Broadcasting to an empty pool does nothing.
	cm.fanout(broadcast{poolID: poolID, event: &AuctionEvent{Type: EventTypeItemSold}})
	assert.Equal(t, 0, len(cm.clients))
}
