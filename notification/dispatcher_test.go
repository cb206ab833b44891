package notification

import (
	"context"
	"errors"
	"testing"
)

type memoryStore struct {
	seen      map[string]bool
	insertErr error
	inserts   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{seen: make(map[string]bool)}
}

func (m *memoryStore) key(n Notification) string {
	entityID := ""
	if n.EntityID != nil {
		entityID = *n.EntityID
	}
	entityType := ""
	if n.EntityType != nil {
		entityType = *n.EntityType
	}
	return n.UserID + "|" + entityID + "|" + entityType + "|" + string(n.Type)
}

func (m *memoryStore) InsertDeduped(_ context.Context, n Notification) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	k := m.key(n)
	if n.EntityID != nil && m.seen[k] {
		return false, nil
	}
	m.seen[k] = true
	m.inserts++
	return true, nil
}

func TestDispatch_CreatesNotification(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(store, nil)

	d.Dispatch(context.Background(), Event{
		UserID:     "buyer-1",
		Type:       TypePaymentReceived,
		Title:      "Payment received",
		EntityID:   "ord-1",
		EntityType: EntityOrder,
	})

	if store.inserts != 1 {
		t.Fatalf("expected one insert, got %d", store.inserts)
	}
}

func TestDispatch_DeduplicatesReplayedEvent(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(store, nil)

	ev := Event{
		UserID:     "buyer-1",
		Type:       TypePaymentReceived,
		Title:      "Payment received",
		EntityID:   "ord-1",
		EntityType: EntityOrder,
	}
	d.Dispatch(context.Background(), ev)
	d.Dispatch(context.Background(), ev)

	if store.inserts != 1 {
		t.Fatalf("expected replay to be suppressed, got %d inserts", store.inserts)
	}
}

func TestDispatch_DistinctEntitiesAreNotDeduped(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(store, nil)

	for _, orderID := range []string{"ord-1", "ord-2"} {
		d.Dispatch(context.Background(), Event{
			UserID:     "buyer-1",
			Type:       TypeOrderStatusChanged,
			Title:      "Order status changed",
			EntityID:   orderID,
			EntityType: EntityOrder,
		})
	}

	if store.inserts != 2 {
		t.Fatalf("expected two inserts, got %d", store.inserts)
	}
}

func TestDispatch_SwallowsStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.insertErr = errors.New("connection reset")
	d := NewDispatcher(store, nil)

	// Must not panic or propagate; the caller has already committed.
	d.Dispatch(context.Background(), Event{
		UserID:   "buyer-1",
		Type:     TypePaymentReceived,
		EntityID: "ord-1",
	})
}

func TestDispatch_DropsEventWithoutUser(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(store, nil)

	d.Dispatch(context.Background(), Event{
		Type:     TypePaymentReceived,
		EntityID: "ord-1",
	})

	if store.inserts != 0 {
		t.Fatalf("expected no insert without a user, got %d", store.inserts)
	}
}

func TestDispatch_DropsUnknownType(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(store, nil)

	d.Dispatch(context.Background(), Event{
		UserID: "buyer-1",
		Type:   "carrier_pigeon",
	})

	if store.inserts != 0 {
		t.Fatalf("expected unknown type to be dropped, got %d inserts", store.inserts)
	}
}
