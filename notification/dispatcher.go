package notification

import (
	"context"
	"log/slog"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	// InsertDeduped creates the notification unless one with the same
	// (user, entity, entity type, type) key already exists. It reports
	// whether a row was written.
	InsertDeduped(ctx context.Context, n Notification) (bool, error)
}

// Dispatcher maps lifecycle and payment transitions to notification rows.
// Dispatch is best-effort: failures are logged and swallowed so they can never
// roll back the business transition that triggered them.
type Dispatcher struct {
	store  Store
	logger *slog.Logger
}

func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger}
}

// Dispatch creates one notification for the event, deduplicated per
// (user, entity, entity type, type). Firing the same underlying event twice,
// e.g. from a replayed webhook, writes nothing the second time.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if e.UserID == "" {
		d.logger.Warn("notification: dispatch without user id", "type", e.Type)
		return
	}
	if !validType(e.Type) {
		d.logger.Warn("notification: unknown event type", "type", e.Type)
		return
	}

	n := Notification{
		UserID:   e.UserID,
		Type:     e.Type,
		Title:    e.Title,
		Message:  e.Message,
		Metadata: e.Metadata,
	}
	if e.EntityID != "" {
		entityID := e.EntityID
		entityType := e.EntityType
		n.EntityID = &entityID
		n.EntityType = &entityType
	}

	created, err := d.store.InsertDeduped(ctx, n)
	if err != nil {
		d.logger.Error("notification: dispatch failed",
			"type", e.Type, "user_id", e.UserID, "entity_id", e.EntityID, "error", err)
		return
	}
	if !created {
		d.logger.Debug("notification: duplicate suppressed",
			"type", e.Type, "user_id", e.UserID, "entity_id", e.EntityID)
	}
}
