package notification

import "context"

// ReadStore covers the read-flag operations exposed to users.
type ReadStore interface {
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// Service exposes the user-facing notification operations. Creation goes
// through the Dispatcher only.
type Service struct {
	store ReadStore
}

func NewService(store ReadStore) *Service {
	return &Service{store: store}
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	return s.store.List(ctx, userID, limit)
}
