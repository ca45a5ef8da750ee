package notification

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	// FindDue selects pending notifications with scheduledFor <= now,
	// bounded by limit, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	// FindRetryable selects failed notifications with attempts left whose
	// backoff deadline has passed.
	FindRetryable(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
}

type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (*Preference, error)
	Save(ctx context.Context, p *Preference) error
}
