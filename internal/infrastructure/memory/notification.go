package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
)

type NotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{notifications: make(map[string]*domain.Notification)}
}

func (r *NotificationRepository) Insert(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[n.ID] = n.Clone()
	return nil
}

func (r *NotificationRepository) Get(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *NotificationRepository) Update(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notifications[n.ID]; !ok {
		return domain.ErrNotFound
	}
	r.notifications[n.ID] = n.Clone()
	return nil
}

func (r *NotificationRepository) FindDue(_ context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectSorted(limit, func(n *domain.Notification) bool {
		return n.Due(now)
	}), nil
}

func (r *NotificationRepository) FindRetryable(_ context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectSorted(limit, func(n *domain.Notification) bool {
		return n.Retryable(now)
	}), nil
}

// selectSorted returns clones of matching rows, oldest first. Callers hold
// the read lock.
func (r *NotificationRepository) selectSorted(limit int, match func(*domain.Notification) bool) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range r.notifications {
		if match(n) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type PreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[string]*domain.Preference
}

func NewPreferenceRepository() *PreferenceRepository {
	return &PreferenceRepository{prefs: make(map[string]*domain.Preference)}
}

func (r *PreferenceRepository) Get(_ context.Context, userID string) (*domain.Preference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PreferenceRepository) Save(_ context.Context, p *domain.Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[p.UserID] = p.Clone()
	return nil
}
