package notification

import (
	"context"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
)

type IDGenerator interface {
	NewID() string
}

// Provider is the boundary call for one channel. Implementations are
// swappable; tests inject deterministic fakes.
type Provider interface {
	Send(ctx context.Context, n *domain.Notification) (externalMessageID string, err error)
}

// ProviderResolver picks the provider for a channel. A nil result means the
// channel has no external provider (in_app is stored, not sent).
type ProviderResolver func(ch domain.Channel) Provider
