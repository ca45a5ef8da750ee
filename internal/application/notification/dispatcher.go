package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const notificationService = "notification-service"

// ErrNoProvider is recorded on an external-channel notification when no
// provider is configured for its channel.
var ErrNoProvider = errors.New("notification: no provider configured for channel")

type EnqueueInput struct {
	UserID       string
	Type         domain.Type
	Channel      domain.Channel
	Title        string
	Body         string
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
}

// Dispatcher owns the notification lifecycle: preference gating, quiet-hours
// deferral, the send pipeline and the persisted retry/backoff state machine.
// Provider failures are recorded on the entity and never surface to the
// caller that enqueued the notification.
type Dispatcher struct {
	repo      domain.Repository
	prefs     domain.PreferenceRepository
	providers ProviderResolver
	idGen     IDGenerator
	log       observability.Logger
	sendCount observability.Counter
	now       func() time.Time
}

func NewDispatcher(
	repo domain.Repository,
	prefs domain.PreferenceRepository,
	providers ProviderResolver,
	idGen IDGenerator,
	tel observability.Observability,
) *Dispatcher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Dispatcher{
		repo:      repo,
		prefs:     prefs,
		providers: providers,
		idGen:     idGen,
		log:       tel.Logger().With(observability.F("service", notificationService)),
		sendCount: tel.Metrics().Counter(observability.MExternalRequests),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the dispatcher's clock. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Enqueue creates a notification and, when it is not scheduled for later,
// sends it inline. Preference gating refuses the whole send up front; that
// is a validation failure, not a transient one.
func (d *Dispatcher) Enqueue(ctx context.Context, input EnqueueInput) (*domain.Notification, error) {
	if input.UserID == "" {
		return nil, errors.New("notification: user id is required")
	}
	if input.Channel == "" {
		return nil, errors.New("notification: channel is required")
	}

	pref, err := d.preference(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !pref.Allows(input.Type, input.Channel) {
		return nil, domain.ErrChannelNotAllowed
	}

	n := domain.New(d.idGen.NewID(), input.UserID, input.Type, input.Channel, input.Title, input.Body)
	n.ScheduledFor = input.ScheduledFor
	n.ExpiresAt = input.ExpiresAt

	if err := d.repo.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("notification: persist: %w", err)
	}

	if input.ScheduledFor == nil {
		d.Deliver(ctx, n, pref)
	}
	return n, nil
}

// Deliver pushes one pending notification through quiet-hours, expiry and
// the channel provider, then persists the resulting state. Send failures
// are swallowed here; retry sweeps take over afterwards.
func (d *Dispatcher) Deliver(ctx context.Context, n *domain.Notification, pref *domain.Preference) (sent bool) {
	logger := logctx.FromOr(ctx, d.log).With(
		observability.F("notification_id", n.ID),
		observability.F("channel", string(n.Channel)),
		observability.F("type", string(n.Type)),
	)
	now := d.now()

	if n.Expired(now) {
		n.MarkExpired(now)
		d.persist(ctx, logger, n)
		logger.Info("notification_expired")
		return false
	}

	if pref == nil {
		loaded, err := d.preference(ctx, n.UserID)
		if err != nil {
			logger.Warn("preference_load_failed", observability.F("error", err.Error()))
			loaded = &domain.Preference{UserID: n.UserID}
		}
		pref = loaded
	}

	if until, quiet := pref.QuietUntil(n.Channel, now); quiet {
		n.Defer(until, now)
		d.persist(ctx, logger, n)
		logger.Info("notification_deferred_quiet_hours",
			observability.F("deferred_until", until),
		)
		return false
	}

	if n.Channel == domain.ChannelInApp {
		// in_app notifications are stored for the user, never pushed out.
		n.MarkSent("", now)
		d.persist(ctx, logger, n)
		return true
	}

	provider := d.providers(n.Channel)
	if provider == nil {
		n.RecordFailure(ErrNoProvider, now)
		logger.Warn("notification_no_provider",
			observability.F("retry_count", n.RetryCount),
		)
		d.persist(ctx, logger, n)
		return false
	}

	externalID, err := provider.Send(ctx, n)
	outcome := "success"
	if err != nil {
		outcome = "error"
		n.RecordFailure(err, now)
		logger.Warn("notification_send_failed",
			observability.F("retry_count", n.RetryCount),
			observability.F("max_retries", n.MaxRetries),
			observability.F("error", err.Error()),
		)
	} else {
		n.MarkSent(externalID, now)
	}
	d.sendCount.Add(1,
		observability.L("peer", "notification_provider"),
		observability.L("endpoint", string(n.Channel)),
		observability.L("outcome", outcome),
	)
	d.persist(ctx, logger, n)
	return err == nil
}

// MarkRead flips a sent notification to read on user action.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := n.MarkRead(d.now()); err != nil {
		return nil, err
	}
	if err := d.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("notification: persist read: %w", err)
	}
	return n, nil
}

func (d *Dispatcher) preference(ctx context.Context, userID string) (*domain.Preference, error) {
	pref, err := d.prefs.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Preference{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification: load preferences: %w", err)
	}
	return pref, nil
}

func (d *Dispatcher) persist(ctx context.Context, logger observability.Logger, n *domain.Notification) {
	if err := d.repo.Update(ctx, n); err != nil {
		logger.Error("notification_update_failed", observability.F("error", err.Error()))
	}
}
