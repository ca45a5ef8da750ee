package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appnotification "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/notification"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/id"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

type fakeProvider struct {
	sendErr error
	sent    int
}

func (p *fakeProvider) Send(context.Context, *domain.Notification) (string, error) {
	p.sent++
	if p.sendErr != nil {
		return "", p.sendErr
	}
	return "ext-1", nil
}

type dispatcherFixture struct {
	repo     *memory.NotificationRepository
	prefs    *memory.PreferenceRepository
	provider *fakeProvider
	disp     *appnotification.Dispatcher
	now      time.Time
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		repo:     memory.NewNotificationRepository(),
		prefs:    memory.NewPreferenceRepository(),
		provider: &fakeProvider{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	resolver := func(ch domain.Channel) appnotification.Provider {
		if ch == domain.ChannelInApp {
			return nil
		}
		return f.provider
	}
	f.disp = appnotification.NewDispatcher(f.repo, f.prefs, resolver, id.NewUUIDGenerator(), nil).
		WithClock(func() time.Time { return f.now })
	return f
}

func emailInput() appnotification.EnqueueInput {
	return appnotification.EnqueueInput{
		UserID:  "user-1",
		Type:    domain.TypeOrderConfirmed,
		Channel: domain.ChannelEmail,
		Title:   "Order confirmed",
		Body:    "Your order ORD-2026-000001 has been confirmed.",
	}
}

func TestEnqueueSendsImmediately(t *testing.T) {
	f := newDispatcherFixture(t)

	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Equal(t, "ext-1", stored.ExternalMessageID)
}

func TestEnqueueScheduledIsNotSentInline(t *testing.T) {
	f := newDispatcherFixture(t)

	later := f.now.Add(time.Hour)
	input := emailInput()
	input.ScheduledFor = &later

	n, err := f.disp.Enqueue(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 0, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestEnqueueRespectsPreferences(t *testing.T) {
	f := newDispatcherFixture(t)
	require.NoError(t, f.prefs.Save(context.Background(), &domain.Preference{
		UserID: "user-1",
		Allowed: map[domain.Type][]domain.Channel{
			domain.TypeOrderConfirmed: {domain.ChannelInApp},
		},
	}))

	_, err := f.disp.Enqueue(context.Background(), emailInput())
	assert.ErrorIs(t, err, domain.ErrChannelNotAllowed)
	assert.Equal(t, 0, f.provider.sent)

	// A type without a recorded policy allows every channel.
	input := emailInput()
	input.Type = domain.TypeOrderShipped
	_, err = f.disp.Enqueue(context.Background(), input)
	assert.NoError(t, err)
}

func TestQuietHoursDeferToWindowEnd(t *testing.T) {
	f := newDispatcherFixture(t)
	require.NoError(t, f.prefs.Save(context.Background(), &domain.Preference{
		UserID: "user-1",
		QuietWindows: map[domain.Channel]domain.QuietWindow{
			domain.ChannelEmail: {Start: "22:00", End: "08:00"},
		},
	}))

	// Inside the overnight window.
	f.now = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)
	assert.Equal(t, 0, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	require.NotNil(t, stored.ScheduledFor)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), stored.ScheduledFor.UTC())
}

func TestQuietHoursBeforeMidnightSameDayEnd(t *testing.T) {
	f := newDispatcherFixture(t)
	require.NoError(t, f.prefs.Save(context.Background(), &domain.Preference{
		UserID: "user-1",
		QuietWindows: map[domain.Channel]domain.QuietWindow{
			domain.ChannelEmail: {Start: "22:00", End: "08:00"},
		},
	}))

	f.now = time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ScheduledFor)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), stored.ScheduledFor.UTC())
}

func TestSendFailureRecordsRetryWithBackoff(t *testing.T) {
	f := newDispatcherFixture(t)
	f.provider.sendErr = errors.New("smtp unavailable")

	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err, "provider failures never surface to the enqueuer")

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.ScheduledFor)
	assert.Equal(t, f.now.Add(2*time.Minute), stored.ScheduledFor.UTC(), "backoff doubles per attempt")
}

func TestRetriesStopAfterMaxAttempts(t *testing.T) {
	f := newDispatcherFixture(t)
	f.provider.sendErr = errors.New("smtp unavailable")

	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		f.now = f.now.Add(time.Hour)
		stored, getErr := f.repo.Get(context.Background(), n.ID)
		require.NoError(t, getErr)
		if !stored.Retryable(f.now) {
			break
		}
		stored.Resubmit(f.now)
		f.disp.Deliver(context.Background(), stored, nil)
	}

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, stored.Exhausted())
	assert.Equal(t, domain.DefaultMaxRetries, stored.RetryCount)
	assert.Equal(t, domain.DefaultMaxRetries, f.provider.sent, "the initial send counts as the first attempt")
}

func TestExpiredNotificationIsNeverSent(t *testing.T) {
	f := newDispatcherFixture(t)

	expired := f.now.Add(-time.Minute)
	input := emailInput()
	input.ExpiresAt = &expired

	n, err := f.disp.Enqueue(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 0, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.True(t, stored.Exhausted())
}

func TestInAppNotificationStoredNotPushed(t *testing.T) {
	f := newDispatcherFixture(t)

	input := emailInput()
	input.Channel = domain.ChannelInApp

	n, err := f.disp.Enqueue(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 0, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	assert.Empty(t, stored.ExternalMessageID)
}

func TestMissingProviderRecordsFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	noProviders := func(domain.Channel) appnotification.Provider { return nil }
	disp := appnotification.NewDispatcher(f.repo, f.prefs, noProviders, id.NewUUIDGenerator(), nil).
		WithClock(func() time.Time { return f.now })

	n, err := disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status, "an unconfigured channel is a failure, not a send")
	assert.Equal(t, 1, stored.RetryCount)

	// in_app needs no provider; it is stored as sent either way.
	input := emailInput()
	input.Channel = domain.ChannelInApp
	inApp, err := disp.Enqueue(context.Background(), input)
	require.NoError(t, err)

	stored, err = f.repo.Get(context.Background(), inApp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestMarkRead(t *testing.T) {
	f := newDispatcherFixture(t)

	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)

	read, err := f.disp.MarkRead(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, read.Status)

	// Reading an unsent notification is refused.
	later := f.now.Add(time.Hour)
	input := emailInput()
	input.ScheduledFor = &later
	pending, err := f.disp.Enqueue(context.Background(), input)
	require.NoError(t, err)
	_, err = f.disp.MarkRead(context.Background(), pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotSent)
}
