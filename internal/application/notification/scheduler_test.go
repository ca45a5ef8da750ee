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
)

func newScheduler(f *dispatcherFixture, repo domain.Repository) *appnotification.Scheduler {
	return appnotification.NewScheduler(repo, f.disp, nil).
		WithClock(func() time.Time { return f.now })
}

func TestDueSweepSendsScheduledNotifications(t *testing.T) {
	f := newDispatcherFixture(t)
	sched := newScheduler(f, f.repo)

	soon := f.now.Add(30 * time.Minute)
	input := emailInput()
	input.ScheduledFor = &soon
	n, err := f.disp.Enqueue(context.Background(), input)
	require.NoError(t, err)

	// Not due yet.
	assert.Equal(t, 0, sched.RunDueSweep(context.Background()))
	assert.Equal(t, 0, f.provider.sent)

	f.now = f.now.Add(time.Hour)
	assert.Equal(t, 1, sched.RunDueSweep(context.Background()))
	assert.Equal(t, 1, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestRetrySweepResubmitsFailedRows(t *testing.T) {
	f := newDispatcherFixture(t)
	sched := newScheduler(f, f.repo)

	f.provider.sendErr = errors.New("smtp unavailable")
	n, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)
	require.Equal(t, 1, f.provider.sent)

	// Backoff has not elapsed yet.
	assert.Equal(t, 0, sched.RunRetrySweep(context.Background()))

	f.provider.sendErr = nil
	f.now = f.now.Add(time.Hour)
	assert.Equal(t, 1, sched.RunRetrySweep(context.Background()))
	assert.Equal(t, 2, f.provider.sent)

	stored, err := f.repo.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestRetrySweepSkipsExhaustedRows(t *testing.T) {
	f := newDispatcherFixture(t)
	sched := newScheduler(f, f.repo)
	f.provider.sendErr = errors.New("smtp unavailable")

	_, err := f.disp.Enqueue(context.Background(), emailInput())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.now = f.now.Add(time.Hour)
		sched.RunRetrySweep(context.Background())
	}

	assert.Equal(t, domain.DefaultMaxRetries, f.provider.sent, "exhausted rows are never selected again")
}

type failingRepo struct {
	domain.Repository
}

func (failingRepo) FindDue(context.Context, time.Time, int) ([]*domain.Notification, error) {
	return nil, errors.New("store offline")
}

func TestDueSweepSurvivesQueryFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	sched := newScheduler(f, failingRepo{f.repo})
	assert.Equal(t, 0, sched.RunDueSweep(context.Background()))
	assert.Equal(t, 0, f.provider.sent)
}
