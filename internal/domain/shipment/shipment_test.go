package shipment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapCarrierStatus(t *testing.T) {
	assert.Equal(t, StatusCreated, MapCarrierStatus("label_generated"))
	assert.Equal(t, StatusInTransit, MapCarrierStatus("picked_up"))
	assert.Equal(t, StatusDelivered, MapCarrierStatus("delivered"))

	// Anything the mapping table does not know about must surface as an
	// exception rather than being silently dropped.
	assert.Equal(t, StatusException, MapCarrierStatus("teleported"))
	assert.Equal(t, StatusException, MapCarrierStatus(""))
}

func TestAppendEventDeduplicates(t *testing.T) {
	s := New("shp-1", "ord-1")
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.True(t, s.AppendEvent(TrackingEvent{Status: StatusInTransit, Timestamp: ts}))
	assert.False(t, s.AppendEvent(TrackingEvent{Status: StatusInTransit, Timestamp: ts}), "same timestamp and status")

	// Same timestamp with a different status is a distinct event.
	assert.True(t, s.AppendEvent(TrackingEvent{Status: StatusOutForDelivery, Timestamp: ts}))
	assert.True(t, s.AppendEvent(TrackingEvent{Status: StatusInTransit, Timestamp: ts.Add(time.Hour)}))
	assert.Len(t, s.Events, 3)
}

func TestCancelOnlyBeforePickup(t *testing.T) {
	s := New("shp-1", "ord-1")
	assert.NoError(t, s.Cancel())

	s = New("shp-2", "ord-1")
	s.MarkCreated("carrier-1", "TRK123", "", nil)
	assert.NoError(t, s.Cancel())
	assert.Equal(t, StatusCancelled, s.Status)

	for _, status := range []Status{StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusReturned, StatusException} {
		s = New("shp-3", "ord-1")
		s.AdvanceStatus(status, time.Now().UTC())
		assert.ErrorIs(t, s.Cancel(), ErrNotCancellable, "status %s", status)
	}
}

func TestActive(t *testing.T) {
	active := []Status{StatusCreated, StatusInTransit, StatusOutForDelivery}
	inactive := []Status{StatusPending, StatusDelivered, StatusFailedDelivery, StatusReturned, StatusCancelled, StatusException}

	for _, status := range active {
		s := New("shp-1", "ord-1")
		s.Status = status
		assert.True(t, s.Active(), "status %s", status)
	}
	for _, status := range inactive {
		s := New("shp-1", "ord-1")
		s.Status = status
		assert.False(t, s.Active(), "status %s", status)
	}
}

func TestMarkExceptionRecordsDiagnostics(t *testing.T) {
	s := New("shp-1", "ord-1")
	s.MarkException("carrier unreachable", 4)

	assert.Equal(t, StatusException, s.Status)
	assert.Equal(t, "carrier unreachable", s.ErrorMessage)
	assert.Equal(t, 4, s.RetryCount)
}
