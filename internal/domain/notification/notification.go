package notification

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("notification: not found")
	ErrChannelNotAllowed = errors.New("notification: channel not allowed for this type")
	ErrNotSent           = errors.New("notification: not in sent state")
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusRead      Status = "read"
)

type Type string

const (
	TypeOrderConfirmed Type = "order_confirmed"
	TypeOrderShipped   Type = "order_shipped"
	TypeOrderDelivered Type = "order_delivered"
	TypeOrderCancelled Type = "order_cancelled"
	TypePromotion      Type = "promotion"
)

const DefaultMaxRetries = 3

type Notification struct {
	ID                string
	UserID            string
	Type              Type
	Channel           Channel
	Status            Status
	Title             string
	Body              string
	ScheduledFor      *time.Time
	ExpiresAt         *time.Time
	RetryCount        int
	MaxRetries        int
	ExternalMessageID string
	ErrorMessage      string
	SentAt            *time.Time
	ReadAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func New(id, userID string, typ Type, channel Channel, title, body string) *Notification {
	now := time.Now().UTC()
	return &Notification{
		ID:         id,
		UserID:     userID,
		Type:       typ,
		Channel:    channel,
		Status:     StatusPending,
		Title:      title,
		Body:       body,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Due reports whether the notification should be picked up by the scheduler
// sweep at the given instant.
func (n *Notification) Due(now time.Time) bool {
	if n.Status != StatusPending {
		return false
	}
	if n.ScheduledFor == nil {
		return true
	}
	return !n.ScheduledFor.After(now)
}

// Expired reports whether the notification outlived its expiry.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Retryable reports whether a failed notification still has attempts left.
func (n *Notification) Retryable(now time.Time) bool {
	if n.Status != StatusFailed {
		return false
	}
	if n.RetryCount >= n.MaxRetries {
		return false
	}
	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		return false
	}
	return true
}

func (n *Notification) MarkSent(externalID string, now time.Time) {
	n.Status = StatusSent
	n.ExternalMessageID = externalID
	n.ErrorMessage = ""
	n.SentAt = &now
	n.touch(now)
}

// RecordFailure counts the attempt and parks the notification as failed.
// While attempts remain, the next try is scheduled with exponential backoff
// (2^retryCount minutes) persisted via ScheduledFor so it survives restarts.
func (n *Notification) RecordFailure(sendErr error, now time.Time) {
	n.RetryCount++
	n.Status = StatusFailed
	if sendErr != nil {
		n.ErrorMessage = sendErr.Error()
	}
	if n.RetryCount < n.MaxRetries {
		next := now.Add(time.Duration(1<<uint(n.RetryCount)) * time.Minute)
		n.ScheduledFor = &next
	}
	n.touch(now)
}

// Exhausted reports whether the notification has burned all its attempts and
// must never be retried again.
func (n *Notification) Exhausted() bool {
	return n.Status == StatusFailed && n.RetryCount >= n.MaxRetries
}

// Defer reschedules a pending notification, e.g. out of a quiet-hours window.
func (n *Notification) Defer(until time.Time, now time.Time) {
	n.Status = StatusPending
	n.ScheduledFor = &until
	n.touch(now)
}

// Resubmit flips a retryable failed notification back to pending for the
// retry sweep.
func (n *Notification) Resubmit(now time.Time) {
	n.Status = StatusPending
	n.touch(now)
}

func (n *Notification) MarkRead(now time.Time) error {
	if n.Status != StatusSent && n.Status != StatusDelivered {
		return ErrNotSent
	}
	n.Status = StatusRead
	n.ReadAt = &now
	n.touch(now)
	return nil
}

// MarkExpired terminates an expired pending notification so sweeps skip it.
func (n *Notification) MarkExpired(now time.Time) {
	n.Status = StatusFailed
	n.RetryCount = n.MaxRetries
	n.ErrorMessage = "expired before delivery"
	n.touch(now)
}

func (n *Notification) touch(now time.Time) {
	n.UpdatedAt = now
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	clone := *n
	clone.ScheduledFor = cloneTime(n.ScheduledFor)
	clone.ExpiresAt = cloneTime(n.ExpiresAt)
	clone.SentAt = cloneTime(n.SentAt)
	clone.ReadAt = cloneTime(n.ReadAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
