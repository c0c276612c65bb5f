package message

import "time"

// Meta provides metadata about a message's lifecycle and origin.
type Meta interface {
	// CreatedAt returns when the observation was made.
	CreatedAt() time.Time

	// ReceivedAt returns when the bridge received it.
	ReceivedAt() time.Time

	// Source returns the identifier of the message originator.
	Source() string
}

// DefaultMeta is the standard Meta, stored at millisecond precision.
type DefaultMeta struct {
	createdAt  int64 // Unix milliseconds
	receivedAt int64 // Unix milliseconds
	source     string
}

// NewDefaultMeta creates meta with the received time set to now.
func NewDefaultMeta(createdAt time.Time, source string) *DefaultMeta {
	return NewDefaultMetaWithReceivedAt(createdAt, time.Now(), source)
}

// NewDefaultMetaWithReceivedAt creates meta with explicit times.
func NewDefaultMetaWithReceivedAt(createdAt, receivedAt time.Time, source string) *DefaultMeta {
	return &DefaultMeta{
		createdAt:  toUnixMs(createdAt),
		receivedAt: toUnixMs(receivedAt),
		source:     source,
	}
}

// CreatedAt returns when the original event occurred.
func (m *DefaultMeta) CreatedAt() time.Time {
	return fromUnixMs(m.createdAt)
}

// ReceivedAt returns when the system received the message.
func (m *DefaultMeta) ReceivedAt() time.Time {
	return fromUnixMs(m.receivedAt)
}

// Source returns the origin of the message.
func (m *DefaultMeta) Source() string {
	return m.source
}

func toUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
