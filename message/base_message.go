package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/dvlstreams/errors"
	"github.com/google/uuid"
)

// Message is a typed payload with identity and metadata.
type Message interface {
	ID() string
	Type() Type
	Payload() Payload
	Meta() Meta
	Hash() string
	Validate() error
}

// BaseMessage is the standard Message. It is immutable after creation.
//
//	msg := NewBaseMessage(report.Schema(), report, "dvlbridge")
//	msg := NewBaseMessage(report.Schema(), report, "dvlbridge", WithTime(report.Header.Stamp))
type BaseMessage struct {
	id      string
	msgType Type
	payload Payload
	meta    Meta
}

// Option is a functional option for configuring BaseMessage construction.
type Option func(*BaseMessage)

// WithTime sets a specific creation timestamp instead of using time.Now().
func WithTime(createdAt time.Time) Option {
	return func(m *BaseMessage) {
		if defaultMeta, ok := m.meta.(*DefaultMeta); ok {
			m.meta = NewDefaultMeta(createdAt, defaultMeta.Source())
		}
	}
}

// WithMeta replaces the default metadata with a custom Meta implementation.
func WithMeta(meta Meta) Option {
	return func(m *BaseMessage) {
		m.meta = meta
	}
}

// WithID overrides the generated message id.
func WithID(id string) Option {
	return func(m *BaseMessage) {
		m.id = id
	}
}

// NewBaseMessage creates a new BaseMessage with a random UUID.
func NewBaseMessage(msgType Type, payload Payload, source string, opts ...Option) *BaseMessage {
	now := time.Now()
	m := &BaseMessage{
		id:      uuid.New().String(),
		msgType: msgType,
		payload: payload,
		meta:    NewDefaultMetaWithReceivedAt(now, now, source),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ID returns the unique message identifier.
func (m *BaseMessage) ID() string {
	return m.id
}

// Type returns the structured message type.
func (m *BaseMessage) Type() Type {
	return m.msgType
}

// Payload returns the message payload.
func (m *BaseMessage) Payload() Payload {
	return m.payload
}

// Meta returns the message metadata.
func (m *BaseMessage) Meta() Meta {
	return m.meta
}

// Hash returns a SHA256 hash of the message type and payload.
func (m *BaseMessage) Hash() string {
	h := sha256.New()
	h.Write([]byte(m.msgType.String()))
	if data, err := m.payload.MarshalJSON(); err == nil {
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks type, payload and meta.
func (m *BaseMessage) Validate() error {
	if !m.msgType.IsValid() {
		return errors.WrapInvalid(errors.ErrInvalidData, "BaseMessage", "Validate",
			fmt.Sprintf("invalid message type: %s", m.msgType.String()))
	}

	if m.payload == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "BaseMessage", "Validate", "payload cannot be nil")
	}

	if err := m.payload.Validate(); err != nil {
		return errors.WrapInvalid(err, "BaseMessage", "Validate", "invalid payload")
	}

	if m.meta == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "BaseMessage", "Validate", "meta cannot be nil")
	}

	return nil
}

// EnvelopeMeta is the wire form of Meta.
type EnvelopeMeta struct {
	CreatedAt  int64  `json:"created_at" msgpack:"created_at"`
	ReceivedAt int64  `json:"received_at" msgpack:"received_at"`
	Source     string `json:"source" msgpack:"source"`
}

// Envelope is the wire form of a BaseMessage with the payload left as a
// value, for encoders other than encoding/json.
type Envelope struct {
	ID      string       `json:"id" msgpack:"id"`
	Type    Type         `json:"type" msgpack:"type"`
	Payload any          `json:"payload" msgpack:"payload"`
	Meta    EnvelopeMeta `json:"meta" msgpack:"meta"`
}

// Envelope returns the wire structure of the message.
func (m *BaseMessage) Envelope() Envelope {
	return Envelope{
		ID:      m.id,
		Type:    m.msgType,
		Payload: m.payload,
		Meta:    m.envelopeMeta(),
	}
}

func (m *BaseMessage) envelopeMeta() EnvelopeMeta {
	return EnvelopeMeta{
		CreatedAt:  toUnixMs(m.meta.CreatedAt()),
		ReceivedAt: toUnixMs(m.meta.ReceivedAt()),
		Source:     m.meta.Source(),
	}
}

type wireFormat struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Meta    EnvelopeMeta    `json:"meta"`
}

// MarshalJSON implements json.Marshaler for BaseMessage.
func (m *BaseMessage) MarshalJSON() ([]byte, error) {
	payloadData, err := m.payload.MarshalJSON()
	if err != nil {
		return nil, errors.WrapInvalid(err, "BaseMessage", "MarshalJSON", "marshal payload")
	}

	return json.Marshal(wireFormat{
		ID:      m.id,
		Type:    m.msgType,
		Payload: json.RawMessage(payloadData),
		Meta:    m.envelopeMeta(),
	})
}

// Decode parses a JSON envelope into a BaseMessage, unmarshalling the payload
// into the given value. The envelope type must match payload.Schema().
func Decode(data []byte, payload Payload) (*BaseMessage, error) {
	var wire wireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.WrapInvalid(err, "BaseMessage", "Decode", "unmarshal wire format")
	}

	if !wire.Type.Equal(payload.Schema()) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("type %s does not match payload %s", wire.Type, payload.Schema()),
			"BaseMessage", "Decode", "payload type check")
	}

	if err := payload.UnmarshalJSON(wire.Payload); err != nil {
		return nil, errors.WrapInvalid(err, "BaseMessage", "Decode", "unmarshal payload")
	}

	return &BaseMessage{
		id:      wire.ID,
		msgType: wire.Type,
		payload: payload,
		meta: NewDefaultMetaWithReceivedAt(
			fromUnixMs(wire.Meta.CreatedAt), fromUnixMs(wire.Meta.ReceivedAt), wire.Meta.Source),
	}, nil
}
