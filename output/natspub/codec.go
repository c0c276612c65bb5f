package natspub

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/message"
)

// Encoder renders a message envelope for the wire.
type Encoder func(msg *message.BaseMessage) ([]byte, error)

// EncodeJSON is the default envelope encoding.
func EncodeJSON(msg *message.BaseMessage) ([]byte, error) {
	return msg.MarshalJSON()
}

// EncodeMsgpack renders the same envelope as MessagePack.
func EncodeMsgpack(msg *message.BaseMessage) ([]byte, error) {
	data, err := msgpack.Marshal(msg.Envelope())
	if err != nil {
		return nil, errors.WrapInvalid(err, "natspub", "EncodeMsgpack", "marshal envelope")
	}
	return data, nil
}

// EncoderFor maps a configured encoding name to its encoder.
func EncoderFor(encoding string) (Encoder, error) {
	switch encoding {
	case config.EncodingJSON, "":
		return EncodeJSON, nil
	case config.EncodingMsgpack:
		return EncodeMsgpack, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown encoding %q", errors.ErrInvalidConfig, encoding),
			"natspub", "EncoderFor", "encoder lookup")
	}
}

type reportEnvelope struct {
	ID      string               `msgpack:"id"`
	Type    message.Type         `msgpack:"type"`
	Payload dvl.VelocityReport   `msgpack:"payload"`
	Meta    message.EnvelopeMeta `msgpack:"meta"`
}

// DecodeReport parses a report envelope published with the given encoding.
func DecodeReport(encoding string, data []byte) (*message.BaseMessage, error) {
	if encoding != config.EncodingMsgpack {
		return message.Decode(data, &dvl.VelocityReport{})
	}

	var env reportEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"natspub", "DecodeReport", "unmarshal msgpack envelope")
	}
	if !env.Type.Equal(dvl.VelocityType) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("type %s does not match %s", env.Type, dvl.VelocityType),
			"natspub", "DecodeReport", "payload type check")
	}

	report := env.Payload
	meta := message.NewDefaultMetaWithReceivedAt(
		time.UnixMilli(env.Meta.CreatedAt), time.UnixMilli(env.Meta.ReceivedAt), env.Meta.Source)
	return message.NewBaseMessage(env.Type, &report, env.Meta.Source,
		message.WithID(env.ID), message.WithMeta(meta)), nil
}
