// Package message defines the envelope the bridge publishes decoded sensor
// records in.
//
// Every structured publish is a BaseMessage: a UUID, a Type naming the
// domain, category and schema version of the payload, the payload itself, and
// Meta recording when the observation was made, when the bridge received it
// and which bridge instance produced it. On the wire the envelope is
//
//	{
//	  "id": "2b9f...",
//	  "type": {"domain": "dvl", "category": "velocity", "version": "v1"},
//	  "payload": { ... },
//	  "meta": {"created_at": 1700000000000, "received_at": 1700000000003, "source": "dvlbridge"}
//	}
//
// with timestamps in Unix milliseconds. Envelope returns the same structure as
// a plain value for encoders that do not use encoding/json (MessagePack).
//
// Subscribers decode with Decode, passing the payload value they expect:
//
//	var report dvl.VelocityReport
//	msg, err := message.Decode(data, &report)
package message
