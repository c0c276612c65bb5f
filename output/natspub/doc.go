// Package natspub publishes DVL output on NATS.
//
// Sink implements both sinks of the input component. Raw frames go to the raw
// subject byte for byte. Velocity reports are wrapped in a message envelope
// (id, type dvl.velocity.v1, payload, meta) and encoded as JSON or
// MessagePack before they go to the report subject. DecodeReport reverses the
// envelope for consumers.
//
// Fanout combines the NATS sink with shadow stores so one report reaches all
// of them.
package natspub
