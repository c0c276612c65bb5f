// Package shadow keeps the most recent DVL velocity report where other
// processes can read it without subscribing to the report stream.
//
// Three backends implement Store:
//
//   - KVStore: a JetStream key-value bucket (one revision, optional TTL)
//   - RedisStore: a Redis hash with the report JSON and a few scalar fields
//   - BoltStore: a local bbolt file that survives restarts
//
// New picks the backend from config.ShadowConfig. A Store is also a report
// sink, so it can sit next to the NATS sink in a natspub.Fanout.
package shadow
