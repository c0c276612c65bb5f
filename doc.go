// Package dvlstreams bridges a Water Linked DVL A50 onto NATS.
//
// The DVL streams newline-delimited JSON over TCP (or a serial line). The
// bridge reads that stream, republishes frames verbatim on a raw subject and
// decodes velocity records into structured reports on a report subject,
// paced at 10 Hz.
//
// # Architecture
//
//	┌──────────────┐   bytes   ┌─────────────┐  frames  ┌──────────────┐
//	│  Connector   │ ────────► │ FrameReader │ ───────► │  dvl.Decode  │
//	│ (tcp/serial) │           │ (carry-over)│          └──────┬───────┘
//	└──────────────┘           └─────────────┘                 │ records
//	                                                    ┌──────▼───────┐
//	                                                    │ dvl.Dispatch │
//	                                                    └──┬────────┬──┘
//	                                              raw frame│        │report
//	                                           ┌───────────▼─┐  ┌───▼──────────┐
//	                                           │ dvl.json_data│  │  dvl.data   │
//	                                           └──────────────┘  └───┬─────────┘
//	                                                                 │
//	                                             shadow store, websocket tap
//
// # Packages
//
//   - stream: sensor connectors and the newline frame reader
//   - dvl: record decoding, wire encoding and the dispatch table
//   - input/sensor: the publish loop as a lifecycle component
//   - output/natspub: NATS sinks and report envelope codecs
//   - output/shadow: latest-report stores (NATS KV, Redis, bbolt)
//   - output/websocket: live report stream for browsers
//   - config, errors, metric, health, component, message, natsclient: the
//     ambient framework shared by all of the above
//
// The dvlbridge command wires everything together; dvlsim serves a synthetic
// sensor stream for local runs.
package dvlstreams
