// Package websocket serves the live velocity report stream to browser and
// tooling clients over WebSocket.
//
// # Overview
//
// Output subscribes to the report subject on NATS and writes every report to
// each connected client as a JSON text frame:
//
//	{"type":"data","id":"msg-42","timestamp":1729000000000,"subject":"dvl.data","payload":{...}}
//
// The payload is the report envelope as published by the natspub sink. When
// the bridge publishes MessagePack, the output decodes the envelope and
// re-encodes it as JSON so clients only ever see JSON.
//
// # Delivery
//
// Delivery is at most once. A client whose write does not complete within the
// write timeout is disconnected; nothing is buffered or replayed. Clients are
// pinged every 30 seconds and dropped when the ping cannot be written.
// Messages sent by clients are read and discarded.
//
// # Usage
//
//	out := websocket.NewOutput(websocket.OutputDeps{
//	    Config:          cfg.WebSocket,
//	    Subject:         cfg.WebSocketSubject(),
//	    Encoding:        cfg.Publish.Encoding,
//	    NATSClient:      nc,
//	    MetricsRegistry: registry,
//	})
//	if err := out.Initialize(); err != nil { ... }
//	if err := out.Start(ctx); err != nil { ... }
//	defer out.Stop(5 * time.Second)
//
// # Metrics
//
// Metrics are registered under the dvlstreams_websocket_ prefix: messages
// received and sent, bytes sent, connected clients, connections and
// disconnections by reason, broadcast duration and errors by type.
package websocket
