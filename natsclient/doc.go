// Package natsclient wraps a NATS connection for the DVL bridge sinks.
//
// The client adds a circuit breaker, context-aware connect and close, and
// helpers for the JetStream key-value buckets used by the shadow store. Core
// NATS reconnection is left to nats.go (MaxReconnects -1 by default).
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("dvlbridge"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "dvl.json_data", frame)
//
//	release, err := client.Subscribe(ctx, "dvl.data", func(msgCtx context.Context, data []byte) {
//	    // each delivery gets a 30s context
//	})
//	defer release()
//
// # Circuit Breaker
//
// After WithCircuitBreakerThreshold consecutive failures (default 5) the
// client reports StatusCircuitOpen and Connect and the bucket helpers return
// ErrCircuitOpen until the backoff elapses. Backoff doubles per round up to
// WithMaxBackoff.
//
// # Key-Value Buckets
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "dvl_shadow",
//	})
//
// CreateKeyValueBucket reuses an existing bucket of the same name.
//
// # Testing
//
// NewTestClient starts a NATS container with testcontainers-go and returns a
// connected client. Tests using it carry the integration build tag.
package natsclient
