package shadow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/natsclient"
	"github.com/c360/dvlstreams/pkg/retry"
)

// KVStore keeps the latest report in a JetStream key-value bucket.
type KVStore struct {
	kv     jetstream.KeyValue
	key    string
	logger *slog.Logger
}

// OpenKV creates or reuses the bucket named in cfg. The bucket keeps one
// revision per key and expires entries after cfg.TTL when it is set.
func OpenKV(ctx context.Context, nc *natsclient.Client, cfg config.ShadowConfig, logger *slog.Logger) (*KVStore, error) {
	// JetStream can lag the core connection by a moment after startup
	kv, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (jetstream.KeyValue, error) {
		kv, err := nc.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "Latest DVL velocity report",
			History:     1,
			TTL:         cfg.TTL,
		})
		if err != nil && (errors.IsInvalid(err) || errors.Is(err, natsclient.ErrCircuitOpen)) {
			return nil, retry.NonRetryable(err)
		}
		return kv, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "KVStore", "OpenKV", fmt.Sprintf("open bucket %s", cfg.Bucket))
	}
	return NewKVStore(kv, cfg.Key, logger), nil
}

// NewKVStore wraps an existing bucket.
func NewKVStore(kv jetstream.KeyValue, key string, logger *slog.Logger) *KVStore {
	if logger == nil {
		logger = slog.Default().With("component", "shadow-kv")
	}
	return &KVStore{kv: kv, key: key, logger: logger}
}

// PublishReport overwrites the shadow entry.
func (s *KVStore) PublishReport(ctx context.Context, report *dvl.VelocityReport) error {
	data, err := encode(report)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "PublishReport", fmt.Sprintf("put %s", s.key))
	}
	return nil
}

// Latest returns the stored report, or ErrKeyNotFound before the first put.
func (s *KVStore) Latest(ctx context.Context) (*dvl.VelocityReport, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "KVStore", "Latest", fmt.Sprintf("get %s", s.key))
		}
		return nil, errors.WrapTransient(err, "KVStore", "Latest", fmt.Sprintf("get %s", s.key))
	}
	return decode(entry.Value())
}

// Close is a no-op; the bucket belongs to the NATS connection.
func (s *KVStore) Close() error {
	return nil
}
