package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
)

// BoltStore keeps the latest report in a local bbolt file, so the last known
// state survives a restart of the bridge.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
	key    []byte
	logger *slog.Logger
}

// OpenBolt opens (or creates) the database at cfg.BoltPath. Opening fails
// after one second if another process holds the file lock.
func OpenBolt(cfg config.ShadowConfig, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default().With("component", "shadow-bolt")
	}

	db, err := bbolt.Open(cfg.BoltPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.WrapFatal(err, "BoltStore", "OpenBolt", fmt.Sprintf("open %s", cfg.BoltPath))
	}

	bucket := []byte(cfg.Bucket)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "BoltStore", "OpenBolt", fmt.Sprintf("create bucket %s", cfg.Bucket))
	}

	logger.Info("Shadow store opened", "path", cfg.BoltPath, "bucket", cfg.Bucket)
	return &BoltStore{db: db, bucket: bucket, key: []byte(cfg.Key), logger: logger}, nil
}

// PublishReport overwrites the stored report.
func (s *BoltStore) PublishReport(_ context.Context, report *dvl.VelocityReport) error {
	data, err := encode(report)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put(s.key, data)
	})
	if err != nil {
		return errors.WrapTransient(err, "BoltStore", "PublishReport", "put report")
	}
	return nil
}

// Latest returns the stored report, or ErrKeyNotFound if none was written.
func (s *BoltStore) Latest(_ context.Context) (*dvl.VelocityReport, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(s.key)
		if v == nil {
			return errors.ErrKeyNotFound
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.WrapInvalid(err, "BoltStore", "Latest", "get report")
		}
		return nil, errors.WrapTransient(err, "BoltStore", "Latest", "get report")
	}
	return decode(data)
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
