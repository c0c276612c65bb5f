package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/natsclient"
)

// Store keeps the most recent velocity report. Every PublishReport
// overwrites the previous one; there is no history.
type Store interface {
	PublishReport(ctx context.Context, report *dvl.VelocityReport) error
	Latest(ctx context.Context) (*dvl.VelocityReport, error)
	Close() error
}

// New opens the store selected by cfg.Backend. It returns nil, nil when the
// shadow store is disabled. nc is only used by the nats-kv backend.
func New(ctx context.Context, cfg config.ShadowConfig, nc *natsclient.Client, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default().With("component", "shadow")
	}

	switch cfg.Backend {
	case config.ShadowNone:
		return nil, nil
	case config.ShadowNATSKV:
		if nc == nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: NATS client is required for %s", errors.ErrMissingConfig, cfg.Backend),
				"shadow", "New", "backend selection")
		}
		s, err := OpenKV(ctx, nc, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ShadowRedis:
		s, err := OpenRedis(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ShadowBolt:
		s, err := OpenBolt(cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown shadow backend %q", errors.ErrInvalidConfig, cfg.Backend),
			"shadow", "New", "backend selection")
	}
}

func encode(report *dvl.VelocityReport) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, errors.WrapInvalid(err, "shadow", "encode", "marshal report")
	}
	return data, nil
}

func decode(data []byte) (*dvl.VelocityReport, error) {
	var report dvl.VelocityReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.WrapInvalid(err, "shadow", "decode", "unmarshal report")
	}
	return &report, nil
}
