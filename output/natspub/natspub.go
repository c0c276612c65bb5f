package natspub

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/message"
	"github.com/c360/dvlstreams/metric"
)

// Publisher is the subset of natsclient.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Metrics holds Prometheus metrics for the NATS sink
type Metrics struct {
	bytesPublished prometheus.Counter
	publishLatency prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		bytesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "natspub",
			Name:      "bytes_published_total",
			Help:      "Payload bytes published to NATS",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "natspub",
			Name:      "publish_duration_seconds",
			Help:      "Time to encode and publish one message",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
	_ = registry.RegisterCounter("natspub", "bytes_published", m.bytesPublished)
	_ = registry.RegisterHistogram("natspub", "publish_latency", m.publishLatency)
	return m
}

// Sink publishes raw frames and report envelopes on NATS subjects.
type Sink struct {
	pub           Publisher
	rawSubject    string
	reportSubject string
	source        string
	encode        Encoder
	logger        *slog.Logger
	metrics       *Metrics
}

// SinkDeps holds runtime dependencies for the NATS sink
type SinkDeps struct {
	Publisher       Publisher
	Config          config.PublishConfig
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// NewSink creates a sink from the publish configuration.
func NewSink(deps SinkDeps) (*Sink, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: publisher is required", errors.ErrMissingConfig),
			"natspub", "NewSink", "publisher validation")
	}
	encode, err := EncoderFor(deps.Config.Encoding)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "natspub")
	}

	return &Sink{
		pub:           deps.Publisher,
		rawSubject:    deps.Config.RawSubject,
		reportSubject: deps.Config.ReportSubject,
		source:        deps.Config.Source,
		encode:        encode,
		logger:        logger,
		metrics:       newMetrics(deps.MetricsRegistry),
	}, nil
}

// PublishRaw publishes the frame unchanged.
func (s *Sink) PublishRaw(ctx context.Context, frame []byte) error {
	return s.publish(ctx, s.rawSubject, frame, "PublishRaw")
}

// PublishReport wraps the report in a message envelope stamped with the
// report's receive time and publishes it.
func (s *Sink) PublishReport(ctx context.Context, report *dvl.VelocityReport) error {
	start := time.Now()
	msg := message.NewBaseMessage(report.Schema(), report, s.source, message.WithTime(report.Header.Stamp))

	data, err := s.encode(msg)
	if err != nil {
		return errors.WrapInvalid(err, "natspub", "PublishReport", "encode envelope")
	}
	if err := s.publish(ctx, s.reportSubject, data, "PublishReport"); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.publishLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (s *Sink) publish(ctx context.Context, subject string, data []byte, method string) error {
	if err := s.pub.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "natspub", method, fmt.Sprintf("publish %s", subject))
	}
	if s.metrics != nil {
		s.metrics.bytesPublished.Add(float64(len(data)))
	}
	return nil
}

// ReportPublisher receives decoded reports.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *dvl.VelocityReport) error
}

// Fanout hands each report to every publisher in order. A failing publisher
// does not stop the others; all failures are returned joined.
type Fanout []ReportPublisher

// PublishReport implements the report sink.
func (f Fanout) PublishReport(ctx context.Context, report *dvl.VelocityReport) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
