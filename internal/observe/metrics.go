// Package observe provides the service's OpenTelemetry metrics, tracing and
// the HTTP middleware that ties them to requests.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through a Prometheus exporter bridge (see InitProvider). Tests
// should build Metrics with NewMetrics and a ManualReader-backed provider.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all metrics in this service.
const meterName = "github.com/book-expert/tts-publisher"

// Metrics holds all metric instruments. The instruments are safe for
// concurrent use.
type Metrics struct {
	// SynthesisDuration tracks engine inference latency.
	SynthesisDuration metric.Float64Histogram

	// UploadDuration tracks object storage PUT latency.
	UploadDuration metric.Float64Histogram

	// Outcomes counts pipeline runs by final state. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("mode", "single"|"batch"|"job")
	Outcomes metric.Int64Counter

	// InFlight tracks the number of pipeline runs currently executing.
	InFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// inferenceBuckets are histogram boundaries (in seconds) sized for model
// inference, which runs from sub-second to minutes.
var inferenceBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	if met.SynthesisDuration, err = meter.Float64Histogram("tts.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.UploadDuration, err = meter.Float64Histogram("tts.upload.duration",
		metric.WithDescription("Latency of publishing audio to object storage."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.Outcomes, err = meter.Int64Counter("tts.pipeline.outcomes",
		metric.WithDescription("Pipeline runs by outcome and mode."),
	); err != nil {
		return nil, err
	}

	if met.InFlight, err = meter.Int64UpDownCounter("tts.pipeline.in_flight",
		metric.WithDescription("Pipeline runs currently executing."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = meter.Float64Histogram("tts.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}
