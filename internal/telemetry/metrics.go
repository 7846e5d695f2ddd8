package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/medichain/docsign"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Signing metrics
	SignaturesCreatedTotal metric.Int64Counter
	SignFailuresTotal      metric.Int64Counter
	SignFallbacksTotal     metric.Int64Counter
	SignDuration           metric.Float64Histogram

	// HSM metrics
	HSMSignAttemptsTotal metric.Int64Counter
	HSMSignFailuresTotal metric.Int64Counter

	// TSA metrics
	TimestampsIssuedTotal  metric.Int64Counter
	TimestampFailuresTotal metric.Int64Counter

	// Verification metrics
	VerificationsTotal        metric.Int64Counter
	VerificationFailuresTotal metric.Int64Counter

	// Revocation metrics
	RevocationsTotal metric.Int64Counter

	// Batch metrics
	BatchesCreatedTotal    metric.Int64Counter
	BatchItemsTotal        metric.Int64Counter
	BatchItemFailuresTotal metric.Int64Counter
	BatchDuration          metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SignaturesCreatedTotal, _ = meter.Int64Counter(
		"docsign.signatures.created.total",
		metric.WithDescription("Total number of signature records created"),
		metric.WithUnit("{signature}"),
	)

	m.SignFailuresTotal, _ = meter.Int64Counter(
		"docsign.signatures.failures.total",
		metric.WithDescription("Total number of signing calls that failed fatally"),
		metric.WithUnit("{error}"),
	)

	m.SignFallbacksTotal, _ = meter.Int64Counter(
		"docsign.signatures.fallbacks.total",
		metric.WithDescription("Total number of signatures produced by local fallback after HSM failure"),
		metric.WithUnit("{signature}"),
	)

	m.SignDuration, _ = meter.Float64Histogram(
		"docsign.signatures.duration",
		metric.WithDescription("Duration of signing pipeline calls"),
		metric.WithUnit("ms"),
	)

	m.HSMSignAttemptsTotal, _ = meter.Int64Counter(
		"docsign.hsm.sign.attempts.total",
		metric.WithDescription("Total number of HSM sign attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.HSMSignFailuresTotal, _ = meter.Int64Counter(
		"docsign.hsm.sign.failures.total",
		metric.WithDescription("Total number of HSM sign attempts that reported failure"),
		metric.WithUnit("{error}"),
	)

	m.TimestampsIssuedTotal, _ = meter.Int64Counter(
		"docsign.tsa.timestamps.issued.total",
		metric.WithDescription("Total number of TSA tokens obtained"),
		metric.WithUnit("{token}"),
	)

	m.TimestampFailuresTotal, _ = meter.Int64Counter(
		"docsign.tsa.timestamps.failures.total",
		metric.WithDescription("Total number of TSA requests that failed"),
		metric.WithUnit("{error}"),
	)

	m.VerificationsTotal, _ = meter.Int64Counter(
		"docsign.verifications.total",
		metric.WithDescription("Total number of verification calls"),
		metric.WithUnit("{verification}"),
	)

	m.VerificationFailuresTotal, _ = meter.Int64Counter(
		"docsign.verifications.failures.total",
		metric.WithDescription("Total number of verifications returning an invalid verdict"),
		metric.WithUnit("{verdict}"),
	)

	m.RevocationsTotal, _ = meter.Int64Counter(
		"docsign.revocations.total",
		metric.WithDescription("Total number of signature revocations"),
		metric.WithUnit("{revocation}"),
	)

	m.BatchesCreatedTotal, _ = meter.Int64Counter(
		"docsign.batches.created.total",
		metric.WithDescription("Total number of signing batches created"),
		metric.WithUnit("{batch}"),
	)

	m.BatchItemsTotal, _ = meter.Int64Counter(
		"docsign.batches.items.total",
		metric.WithDescription("Total number of batch items processed"),
		metric.WithUnit("{item}"),
	)

	m.BatchItemFailuresTotal, _ = meter.Int64Counter(
		"docsign.batches.items.failures.total",
		metric.WithDescription("Total number of batch items that failed"),
		metric.WithUnit("{item}"),
	)

	m.BatchDuration, _ = meter.Float64Histogram(
		"docsign.batches.duration",
		metric.WithDescription("Duration of whole-batch processing"),
		metric.WithUnit("ms"),
	)

	return m
}
