package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the metrics of one deploy run:
// - Latency: stage and HTTP request durations
// - Traffic: HTTP requests and status checks
// - Errors: failed stages and HTTP errors
type Metrics struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Workflow metrics
	StageDuration      metric.Float64Histogram
	StageErrorsTotal   metric.Int64Counter
	ArtifactBytes      metric.Int64Histogram
	StatusChecksTotal  metric.Int64Counter
	OutcomesTotal      metric.Int64Counter
	NotificationsTotal metric.Int64Counter
}

// NewMetrics creates all metrics on a private Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("impexdeploy")
	m := &Metrics{meter: meter, provider: provider, registry: registry}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"impex_http_request_duration_seconds",
		metric.WithDescription("Outbound HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"impex_http_requests",
		metric.WithDescription("Total number of outbound HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"impex_http_errors",
		metric.WithDescription("Total number of outbound HTTP requests that failed or returned 4xx/5xx"),
	)
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram(
		"impex_stage_duration_seconds",
		metric.WithDescription("Duration of each deploy stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.StageErrorsTotal, err = meter.Int64Counter(
		"impex_stage_errors",
		metric.WithDescription("Total number of failed deploy stages"),
	)
	if err != nil {
		return nil, err
	}

	m.ArtifactBytes, err = meter.Int64Histogram(
		"impex_artifact_size_bytes",
		metric.WithDescription("Size of the uploaded archive"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<10, 1<<15, 1<<20, 10<<20, 100<<20, 1<<30),
	)
	if err != nil {
		return nil, err
	}

	m.StatusChecksTotal, err = meter.Int64Counter(
		"impex_status_checks",
		metric.WithDescription("Total number of job status checks by observed state"),
	)
	if err != nil {
		return nil, err
	}

	m.OutcomesTotal, err = meter.Int64Counter(
		"impex_outcomes",
		metric.WithDescription("Deploy runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.NotificationsTotal, err = meter.Int64Counter(
		"impex_notifications",
		metric.WithDescription("Outcome notifications sent"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Registry returns the Prometheus registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an outbound HTTP request. statusCode is 0 when
// no response was received.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		endpointAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode == 0 || statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStage records the completion of a deploy stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, err error, duration time.Duration) {
	m.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(stageAttr(stage), successAttr(err == nil)))
	if err != nil {
		m.StageErrorsTotal.Add(ctx, 1, WithStage(stage))
	}
}

// RecordArtifactSize records the size of the archive sent to the instance.
func (m *Metrics) RecordArtifactSize(ctx context.Context, bytes int64) {
	m.ArtifactBytes.Record(ctx, bytes)
}

// RecordStatusCheck records one status check and the state it observed.
func (m *Metrics) RecordStatusCheck(ctx context.Context, state string, err error) {
	if err != nil {
		state = "error"
	}
	m.StatusChecksTotal.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordOutcome records the single outcome of a run.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.OutcomesTotal.Add(ctx, 1, WithOutcome(outcome))
}

// RecordNotification records an outcome notification attempt.
func (m *Metrics) RecordNotification(ctx context.Context, success bool) {
	m.NotificationsTotal.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
}

// WriteTextfile writes the current metrics in Prometheus text format to path,
// for collection by a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// InstrumentTransport wraps next so every request is recorded in m.
// A nil next uses http.DefaultTransport.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next, metrics: m}
}

type instrumentedTransport struct {
	next    http.RoundTripper
	metrics *Metrics
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	t.metrics.RecordHTTPRequest(req.Context(), req.Method, req.URL.Path, status, time.Since(start).Seconds())
	return resp, err
}
