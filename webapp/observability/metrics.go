package observability

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"net/http"
	"time"
)

// Metrics holds the service metrics:
// - HTTP latency, traffic and errors
// - test runs submitted and rejected
// - monitors in flight, how they ended and how long they took
type Metrics struct {
	meter metric.Meter

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	RunsSubmitted   metric.Int64Counter
	SubmitErrors    metric.Int64Counter
	MonitorsActive  metric.Int64UpDownCounter
	MonitorOutcomes metric.Int64Counter
	MonitorDuration metric.Float64Histogram
}

var _ jobrunner.Recorder = (*Metrics)(nil)

// NewMetrics creates the instruments on a registry of their own and returns the handler that serves it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("sparktest-orchestrator")
	m := &Metrics{meter: meter}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsSubmitted, err = meter.Int64Counter(
		"test_runs_submitted_total",
		metric.WithDescription("Total number of test runs whose job was accepted by the cluster"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SubmitErrors, err = meter.Int64Counter(
		"test_run_submit_errors_total",
		metric.WithDescription("Total number of test runs that could not be submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.MonitorsActive, err = meter.Int64UpDownCounter(
		"run_monitors_active",
		metric.WithDescription("Number of run monitors currently polling (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.MonitorOutcomes, err = meter.Int64Counter(
		"run_monitor_outcomes_total",
		metric.WithDescription("Run monitors finished, by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.MonitorDuration, err = meter.Float64Histogram(
		"run_monitor_duration_seconds",
		metric.WithDescription("Time from submission until the monitor stopped, in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 30, 45, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// Instrument wraps a handler so that every request through it is recorded.
func (m *Metrics) Instrument(path string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		recorder := helpers.NewStatusRecordingWriter(w)
		next.ServeHTTP(recorder, r)
		m.RecordHTTPRequest(r.Context(), r.Method, path, recorder.StatusCode, time.Since(startTime).Seconds())
	})
}

func (m *Metrics) RunSubmitted() {
	if m == nil {
		return
	}
	m.RunsSubmitted.Add(context.Background(), 1)
}

func (m *Metrics) SubmitFailed(indicator string) {
	if m == nil {
		return
	}
	m.SubmitErrors.Add(context.Background(), 1, metric.WithAttributes(indicatorAttr(indicator)))
}

func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.MonitorsActive.Add(context.Background(), 1)
}

func (m *Metrics) MonitorFinished(outcome jobrunner.MonitorOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(outcomeAttr(string(outcome)))
	m.MonitorsActive.Add(ctx, -1)
	m.MonitorOutcomes.Add(ctx, 1, attrs)
	m.MonitorDuration.Record(ctx, elapsed.Seconds(), attrs)
}
