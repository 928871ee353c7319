package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/meshstack/coregate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gateway metrics
	GatewayRequestsTotal   metric.Int64Counter
	GatewayErrorsTotal     metric.Int64Counter
	GatewayRetriesTotal    metric.Int64Counter
	GatewayRequestDuration metric.Float64Histogram

	// Data mesh metrics
	JoinsResolvedTotal metric.Int64Counter
	JoinErrorsTotal    metric.Int64Counter
	JoinFetchDuration  metric.Float64Histogram

	// Auth metrics
	LoginAttemptsTotal    metric.Int64Counter
	LoginDeniedTotal      metric.Int64Counter
	SessionsCreatedTotal  metric.Int64Counter
	InvitationsSentTotal  metric.Int64Counter
	PasswordResetsTotal   metric.Int64Counter
	TokenValidationErrors metric.Int64Counter
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

	m.GatewayRequestsTotal, _ = meter.Int64Counter(
		"coregate.gateway.requests.total",
		metric.WithDescription("Total number of requests proxied to logic modules"),
		metric.WithUnit("{request}"),
	)

	m.GatewayErrorsTotal, _ = meter.Int64Counter(
		"coregate.gateway.errors.total",
		metric.WithDescription("Total number of gateway proxy failures"),
		metric.WithUnit("{error}"),
	)

	m.GatewayRetriesTotal, _ = meter.Int64Counter(
		"coregate.gateway.retries.total",
		metric.WithDescription("Total number of upstream connection retries"),
		metric.WithUnit("{retry}"),
	)

	m.GatewayRequestDuration, _ = meter.Float64Histogram(
		"coregate.gateway.request.duration",
		metric.WithDescription("Duration of proxied upstream requests"),
		metric.WithUnit("ms"),
	)

	m.JoinsResolvedTotal, _ = meter.Int64Counter(
		"coregate.datamesh.joins.total",
		metric.WithDescription("Total number of relationship joins resolved"),
		metric.WithUnit("{join}"),
	)

	m.JoinErrorsTotal, _ = meter.Int64Counter(
		"coregate.datamesh.join_errors.total",
		metric.WithDescription("Total number of relationship joins that failed to resolve"),
		metric.WithUnit("{error}"),
	)

	m.JoinFetchDuration, _ = meter.Float64Histogram(
		"coregate.datamesh.fetch.duration",
		metric.WithDescription("Duration of related record fetches"),
		metric.WithUnit("ms"),
	)

	m.LoginAttemptsTotal, _ = meter.Int64Counter(
		"coregate.auth.login_attempts.total",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.LoginDeniedTotal, _ = meter.Int64Counter(
		"coregate.auth.login_denied.total",
		metric.WithDescription("Total number of logins denied by the auth pipeline"),
		metric.WithUnit("{denial}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"coregate.auth.sessions_created.total",
		metric.WithDescription("Total number of sessions created"),
		metric.WithUnit("{session}"),
	)

	m.InvitationsSentTotal, _ = meter.Int64Counter(
		"coregate.auth.invitations_sent.total",
		metric.WithDescription("Total number of invitation emails sent"),
		metric.WithUnit("{invitation}"),
	)

	m.PasswordResetsTotal, _ = meter.Int64Counter(
		"coregate.auth.password_resets.total",
		metric.WithDescription("Total number of password reset emails sent"),
		metric.WithUnit("{reset}"),
	)

	m.TokenValidationErrors, _ = meter.Int64Counter(
		"coregate.auth.token_validation_errors.total",
		metric.WithDescription("Total number of invitation or reset tokens rejected"),
		metric.WithUnit("{error}"),
	)

	return m
}
