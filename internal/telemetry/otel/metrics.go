package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Auth outcomes recorded on courier.auth.attempts.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeMFARequired = "mfa_required"
)

// AuthMetrics holds the counters for auth operations.
type AuthMetrics struct {
	attempts      metric.Int64Counter
	tokensIssued  metric.Int64Counter
	tokensRevoked metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on provider. A nil provider records nothing.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	attempts, err := meter.Int64Counter("courier.auth.attempts",
		metric.WithDescription("Auth operations by operation and outcome."))
	if err != nil {
		return nil, err
	}
	issued, err := meter.Int64Counter("courier.auth.tokens_issued",
		metric.WithDescription("Access tokens issued by operation."))
	if err != nil {
		return nil, err
	}
	revoked, err := meter.Int64Counter("courier.auth.tokens_revoked",
		metric.WithDescription("Refresh tokens revoked on logout."))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{attempts: attempts, tokensIssued: issued, tokensRevoked: revoked}, nil
}

// Attempt records one operation (login, verify_mfa, refresh, logout, forgot_password) with its outcome.
func (m *AuthMetrics) Attempt(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// TokenIssued records one access token issued by operation.
func (m *AuthMetrics) TokenIssued(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// TokenRevoked records one refresh token revoked.
func (m *AuthMetrics) TokenRevoked(ctx context.Context) {
	if m == nil {
		return
	}
	m.tokensRevoked.Add(ctx, 1)
}
