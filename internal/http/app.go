// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.RateLimitConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and rate limit settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping). May be nil.
	Health HealthChecker
	// Metrics serves /metrics and instruments every route. May be nil.
	Metrics *metrics.Collector
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
