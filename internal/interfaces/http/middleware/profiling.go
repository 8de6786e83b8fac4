package middleware

import (
	"context"
	"strings"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths are exact paths that get no profiling labels.
	SkipPaths []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/ready"},
	}
}

// Profiling returns profiling middleware with default configuration.
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig attaches Pyroscope labels to the request context:
//   - route: matched route pattern (e.g. "/api/v1/admin/orders/:id")
//   - operation: the resource the route serves (e.g. "orders")
//
// Labels stay low cardinality; raw paths and ids are never used.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		labels := profilingLabels(c.FullPath())
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(route string) map[string]string {
	labels := make(map[string]string, 2)
	if route == "" {
		return labels
	}
	labels[telemetry.ProfilingLabelRoute] = route
	if op := operationFromRoute(route); op != "" {
		labels[telemetry.ProfilingLabelOperation] = op
	}
	return labels
}

// operationFromRoute derives the resource name from a route pattern.
// Example: "/api/v1/admin/orders/:id/retry" -> "orders"
func operationFromRoute(route string) string {
	for part := range strings.SplitSeq(route, "/") {
		switch {
		case part == "", part == "api", part == "admin", part == "internal":
			continue
		case isVersionSegment(part):
			continue
		case strings.HasPrefix(part, ":"), strings.HasPrefix(part, "*"):
			continue
		}
		return part
	}
	return ""
}

// isVersionSegment reports whether a path segment is an API version (v1, v2).
func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
