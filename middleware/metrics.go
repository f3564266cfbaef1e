package middleware

import (
	"strconv"
	"time"

	"llm-gateway-platform/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.status", strconv.Itoa(c.Writer.Status())),
		)

		ctx := c.Request.Context()
		metrics.RequestCounter.Add(ctx, 1, attrs)
		metrics.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
