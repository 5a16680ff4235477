// metrics.go — Prometheus HTTP метрики datashare.
// Регистрирует метрики: ds_http_requests_total, ds_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_requests_total",
			Help: "Общее количество HTTP-запросов к datashare",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к datashare в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет токены и идентификаторы в пути на плейсхолдеры.
// /download/0b6f... → /download/{token}
// /api/download/0b6f.../meta → /api/download/{token}/meta
// /api/files/42 → /api/files/{id}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/files", "/api/files/upload":
		return path
	}

	for _, prefix := range downloadPrefixes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		_, suffix, _ := strings.Cut(rest, "/")
		if suffix == "meta" {
			return prefix + "{token}/meta"
		}
		return prefix + "{token}"
	}

	if rest, ok := strings.CutPrefix(path, "/api/files/"); ok && rest != "" {
		return "/api/files/{id}"
	}

	return "other"
}
