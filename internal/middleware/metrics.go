package middleware

import (
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP request instruments.
type Metrics struct {
    RequestsTotal   *prometheus.CounterVec
    RequestDuration *prometheus.HistogramVec
    InFlight        prometheus.Gauge
}

// NewMetrics registers the HTTP instruments on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
    f := promauto.With(reg)
    return &Metrics{
        RequestsTotal: f.NewCounterVec(
            prometheus.CounterOpts{
                Namespace: namespace,
                Name:      "http_requests_total",
                Help:      "Total HTTP requests by method, route and status",
            },
            []string{"method", "route", "status"},
        ),
        RequestDuration: f.NewHistogramVec(
            prometheus.HistogramOpts{
                Namespace: namespace,
                Name:      "http_request_duration_seconds",
                Help:      "HTTP request latency",
                Buckets:   prometheus.DefBuckets,
            },
            []string{"method", "route"},
        ),
        InFlight: f.NewGauge(
            prometheus.GaugeOpts{
                Namespace: namespace,
                Name:      "http_requests_in_flight",
                Help:      "Requests currently being served",
            },
        ),
    }
}

// Middleware records every request.  Routes are labelled by their pattern
// (c.Path()), not the raw URL, to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            m.InFlight.Inc()
            defer m.InFlight.Dec()

            start := time.Now()
            err := next(c)
            if err != nil {
                // Let the error handler write the response so the status is final.
                c.Error(err)
            }
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            m.RequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
            m.RequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(c.Response().Status)).Inc()
            return nil
        }
    }
}
