package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AllocationCounter outcome: created, resumed, out_of_stock
	AllocationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_allocations_total",
			Help: "Session allocation outcomes",
		},
		[]string{"outcome", "choice_count"},
	)

	Phase1Answers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_phase1_answers_total",
			Help: "Phase 1 submissions by correctness",
		},
		[]string{"correct"},
	)

	Phase2Score = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_phase2_score",
			Help:    "Phase 2 attribution score (0-3)",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	SessionsFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_finished_total",
			Help: "Sessions transitioned to finished",
		},
	)

	ReservationsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_reservations_purged_total",
			Help: "Expired reservations removed before allocation",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AllocationCounter,
			Phase1Answers,
			Phase2Score,
			SessionsFinished,
			ReservationsPurged,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
