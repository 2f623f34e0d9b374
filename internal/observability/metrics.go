package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesRecorded   *prometheus.CounterVec
	saleRevenue     prometheus.Counter
	stockAdjusted   *prometheus.CounterVec
	lowStockAlerts  prometheus.Counter
	atRiskCache     *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cafe_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_sales_recorded_total",
		Help: "Checkout transactions committed, by payment mode.",
	}, []string{"payment_mode"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cafe_sales_revenue_rupees_total",
		Help: "Revenue of committed checkouts in rupees.",
	})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_stock_adjustments_total",
		Help: "Stock ledger mutations by reason.",
	}, []string{"reason"})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cafe_low_stock_alerts_total",
		Help: "Materials that ended a sale at or below safety stock.",
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_atrisk_cache_total",
		Help: "At-risk projection cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, sales, revenue, adjustments, alerts, cache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesRecorded:   sales,
		saleRevenue:     revenue,
		stockAdjusted:   adjustments,
		lowStockAlerts:  alerts,
		atRiskCache:     cache,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveSale mencatat satu checkout yang berhasil.
func (m *Metrics) ObserveSale(paymentMode string, revenue float64, lowStockAlerts int) {
	if m == nil {
		return
	}
	m.salesRecorded.WithLabelValues(paymentMode).Inc()
	if revenue > 0 {
		m.saleRevenue.Add(revenue)
	}
	if lowStockAlerts > 0 {
		m.lowStockAlerts.Add(float64(lowStockAlerts))
	}
}

// ObserveStockAdjustment mencatat mutasi stok per alasan.
func (m *Metrics) ObserveStockAdjustment(reason string) {
	if m == nil {
		return
	}
	m.stockAdjusted.WithLabelValues(reason).Inc()
}

// ObserveAtRiskCache records a cache hit or miss.
func (m *Metrics) ObserveAtRiskCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.atRiskCache.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
