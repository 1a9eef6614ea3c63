// Package metrics собирает метрики печати и сеансов для Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "posprint_"

// Recorder счётчики шлюза печати. Методы nil-безопасны: сервисы работают и без метрик.
type Recorder struct {
	prints         *prometheus.CounterVec
	errors         *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
	acquireLatency prometheus.Histogram
	deviceUp       *prometheus.GaugeVec
	deviceWarnings *prometheus.GaugeVec
}

// New создает Recorder и регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		prints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "print_total",
				Help: "Total print attempts by kind and disposition",
			},
			[]string{"kind", "disposition"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "errors_total",
				Help: "Total failed operations by reason",
			},
			[]string{"operation", "reason"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_seconds",
				Help:    "Device operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sessions_active",
				Help: "Device sessions currently held",
			},
		),
		acquireLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "session_acquire_seconds",
				Help:    "Time spent waiting for and opening a device session",
				Buckets: prometheus.DefBuckets,
			},
		),
		deviceUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_up",
				Help: "1 if the printer answered the last status poll",
			},
			[]string{"address"},
		),
		deviceWarnings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_warnings",
				Help: "Number of status codes reported by the printer on the last poll",
			},
			[]string{"address"},
		),
	}

	if reg != nil {
		reg.MustRegister(r.prints, r.errors, r.latency, r.sessionsActive, r.acquireLatency, r.deviceUp, r.deviceWarnings)
	}
	return r
}

// ObservePrint учитывает завершённую попытку печати.
func (r *Recorder) ObservePrint(kind, disposition string) {
	if r == nil {
		return
	}
	r.prints.WithLabelValues(kind, disposition).Inc()
}

// ObserveError учитывает операцию, завершившуюся ошибкой.
func (r *Recorder) ObserveError(operation, reason string) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(operation, reason).Inc()
}

// ObserveDuration записывает длительность операции.
func (r *Recorder) ObserveDuration(operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// SessionOpened фиксирует захват сеанса и время ожидания.
func (r *Recorder) SessionOpened(wait time.Duration) {
	if r == nil {
		return
	}
	r.sessionsActive.Inc()
	r.acquireLatency.Observe(wait.Seconds())
}

// SessionClosed фиксирует освобождение сеанса.
func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// ObserveDevice записывает результат опроса принтера.
func (r *Recorder) ObserveDevice(address string, up bool, warnings int) {
	if r == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	r.deviceUp.WithLabelValues(address).Set(v)
	r.deviceWarnings.WithLabelValues(address).Set(float64(warnings))
}

// ForgetDevice удаляет серии принтера, исключённого из реестра.
func (r *Recorder) ForgetDevice(address string) {
	if r == nil {
		return
	}
	r.deviceUp.DeleteLabelValues(address)
	r.deviceWarnings.DeleteLabelValues(address)
}
