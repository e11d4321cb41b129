// Package metrics exposes the Prometheus collectors for front-desk activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frontdesk"

// Metrics counts check-in outcomes, payments and shift closures.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	checkins        *prometheus.CounterVec
	payments        *prometheus.CounterVec
	paymentWarnings *prometheus.CounterVec
	shiftClosures   *prometheus.CounterVec
	cashVariance    prometheus.Histogram
}

var (
	defaultOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	checkins := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Check-in decisions by outcome and reason code.",
		},
		[]string{"outcome", "code"},
	)
	payments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Recorded payments by method and effect.",
		},
		[]string{"method", "effect"},
	)
	paymentWarnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_warnings_total",
			Help:      "Payment post-processing steps that failed after the payment was stored.",
		},
		[]string{"step"},
	)
	shiftClosures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_closures_total",
			Help:      "Closed shifts by cash count result.",
		},
		[]string{"result"},
	)
	cashVariance := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shift_cash_variance_abs",
			Help:      "Absolute difference between declared and expected cash at close.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		},
	)

	collectors := []prometheus.Collector{checkins, payments, paymentWarnings, shiftClosures, cashVariance}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case checkins:
					checkins = already.ExistingCollector.(*prometheus.CounterVec)
				case payments:
					payments = already.ExistingCollector.(*prometheus.CounterVec)
				case paymentWarnings:
					paymentWarnings = already.ExistingCollector.(*prometheus.CounterVec)
				case shiftClosures:
					shiftClosures = already.ExistingCollector.(*prometheus.CounterVec)
				case cashVariance:
					cashVariance = already.ExistingCollector.(prometheus.Histogram)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		checkins:        checkins,
		payments:        payments,
		paymentWarnings: paymentWarnings,
		shiftClosures:   shiftClosures,
		cashVariance:    cashVariance,
	}
}

// CheckIn counts one decision. outcome is "granted" or "denied".
func (m *Metrics) CheckIn(outcome, code string) {
	if m == nil {
		return
	}
	m.checkins.WithLabelValues(outcome, code).Inc()
}

// Payment counts one stored payment. effect is "extension", "new",
// "visit_pack" or "sale".
func (m *Metrics) Payment(method, effect string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, effect).Inc()
}

// PaymentWarning counts one failed post-processing step.
func (m *Metrics) PaymentWarning(step string) {
	if m == nil {
		return
	}
	m.paymentWarnings.WithLabelValues(step).Inc()
}

// ShiftClosed records a close and its variance.
func (m *Metrics) ShiftClosed(variance float64) {
	if m == nil {
		return
	}
	result := "balanced"
	switch {
	case variance > 0:
		result = "over"
	case variance < 0:
		result = "short"
		variance = -variance
	}
	m.shiftClosures.WithLabelValues(result).Inc()
	m.cashVariance.Observe(variance)
}
