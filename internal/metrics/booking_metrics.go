package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BookingMetrics records registration lifecycle outcomes.
type BookingMetrics struct {
	registrations  prometheus.Counter
	rejections     *prometheus.CounterVec
	cancellations  *prometheus.CounterVec
	checkins       *prometheus.CounterVec
	reviews        *prometheus.CounterVec
	sweepUpdated   prometheus.Counter
	sweepRuns      *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	lastSweepEpoch prometheus.Gauge
}

func NewBookingMetrics(registry *prometheus.Registry) *BookingMetrics {
	factory := promauto.With(registry)
	return &BookingMetrics{
		registrations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "booking_registrations_created_total",
				Help: "Registrations created",
			},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_registrations_rejected_total",
				Help: "Registration attempts rejected, by error code",
			},
			[]string{"code"},
		),
		cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_registrations_cancelled_total",
				Help: "Cancellations, split by whether the session was refunded",
			},
			[]string{"refunded"},
		),
		checkins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_checkins_total",
				Help: "Check-ins and check-outs",
			},
			[]string{"action", "status"},
		),
		reviews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_registration_reviews_total",
				Help: "Administrative approvals and disapprovals",
			},
			[]string{"decision"},
		),
		sweepUpdated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "booking_absence_sweep_updated_total",
				Help: "Registrations marked absent by the sweep",
			},
		),
		sweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_absence_sweep_runs_total",
				Help: "Absence sweep runs by result",
			},
			[]string{"result"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "booking_absence_sweep_duration_seconds",
				Help:    "Absence sweep run time",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 6),
			},
		),
		lastSweepEpoch: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "booking_absence_sweep_last_success_timestamp_seconds",
				Help: "Unix time of the last successful sweep",
			},
		),
	}
}

func (m *BookingMetrics) RegistrationCreated() {
	m.registrations.Inc()
}

func (m *BookingMetrics) RegistrationRejected(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *BookingMetrics) RegistrationCancelled(refunded bool) {
	m.cancellations.WithLabelValues(strconv.FormatBool(refunded)).Inc()
}

func (m *BookingMetrics) CheckedIn() {
	m.checkins.WithLabelValues("checkin", "attended").Inc()
}

func (m *BookingMetrics) CheckedOut(status string) {
	m.checkins.WithLabelValues("checkout", status).Inc()
}

func (m *BookingMetrics) Reviewed(decision string) {
	m.reviews.WithLabelValues(decision).Inc()
}

func (m *BookingMetrics) SweepCompleted(updated int, elapsed time.Duration) {
	m.sweepUpdated.Add(float64(updated))
	m.sweepRuns.WithLabelValues("success").Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.lastSweepEpoch.SetToCurrentTime()
}

func (m *BookingMetrics) SweepFailed() {
	m.sweepRuns.WithLabelValues("failure").Inc()
}
