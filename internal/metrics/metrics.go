// Package metrics owns the service's Prometheus collectors.  They are
// registered on a private registry so tests can build as many collectors
// as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeBooked   = "booked"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomePending  = "ledger_pending"
	OutcomeRefund   = "refund_required"
)

type Collector struct {
	reg *prometheus.Registry

	Bookings          *prometheus.CounterVec // outcome
	SeatsBooked       prometheus.Counter
	AllocateDuration  prometheus.Histogram
	LedgerWriteErrors prometheus.Counter
	LedgerPending     prometheus.Gauge
	PaymentCallbacks  *prometheus.CounterVec // status: success|fail|cancel|invalid
	FreeCountRepairs  prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_bookings_total",
			Help: "Allocation attempts by outcome.",
		}, []string{"outcome"}),
		SeatsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_seats_booked_total",
			Help: "Seats moved from free to booked.",
		}),
		AllocateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_allocate_duration_seconds",
			Help:    "Time spent in an allocation including lock wait.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		LedgerWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_ledger_write_errors_total",
			Help: "Failed ticket write attempts.",
		}),
		LedgerPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reservation_ledger_pending",
			Help: "Confirmed allocations whose ticket is not yet persisted.",
		}),
		PaymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_payment_callbacks_total",
			Help: "Payment gateway callbacks by status.",
		}, []string{"status"}),
		FreeCountRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_free_count_repairs_total",
			Help: "Cars whose stored free count had diverged from their seats.",
		}),
	}

	reg.MustRegister(
		c.Bookings, c.SeatsBooked, c.AllocateDuration,
		c.LedgerWriteErrors, c.LedgerPending,
		c.PaymentCallbacks, c.FreeCountRepairs,
		prometheus.NewGoCollector(),
	)
	return c
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }
