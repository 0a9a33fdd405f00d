package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "urban_harvest"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings written to the ledger by item type and caller kind.",
		},
		[]string{"item_type", "caller"},
	)

	bookingStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changes_total",
			Help:      "Admin status transitions by target status.",
		},
		[]string{"status"},
	)

	checkoutSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_steps_total",
			Help:      "Checkout step decisions.",
		},
		[]string{"step"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Simulated payments by outcome.",
		},
		[]string{"outcome"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Ledger mirror tasks by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			bookingStatusChanges,
			checkoutSteps,
			payments,
			syncTasks,
		)
	})
}

// ObserveHTTP records one finished HTTP request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncBookingCreated(itemType string, guest bool) {
	caller := "user"
	if guest {
		caller = "guest"
	}
	bookingsCreated.WithLabelValues(itemType, caller).Inc()
}

func IncStatusChange(status string) {
	bookingStatusChanges.WithLabelValues(status).Inc()
}

func IncCheckoutStep(step string) {
	checkoutSteps.WithLabelValues(step).Inc()
}

func IncPayment(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	payments.WithLabelValues(outcome).Inc()
}

func IncSyncTask(taskType, outcome string) {
	syncTasks.WithLabelValues(taskType, outcome).Inc()
}
