package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the storefront bot's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	UpdatesProcessed     *prometheus.CounterVec
	UpdateProcessingTime prometheus.Histogram
	ErrorsTotal          prometheus.Counter
	CartAdds             *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_bot_updates_total",
			Help: "Telegram updates handled, by kind",
		}, []string{"kind"}),
		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_bot_errors_total",
			Help: "Panics recovered while handling updates",
		}),
		CartAdds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_bot_cart_adds_total",
			Help: "Items added to carts, by item type",
		}, []string{"item_type"}),
	}
}

func (m *Metrics) observe(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesProcessed.WithLabelValues(kind).Inc()
	m.UpdateProcessingTime.Observe(elapsed.Seconds())
}

func (m *Metrics) incError() {
	if m == nil {
		return
	}
	m.ErrorsTotal.Inc()
}

func (m *Metrics) incCartAdd(itemType string) {
	if m == nil {
		return
	}
	m.CartAdds.WithLabelValues(itemType).Inc()
}
