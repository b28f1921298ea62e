package smtp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the reception pipeline.
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	MessagesReceived   prometheus.Counter
	MessageBytes       prometheus.Histogram
	RecipientsAccepted prometheus.Counter
	RecipientsRejected *prometheus.CounterVec
	MessagesRejected   *prometheus.CounterVec
	Deliveries         prometheus.Counter
	DeliveryFailures   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics returns the process-wide pipeline metrics, registering them on
// the default registry on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "inlet_smtp_connections_active",
				Help: "Number of SMTP connections currently being served",
			}),
			ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "inlet_smtp_connections_total",
				Help: "Total SMTP connections accepted",
			}),
			MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "inlet_smtp_messages_received_total",
				Help: "Messages that completed body transfer and were accepted",
			}),
			MessageBytes: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "inlet_smtp_message_bytes",
				Help:    "Size distribution of accepted messages in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			}),
			RecipientsAccepted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "inlet_smtp_recipients_accepted_total",
				Help: "Recipient declarations that passed validation",
			}),
			RecipientsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "inlet_smtp_recipients_rejected_total",
				Help: "Recipient declarations rejected, by reason",
			}, []string{"reason"}),
			MessagesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "inlet_smtp_messages_rejected_total",
				Help: "Body transfers rejected after completion, by reason",
			}, []string{"reason"}),
			Deliveries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "inlet_smtp_deliveries_total",
				Help: "Per-recipient store deliveries that succeeded",
			}),
			DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "inlet_smtp_delivery_failures_total",
				Help: "Per-recipient store deliveries that failed",
			}),
		}
	})
	return metrics
}
