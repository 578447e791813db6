package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_signals_sent_total",
			Help: "Total signals enqueued onto the message queue",
		})

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_send_failures_total",
			Help: "Total failed send attempts",
		})

	MessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_messages_received_total",
			Help: "Total messages returned by receive calls",
		})

	MessagesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_messages_deleted_total",
			Help: "Total messages acknowledged via batch delete",
		})

	EmptyPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_empty_polls_total",
			Help: "Total receive calls that returned no messages",
		})

	ConnEventsDrained = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_conn_events_drained_total",
			Help: "Total stale transport connection events discarded before polls",
		})

	ReceiveBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dawdle_receive_batch_size",
			Help:    "Histogram of message counts per non-empty receive",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		})

	DispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawdle_dispatch_failures_total",
			Help: "Total signals whose handlers returned an error",
		})
)

func Setup() {
	prometheus.MustRegister(SignalsSent)
	prometheus.MustRegister(SendFailures)
	prometheus.MustRegister(MessagesReceived)
	prometheus.MustRegister(MessagesDeleted)
	prometheus.MustRegister(EmptyPolls)
	prometheus.MustRegister(ConnEventsDrained)
	prometheus.MustRegister(ReceiveBatchSize)
	prometheus.MustRegister(DispatchFailures)
}
