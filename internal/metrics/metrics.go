package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunningStations tracks the number of station runtimes currently started.
	RunningStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_running_stations",
		Help: "The number of simulated stations currently running.",
	})

	// AcceptedStations tracks the number of stations in the Accepted registration state.
	AcceptedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_accepted_stations",
		Help: "The number of stations registered and accepted by the CSMS.",
	})

	// MessagesSent counts outgoing frames, labeled by OCPP version and action.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_sent_total",
		Help: "Total number of OCPP frames sent to the CSMS.",
	}, []string{"ocpp_version", "action"})

	// MessagesReceived counts inbound frames, labeled by OCPP version and message type.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_received_total",
		Help: "Total number of OCPP frames received from the CSMS.",
	}, []string{"ocpp_version", "message_type"})

	// RequestTimeouts counts outgoing Calls that expired without a response.
	RequestTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_request_timeouts_total",
		Help: "Total number of outgoing requests that timed out.",
	}, []string{"action"})

	// TransactionsStarted counts transactions opened by the ATG or remote commands.
	TransactionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simulator_transactions_started_total",
		Help: "Total number of transactions started.",
	})

	// TransactionsStopped counts transactions closed.
	TransactionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simulator_transactions_stopped_total",
		Help: "Total number of transactions stopped.",
	})

	// Reconnects counts WebSocket reconnection attempts, labeled by outcome.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_reconnects_total",
		Help: "Total number of WebSocket reconnect attempts.",
	}, []string{"outcome"})

	// RequestDuration observes round-trip times of outgoing Calls.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulator_request_duration_seconds",
		Help:    "Histogram of request round-trip times.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"action"})
)
