package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters shared across the four processes. Each binary only ever touches the
// ones on its own path; registering the full set keeps the ops dashboard uniform.
var (
	BusMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_bus_messages_sent_total",
		Help: "Messages pushed onto the bus, by kind.",
	}, []string{"kind"})

	BusMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_bus_messages_received_total",
		Help: "Messages pulled off the bus, by kind.",
	}, []string{"kind"})

	BusMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_bus_messages_dropped_total",
		Help: "Messages dropped at the high water mark, by kind.",
	}, []string{"kind"})

	BusStructuralErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_bus_structural_errors_total",
		Help: "Frames skipped for unknown kind, short payload or decode failure.",
	})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_decode_failures_total",
		Help: "Calldata or log payloads that failed structural decoding, by stage.",
	}, []string{"stage"})

	DedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_scout_dedup_hits_total",
		Help: "Pending price updates dropped as duplicates.",
	})

	PendingTxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_scout_pending_dropped_total",
		Help: "Pending transactions dropped because the decode queue was full.",
	})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_reconnects_total",
		Help: "Re-established subscriptions and sockets, by target.",
	}, []string{"target"})

	TracesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_traces_started_total",
		Help: "Price update and position event traces started, by origin.",
	}, []string{"origin"})

	TracesOverDeadline = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_traces_over_deadline_total",
		Help: "Traces abandoned at the recompute deadline.",
	})

	ForkAcquireFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_fork_acquire_failures_total",
		Help: "Traces that could not obtain a simulation fork in time.",
	})

	UnderwaterEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overlord_underwater_emitted_total",
		Help: "Underwater user messages emitted to the liquidator.",
	})

	BundlesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_bundles_submitted_total",
		Help: "Bundles submitted to the relay, by outcome.",
	}, []string{"outcome"})

	PlansDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overlord_plans_discarded_total",
		Help: "Liquidation plans discarded before submission, by reason.",
	}, []string{"reason"})
)
