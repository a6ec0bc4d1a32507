// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the netlink pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or going out of the system: requests, events, dumps.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestLatencyHistogram tracks the latency of a full request task,
	// from the start of reqtask.Run until it returns.
	RequestLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "netlinkctl_request_latency_seconds",
			Help: "netlink request task latency distribution (seconds)",
			Buckets: []float64{
				0.001, 0.00125, 0.0016, 0.002, 0.0025, 0.0032, 0.004, 0.005, 0.0063, 0.0079,
				0.01, 0.0125, 0.016, 0.02, 0.025, 0.032, 0.04, 0.05, 0.063, 0.079,
				0.1, 0.125, 0.16, 0.2, 0.25, 0.32, 0.4, 0.5,
			},
		},
		[]string{"task"})

	// DumpResultSizeHistogram tracks the number of records returned by a
	// single dump task (links, addresses, routes, or neighbors).
	DumpResultSizeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "netlinkctl_dump_result_size",
			Help: "number of records returned by a dump task",
			Buckets: []float64{
				1, 2, 3, 4, 5, 6, 8,
				10, 12.5, 16, 20, 25, 32, 40, 50, 63, 79,
				100, 125, 160, 200, 250, 320, 400, 500, 630, 790,
				1000, 1250, 1600, 2000, 2500, 3200, 4000, 5000,
			},
		},
		[]string{"task"})

	// ParseErrorCount counts messages dropped because the fixed-size
	// family substructure or its attributes could not be parsed.
	ParseErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlinkctl_parse_error_total",
			Help: "The total number of messages dropped due to parse errors.",
		}, []string{"event"})

	// ListenerEventCounter counts events the listener successfully parsed
	// and handed to the dispatcher, by event kind.
	ListenerEventCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlinkctl_listener_event_total",
			Help: "The total number of events dispatched by the listener.",
		}, []string{"event"})

	// GuardReopenCounter counts how many times a socket guard has opened
	// its underlying netlink socket, including the first open.
	GuardReopenCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netlinkctl_guard_reopen_total",
			Help: "Number of times a socket guard opened its socket.",
		},
	)

	// DispatchPanicCounter counts handler panics recovered by the
	// dispatcher, by policy (sync or async), and under policy
	// "async-drop" the events dropped because an Async handler's queue
	// was full.
	DispatchPanicCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netlinkctl_dispatch_panic_total",
			Help: "The total number of handler panics recovered by the dispatcher.",
		}, []string{"policy"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in netlinkctl.metrics are registered.")
}
