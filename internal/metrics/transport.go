package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

// Transport operation labels.
const (
	OpRead              = "read"
	OpWrite             = "write"
	OpAllocateChannel   = "allocate_channel"
	OpReleaseChannel    = "release_channel"
	OpAllocateBandwidth = "allocate_bandwidth"
	OpReleaseBandwidth  = "release_bandwidth"
	OpListen            = "listen"
	OpUnlisten          = "unlisten"
)

var (
	busTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "transactions_total",
		Help:      "Bus operations issued, by operation",
	}, []string{"op"})

	busErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "transaction_errors_total",
		Help:      "Bus operations that failed, by operation",
	}, []string{"op"})

	busLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "transaction_seconds",
		Help:      "Bus operation latency",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
	}, []string{"op"})
)

// ObserveTransaction records one bus operation.
func ObserveTransaction(op string, d time.Duration, err error) {
	busTransactions.WithLabelValues(op).Inc()
	busLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		busErrors.WithLabelValues(op).Inc()
	}
}

// InstrumentTransport wraps t so that every operation is counted and timed.
// Packet delivery is not wrapped.
func InstrumentTransport(t iidc.Transport) iidc.Transport {
	return &instrumented{next: t}
}

type instrumented struct {
	next iidc.Transport
}

func observe(op string, start time.Time, err error) error {
	ObserveTransaction(op, time.Since(start), err)
	return err
}

func (i *instrumented) Read(node uint16, addr uint64) (uint32, error) {
	start := time.Now()
	q, err := i.next.Read(node, addr)
	return q, observe(OpRead, start, err)
}

func (i *instrumented) Write(node uint16, addr uint64, value uint32) error {
	start := time.Now()
	return observe(OpWrite, start, i.next.Write(node, addr, value))
}

func (i *instrumented) AllocateIsoChannel(port int) (int, error) {
	start := time.Now()
	ch, err := i.next.AllocateIsoChannel(port)
	return ch, observe(OpAllocateChannel, start, err)
}

func (i *instrumented) ReleaseIsoChannel(port, channel int) error {
	start := time.Now()
	return observe(OpReleaseChannel, start, i.next.ReleaseIsoChannel(port, channel))
}

func (i *instrumented) AllocateBandwidth(port int, units uint32) error {
	start := time.Now()
	return observe(OpAllocateBandwidth, start, i.next.AllocateBandwidth(port, units))
}

func (i *instrumented) ReleaseBandwidth(port int, units uint32) error {
	start := time.Now()
	return observe(OpReleaseBandwidth, start, i.next.ReleaseBandwidth(port, units))
}

func (i *instrumented) StartIsoListen(port, channel int, sink iidc.IsoSink) error {
	start := time.Now()
	return observe(OpListen, start, i.next.StartIsoListen(port, channel, sink))
}

func (i *instrumented) StopIsoListen(port, channel int) error {
	start := time.Now()
	return observe(OpUnlisten, start, i.next.StopIsoListen(port, channel))
}
