package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records ledger operation outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	units      *prometheus.CounterVec
	reputation prometheus.Counter
}

// NewMetrics registers the ledger metrics on the provided registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clanbank",
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by kind and outcome.",
	}, []string{"operation", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clanbank",
		Name:      "ledger_operation_duration_seconds",
		Help:      "Duration of ledger operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clanbank",
		Name:      "ledger_units_total",
		Help:      "Item units moved by successful operations.",
	}, []string{"operation"})
	reputation := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clanbank",
		Name:      "reputation_awarded_total",
		Help:      "Reputation points awarded for deposits.",
	})
	reg.MustRegister(operations, duration, units, reputation)
	return &Metrics{
		operations: operations,
		duration:   duration,
		units:      units,
		reputation: reputation,
	}
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *Metrics) addUnits(operation string, units int) {
	if m == nil || m.units == nil {
		return
	}
	m.units.WithLabelValues(operation).Add(float64(units))
}

func (m *Metrics) addReputation(points float64) {
	if m == nil || m.reputation == nil || points <= 0 {
		return
	}
	m.reputation.Add(points)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrStorageFull):
		return "storage_full"
	case errors.Is(err, ErrItemNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
