package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for one engine instance
type Metrics struct {
	operations   *prometheus.CounterVec
	errors       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	indexLookups *prometheus.CounterVec
	transactions *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_mock_operations_total",
			Help: "Delegate operations executed",
		}, []string{"entity", "operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_mock_errors_total",
			Help: "Delegate operations that failed, by error code",
		}, []string{"entity", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chameleon_mock_operation_seconds",
			Help:    "Delegate operation latency",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"operation"}),
		indexLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_mock_index_lookups_total",
			Help: "Candidate resolution served by an index (hit) or a full scan (miss)",
		}, []string{"result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_mock_transactions_total",
			Help: "Transactions by mode and outcome",
		}, []string{"mode", "outcome"}),
	}

	if reg == nil {
		return m, nil
	}
	m.operations = registerCounter(reg, m.operations)
	m.errors = registerCounter(reg, m.errors)
	m.indexLookups = registerCounter(reg, m.indexLookups)
	m.transactions = registerCounter(reg, m.transactions)
	if err := reg.Register(m.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
			m.duration = existing
		}
	}
	return m, nil
}

// registerCounter registers c, or returns the collector already registered
// under the same name so several engines can share one registry.
func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeOp(entity, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, op).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.errors.WithLabelValues(entity, ErrorCode(err)).Inc()
	}
}

func (m *Metrics) observeLookup(indexed bool) {
	if m == nil {
		return
	}
	if indexed {
		m.indexLookups.WithLabelValues("hit").Inc()
		return
	}
	m.indexLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) observeTransaction(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
		if mode == "batch" {
			outcome = "error"
		}
	}
	m.transactions.WithLabelValues(mode, outcome).Inc()
}
