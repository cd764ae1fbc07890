package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Operations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	eng := newTestEngine(t, WithMetrics(m))
	seedUsers(t, eng, "Ana", 25, "Bob", 30)
	_, err = eng.Model("User").Create(M{"data": M{"email": "ana0@mail.com"}})
	require.Error(t, err)
	_, err = eng.Model("User").FindMany(M{"where": M{"id": 1}})
	require.NoError(t, err)
	_, err = eng.Model("User").FindMany(M{"where": M{"name": "Bob"}})
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.operations.WithLabelValues("User", "create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("User", "findMany")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("User", "UNIQUE_CONSTRAINT_VIOLATION")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.indexLookups.WithLabelValues("hit")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.indexLookups.WithLabelValues("miss")), 1.0)

	n, err := testutil.GatherAndCount(reg, "chameleon_mock_operation_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestMetrics_Transactions(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	eng := newTestEngine(t, WithMetrics(m))

	require.NoError(t, eng.Transaction(func(*Engine) error { return nil }))
	require.Error(t, eng.Transaction(func(*Engine) error { return errors.New("nope") }))
	_, err = eng.Batch(func() (any, error) { return nil, errors.New("nope") })
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("interactive", "commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("interactive", "rollback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("batch", "error")))
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	a := newTestEngine(t, WithMetrics(first))
	b := newTestEngine(t, WithMetrics(second))
	_, err = a.Model("User").Count(M{})
	require.NoError(t, err)
	_, err = b.Model("User").Count(M{})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.operations.WithLabelValues("User", "count")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeOp("User", "create", 0, nil)
		m.observeLookup(true)
		m.observeTransaction("batch", nil)
	})

	unregistered, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, unregistered.operations)
}
