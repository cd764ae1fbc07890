package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_AgeStatistics(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 25, "B", 30, "C", 35, "D", 40)

	out, err := eng.Model("User").Aggregate(M{
		"_avg":   M{"age": true},
		"_sum":   M{"age": true},
		"_min":   M{"age": true},
		"_max":   M{"age": true},
		"_count": true,
	})
	require.NoError(t, err)

	assert.Equal(t, 32.5, out["_avg"].(Record)["age"])
	assert.Equal(t, 130, out["_sum"].(Record)["age"])
	assert.Equal(t, 25, out["_min"].(Record)["age"])
	assert.Equal(t, 40, out["_max"].(Record)["age"])
	assert.Equal(t, 4, out["_count"])
}

func TestAggregate_CountPerField(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 25, "B", nil, "C", 35)

	out, err := eng.Model("User").Aggregate(M{
		"_count": M{"_all": true, "age": true},
	})
	require.NoError(t, err)

	counts := out["_count"].(Record)
	assert.Equal(t, 3, counts["_all"])
	assert.Equal(t, 2, counts["age"])
}

func TestAggregate_EmptySetGivesNulls(t *testing.T) {
	eng := newTestEngine(t)

	out, err := eng.Model("User").Aggregate(M{
		"_avg":   M{"age": true},
		"_max":   M{"age": true},
		"_count": true,
	})
	require.NoError(t, err)

	assert.Nil(t, out["_avg"].(Record)["age"])
	assert.Nil(t, out["_max"].(Record)["age"])
	assert.Equal(t, 0, out["_count"])
}

func TestAggregate_RespectsWhere(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 25, "B", 30, "C", 35, "D", 40)

	out, err := eng.Model("User").Aggregate(M{
		"where": M{"age": M{"gte": 35}},
		"_sum":  M{"age": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 75, out["_sum"].(Record)["age"])
}

func TestAggregate_UnknownField(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Model("User").Aggregate(M{"_avg": M{"height": true}})
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN_FIELD", ErrorCode(err))
}

func TestGroupBy_AverageAgeByName(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "John", 25, "Jane", 30, "John", 35, "Jane", 40)

	groups, err := eng.Model("User").GroupBy(M{
		"by":      []any{"name"},
		"_avg":    M{"age": true},
		"orderBy": M{"name": "asc"},
	})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, Record{"name": "Jane", "_avg": Record{"age": 35.0}}, groups[0])
	assert.Equal(t, Record{"name": "John", "_avg": Record{"age": 30.0}}, groups[1])
}

func TestGroupBy_Having(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "John", 25, "Jane", 30, "John", 35, "Jane", 40, "Ana", 20)

	tests := []struct {
		name   string
		having M
		want   []any
	}{
		{"aggregate filter", M{"age": M{"_avg": M{"gt": 31}}}, []any{"Jane"}},
		{"count filter", M{"name": M{"_count": M{"gte": 2}}}, []any{"Jane", "John"}},
		{"plain field", M{"name": "Ana"}, []any{"Ana"}},
		{"OR", M{"OR": []any{M{"name": "Ana"}, M{"age": M{"_max": M{"equals": 35}}}}}, []any{"Ana", "John"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := eng.Model("User").GroupBy(M{
				"by":      "name",
				"having":  tt.having,
				"orderBy": M{"name": "asc"},
			})
			require.NoError(t, err)

			var names []any
			for _, g := range groups {
				names = append(names, g["name"])
				_, leaked := g["_avg"]
				assert.False(t, leaked, "having-only aggregates must not appear in the output")
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestGroupBy_OrderByAggregateAndPaginate(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "John", 25, "Jane", 30, "John", 35, "Jane", 40, "Ana", 20)

	groups, err := eng.Model("User").GroupBy(M{
		"by":      []string{"name"},
		"_sum":    M{"age": true},
		"orderBy": M{"_sum": M{"age": "desc"}},
		"take":    2,
	})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "Jane", groups[0]["name"])
	assert.Equal(t, "John", groups[1]["name"])
}

func TestGroupBy_RequiresBy(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Model("User").GroupBy(M{})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
}
