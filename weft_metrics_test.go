package weft

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := New(WithMetrics(NewMetrics(WithRegistry(reg))))

	count := NewPrimitiveWith(g, 1)
	doubled := NewDerivedWith(g, func(r Reader) (int, error) {
		return count.Read(r) * 2, nil
	})

	v, err := doubled.Get()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, _ = doubled.Get() // cache hit

	count.Set(5)
	_, _ = doubled.Get() // recompute

	// cache hits count every memoized answer, including the primitive
	// reads inside the computes
	assert.Equal(t, 2.0, gathered(t, reg, "weft_computes_total"))
	assert.Equal(t, 4.0, gathered(t, reg, "weft_cache_hits_total"))
	assert.Equal(t, 1.0, gathered(t, reg, "weft_stale_marks_total"))
	assert.Equal(t, 1.0, gathered(t, reg, "weft_commits_total"))
	assert.Equal(t, 2.0, gathered(t, reg, "weft_nodes"))

	require.NoError(t, count.Dispose(true))
	assert.Equal(t, 0.0, gathered(t, reg, "weft_nodes"))
}

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		m := fam.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
