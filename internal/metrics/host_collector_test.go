package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostCollector(t *testing.T) {
	c := NewHostCollector(t.TempDir(), zerolog.Nop())

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(c), 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.Contains(t, f.GetName(), "geofence_host_")
		for _, m := range f.GetMetric() {
			v := m.GetGauge().GetValue()
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestHostCollector_DefaultPath(t *testing.T) {
	c := NewHostCollector("", zerolog.Nop())
	assert.Equal(t, "/", c.diskPath)
}
