package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SymbolsSubscribed.Set(250)
	m.RPCRetries.WithLabelValues(OpSubscribe).Inc()
	m.RPCRetries.WithLabelValues(OpSubscribe).Inc()
	m.EventsDelivered.Add(3)

	assert.Equal(t, 250.0, testutil.ToFloat64(m.SymbolsSubscribed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCRetries.WithLabelValues(OpSubscribe)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsDelivered))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fulltick_symbols_subscribed"])
	assert.True(t, names["fulltick_rpc_retries_total"])
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}

func TestOrNop(t *testing.T) {
	m := Nop()
	assert.Same(t, m, OrNop(m))
	assert.NotNil(t, OrNop(nil))
	// Independent registries: creating several must not panic.
	assert.NotPanics(t, func() { Nop(); Nop() })
}
