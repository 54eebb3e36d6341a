package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	return 0
}

func TestHelpersAreNoopsBeforeInit(t *testing.T) {
	// Collectors are package globals; only assert the helpers tolerate nil
	// before any test has called Init.
	if transferCounter != nil {
		t.Skip("metrics already initialised")
	}
	assert.NotPanics(t, func() {
		ObserveTransfer("optimistic", "success", time.Millisecond)
		IncrementTransferRetry("optimistic")
		IncrementNotification("sent")
		IncrementRateLimited("ip")
		IncrementPanic()
	})
}

func TestInitRegistersCollectorsOnce(t *testing.T) {
	Init()
	Init()

	before := counterValue(t, "transfers_total", map[string]string{"strategy": "pessimistic", "result": "success"})
	ObserveTransfer("pessimistic", "success", 5*time.Millisecond)
	after := counterValue(t, "transfers_total", map[string]string{"strategy": "pessimistic", "result": "success"})
	assert.Equal(t, before+1, after)

	IncrementTransferRetry("optimistic")
	assert.GreaterOrEqual(t, counterValue(t, "transfer_retries_total", map[string]string{"strategy": "optimistic"}), 1.0)

	IncrementRateLimited("user")
	assert.GreaterOrEqual(t, counterValue(t, "http_rate_limited_total", map[string]string{"scope": "user"}), 1.0)

	IncrementPanic()
	assert.GreaterOrEqual(t, counterValue(t, "http_panics_recovered_total", nil), 1.0)

	IncrementWorkerRun("notification", "success")
	assert.GreaterOrEqual(t, counterValue(t, "worker_runs_total", map[string]string{"worker": "notification", "result": "success"}), 1.0)
}
