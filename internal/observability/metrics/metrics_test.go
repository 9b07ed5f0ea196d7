package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)
	require.NotNil(t, m)

	m.ObserveCallStarted("audit")
	m.ObserveCallCompleted("audit", "completed", 95)
	m.ObserveStageTransition("acknowledge", "rule")
	m.ObserveInsight("excuse_detected")
	m.ObserveSpeakerFallback()
	m.ObservePersistFailure("call_memory")
	m.ObserveSpeakerLatency(1.2)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["futureself_call_started_total"])
	assert.True(t, names["futureself_call_insights_emitted_total"])
	assert.True(t, names["futureself_call_speaker_latency_seconds"])
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *CallMetrics
	assert.NotPanics(t, func() {
		m.ObserveCallStarted("audit")
		m.ObserveCallCompleted("audit", "hangup", 10)
		m.ObserveStageTransition("close", "ceiling")
		m.ObserveInsight("sentiment_analysis")
		m.ObserveSpeakerFallback()
		m.ObservePersistFailure("analytics")
		m.ObserveSpeakerLatency(0.5)
	})
}
