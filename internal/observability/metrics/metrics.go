package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the call engine.
type CallMetrics struct {
	callsStarted     *prometheus.CounterVec
	callsCompleted   *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	insightsEmitted  *prometheus.CounterVec
	speakerFallbacks prometheus.Counter
	persistFailures  *prometheus.CounterVec
	speakerLatency   prometheus.Histogram
	callDuration     prometheus.Histogram
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "started_total",
			Help:      "Total calls started",
		}, []string{"call_type"}),
		callsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "completed_total",
			Help:      "Total calls completed",
		}, []string{"call_type", "outcome"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "stage_transitions_total",
			Help:      "Total stage transitions",
		}, []string{"to_stage", "trigger"}),
		insightsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "insights_emitted_total",
			Help:      "Total insights published by analyzers",
		}, []string{"kind"}),
		speakerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "speaker_fallbacks_total",
			Help:      "Total canned fallback utterances emitted after LLM failures",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "persist_failures_total",
			Help:      "Post-call persistence write failures after retry",
		}, []string{"write"}),
		speakerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "speaker_latency_seconds",
			Help:      "Latency of speaker LLM turns",
			Buckets:   prometheus.DefBuckets,
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "futureself",
			Subsystem: "call",
			Name:      "duration_seconds",
			Help:      "Wall-clock call duration",
			Buckets:   []float64{15, 30, 60, 90, 120, 180, 240, 300},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.callsStarted, m.callsCompleted, m.stageTransitions, m.insightsEmitted,
		m.speakerFallbacks, m.persistFailures, m.speakerLatency, m.callDuration,
	)
	return m
}

func (m *CallMetrics) ObserveCallStarted(callType string) {
	if m == nil {
		return
	}
	m.callsStarted.WithLabelValues(callType).Inc()
}

func (m *CallMetrics) ObserveCallCompleted(callType, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.callsCompleted.WithLabelValues(callType, outcome).Inc()
	m.callDuration.Observe(durationSeconds)
}

func (m *CallMetrics) ObserveStageTransition(toStage, trigger string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(toStage, trigger).Inc()
}

func (m *CallMetrics) ObserveInsight(kind string) {
	if m == nil {
		return
	}
	m.insightsEmitted.WithLabelValues(kind).Inc()
}

func (m *CallMetrics) ObserveSpeakerFallback() {
	if m == nil {
		return
	}
	m.speakerFallbacks.Inc()
}

func (m *CallMetrics) ObservePersistFailure(write string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(write).Inc()
}

func (m *CallMetrics) ObserveSpeakerLatency(seconds float64) {
	if m == nil {
		return
	}
	m.speakerLatency.Observe(seconds)
}
