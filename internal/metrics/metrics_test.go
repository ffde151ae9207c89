package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherValue(t *testing.T, name, label, value string) (float64, bool) {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matches := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matches = true
				}
			}
			if !matches {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func TestCollectorsAreRegistered(t *testing.T) {
	AnalysisTotal.WithLabelValues(OutcomeOK).Add(0)
	AnalysisDuration.WithLabelValues(OutcomeOK).Observe(0)
	LLMRequests.WithLabelValues("ok").Add(0)
	TurnsRejected.WithLabelValues("blank").Add(0)

	for _, name := range []string{
		"neurochat_analysis_total",
		"neurochat_analysis_duration_seconds",
		"neurochat_llm_requests_total",
		"neurochat_turns_rejected_total",
		"neurochat_turn_pending",
	} {
		_, ok := gatherValue(t, name, "", "")
		assert.True(t, ok, "expected %s in default registry", name)
	}
}

func TestOutcomeLabelsAreSeparate(t *testing.T) {
	before, _ := gatherValue(t, "neurochat_analysis_total", "outcome", OutcomeSentinel)
	okBefore, _ := gatherValue(t, "neurochat_analysis_total", "outcome", OutcomeOK)

	AnalysisTotal.WithLabelValues(OutcomeSentinel).Inc()
	AnalysisDuration.WithLabelValues(OutcomeSentinel).Observe((250 * time.Millisecond).Seconds())

	after, ok := gatherValue(t, "neurochat_analysis_total", "outcome", OutcomeSentinel)
	require.True(t, ok)
	assert.Equal(t, before+1, after)

	okAfter, _ := gatherValue(t, "neurochat_analysis_total", "outcome", OutcomeOK)
	assert.Equal(t, okBefore, okAfter)

	samples, ok := gatherValue(t, "neurochat_analysis_duration_seconds", "outcome", OutcomeSentinel)
	require.True(t, ok)
	assert.GreaterOrEqual(t, samples, 1.0)
}

func TestTurnPendingGauge(t *testing.T) {
	TurnPending.Set(1)
	v, ok := gatherValue(t, "neurochat_turn_pending", "", "")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	TurnPending.Set(0)
	v, _ = gatherValue(t, "neurochat_turn_pending", "", "")
	assert.Equal(t, 0.0, v)
}
