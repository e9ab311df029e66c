package collector

import (
	"sort"
	"time"

	"hogsim/internal/core"
)

// Metrics summarises a batch.
type Metrics struct {
	Actions       int             `json:"actions"`
	Succeeded     int             `json:"succeeded"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	SuccessRate   float64         `json:"success_rate"`
	Emitted       int             `json:"events_emitted"`
	BatchDuration time.Duration   `json:"batch_duration"`
	Duration      DurationMetrics `json:"durations"`

	Sessions   SessionMetrics              `json:"sessions"`
	ByAction   map[string]*ActionMetrics   `json:"by_action"`
	ByScenario map[string]*ScenarioMetrics `json:"by_scenario"`
}

// SessionMetrics counts persona-level results.
type SessionMetrics struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
	Failed    int `json:"failed"`
}

// DurationMetrics contains duration statistics.
type DurationMetrics struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// ActionMetrics contains per-action statistics.
type ActionMetrics struct {
	Count     int             `json:"count"`
	Succeeded int             `json:"succeeded"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Emitted   int             `json:"events_emitted"`
	Duration  DurationMetrics `json:"durations"`
}

// ScenarioMetrics contains per-scenario session counts.
type ScenarioMetrics struct {
	Sessions  int `json:"sessions"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Emitted   int `json:"events_emitted"`
}

// ComputeMetrics computes metrics from outcomes. Outcomes with an empty Step
// are session results; everything else is an action. Pure function.
func ComputeMetrics(events []core.Event, batchDuration time.Duration) *Metrics {
	m := &Metrics{
		ByAction:      make(map[string]*ActionMetrics),
		ByScenario:    make(map[string]*ScenarioMetrics),
		BatchDuration: batchDuration,
	}

	var all []time.Duration
	perAction := make(map[string][]time.Duration)

	for _, e := range events {
		if e.Step == "" {
			m.addSession(e)
			continue
		}

		m.Actions++
		m.Emitted += e.Emitted
		am, ok := m.ByAction[e.Step]
		if !ok {
			am = &ActionMetrics{}
			m.ByAction[e.Step] = am
		}
		am.Count++
		am.Emitted += e.Emitted
		switch e.Status {
		case core.StatusSucceeded:
			m.Succeeded++
			am.Succeeded++
		case core.StatusSkipped:
			m.Skipped++
			am.Skipped++
		default:
			m.Failed++
			am.Failed++
		}
		all = append(all, e.Duration)
		perAction[e.Step] = append(perAction[e.Step], e.Duration)
	}

	if m.Actions > 0 {
		m.SuccessRate = float64(m.Succeeded) / float64(m.Actions) * 100
	}
	m.Duration = ComputeDurationMetrics(all)
	for name, durations := range perAction {
		m.ByAction[name].Duration = ComputeDurationMetrics(durations)
	}
	return m
}

func (m *Metrics) addSession(e core.Event) {
	m.Sessions.Total++
	sm, ok := m.ByScenario[e.Scenario]
	if !ok {
		sm = &ScenarioMetrics{}
		m.ByScenario[e.Scenario] = sm
	}
	sm.Sessions++
	sm.Emitted += e.Emitted
	switch e.Status {
	case core.StatusSucceeded:
		m.Sessions.Completed++
		sm.Completed++
	case core.StatusSkipped:
		m.Sessions.Aborted++
	default:
		m.Sessions.Failed++
		sm.Failed++
	}
}

// ActionNames returns the reported action names in sorted order.
func (m *Metrics) ActionNames() []string {
	names := make([]string, 0, len(m.ByAction))
	for name := range m.ByAction {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScenarioNames returns the reported scenario names in sorted order.
func (m *Metrics) ScenarioNames() []string {
	names := make([]string, 0, len(m.ByScenario))
	for name := range m.ByScenario {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputePercentile returns the nearest-rank percentile p (0..1) of an
// ascending slice.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

// ComputeDurationMetrics calculates duration statistics.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
