package collector

import (
	"testing"
	"time"

	"hogsim/internal/core"
)

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil, time.Second)
	if m.Actions != 0 || m.SuccessRate != 0 {
		t.Errorf("expected empty metrics, got %+v", m)
	}
	if m.ByAction == nil || m.ByScenario == nil {
		t.Error("maps must be initialised")
	}
}

func TestComputeMetrics_ByAction(t *testing.T) {
	events := []core.Event{
		{Step: "watch_content", Status: core.StatusSucceeded, Duration: 10 * time.Second, Emitted: 5},
		{Step: "watch_content", Status: core.StatusSucceeded, Duration: 20 * time.Second, Emitted: 6},
		{Step: "rage_click", Status: core.StatusSkipped, Duration: time.Second},
		{Step: "search", Status: core.StatusFailed, Duration: 2 * time.Second},
	}
	m := ComputeMetrics(events, time.Minute)

	if m.Actions != 4 || m.Emitted != 11 {
		t.Errorf("actions=%d emitted=%d", m.Actions, m.Emitted)
	}
	if m.SuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", m.SuccessRate)
	}
	w := m.ByAction["watch_content"]
	if w == nil || w.Count != 2 || w.Emitted != 11 || w.Duration.Avg != 15*time.Second {
		t.Errorf("unexpected watch metrics: %+v", w)
	}
	if m.ByAction["rage_click"].Skipped != 1 {
		t.Error("rage_click should be skipped")
	}
	if m.Duration.Max != 20*time.Second || m.Duration.Min != time.Second {
		t.Errorf("unexpected durations: %+v", m.Duration)
	}
}

func TestComputeMetrics_Sessions(t *testing.T) {
	events := []core.Event{
		{Scenario: "returning_user", Status: core.StatusSucceeded, Emitted: 7},
		{Scenario: "returning_user", Status: core.StatusFailed},
		{Scenario: "pricing_funnel", Status: core.StatusSkipped},
	}
	m := ComputeMetrics(events, 0)

	if m.Actions != 0 {
		t.Errorf("session results must not count as actions")
	}
	want := SessionMetrics{Total: 3, Completed: 1, Aborted: 1, Failed: 1}
	if m.Sessions != want {
		t.Errorf("sessions = %+v, want %+v", m.Sessions, want)
	}
	ru := m.ByScenario["returning_user"]
	if ru.Sessions != 2 || ru.Completed != 1 || ru.Failed != 1 || ru.Emitted != 7 {
		t.Errorf("unexpected scenario metrics: %+v", ru)
	}
	names := m.ScenarioNames()
	if len(names) != 2 || names[0] != "pricing_funnel" {
		t.Errorf("names = %v", names)
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 10},
		{0.5, 50},
		{0.9, 90},
		{1, 100},
	}
	for _, tt := range tests {
		if got := ComputePercentile(durations, tt.p); got != tt.want {
			t.Errorf("p%v = %v, want %v", tt.p, got, tt.want)
		}
	}
	if ComputePercentile(nil, 0.5) != 0 {
		t.Error("empty slice should give 0")
	}
}

func TestComputeDurationMetrics_DoesNotSortInput(t *testing.T) {
	in := []time.Duration{30, 10, 20}
	d := ComputeDurationMetrics(in)
	if d.Min != 10 || d.Max != 30 || d.Avg != 20 {
		t.Errorf("unexpected metrics: %+v", d)
	}
	if in[0] != 30 {
		t.Error("input was modified")
	}
}
