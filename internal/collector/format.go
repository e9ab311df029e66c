package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Summary is the batch-level result printed at the end of every run.
type Summary struct {
	Personas  int  `json:"personas"`
	Due       int  `json:"due"`
	Deferred  int  `json:"deferred"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Seeded    bool `json:"seeded"`

	EventsAttempted int `json:"events_attempted"`
	EventsSent      int `json:"events_sent"`
	EventsFailed    int `json:"events_failed"`
	EventsInvalid   int `json:"events_invalid"`

	Errors []string `json:"errors,omitempty"`
}

const maxSummaryErrors = 20

// AddError records why a persona's visit failed. Only the first few are kept.
func (s *Summary) AddError(personaID, msg string) {
	if msg == "" || len(s.Errors) >= maxSummaryErrors {
		return
	}
	s.Errors = append(s.Errors, personaID+": "+msg)
}

// FormatText writes a human-readable run report.
func FormatText(w io.Writer, s Summary, m *Metrics) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "HogSim - Batch Report")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Personas:   %s (due %d, deferred %d)\n", formatNumber(s.Personas), s.Due, s.Deferred)
	fmt.Fprintf(w, "Sessions:   attempted %d  succeeded %d  failed %d  skipped %d\n",
		s.Attempted, s.Succeeded, s.Failed, s.Skipped)
	fmt.Fprintf(w, "Events:     attempted %s  sent %s  failed %d  invalid %d\n",
		formatNumber(s.EventsAttempted), formatNumber(s.EventsSent), s.EventsFailed, s.EventsInvalid)
	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if m == nil || m.Actions == 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "No actions recorded")
		return
	}

	fmt.Fprintf(w, "Duration:   %v\n", m.BatchDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Actions:    %s (%.1f%% succeeded, %d skipped, %d failed)\n",
		formatNumber(m.Actions), m.SuccessRate, m.Skipped, m.Failed)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Action:")
	for _, name := range m.ActionNames() {
		am := m.ByAction[name]
		fmt.Fprintf(w, "  %-22s %4d runs  ok=%d skip=%d fail=%d  events=%d  avg=%s  p95=%s\n",
			name, am.Count, am.Succeeded, am.Skipped, am.Failed, am.Emitted,
			FormatDuration(am.Duration.Avg), FormatDuration(am.Duration.P95))
	}
	if len(m.ByScenario) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "By Scenario:")
		for _, name := range m.ScenarioNames() {
			sm := m.ByScenario[name]
			fmt.Fprintf(w, "  %-22s %4d sessions  completed=%d failed=%d  events=%d\n",
				name, sm.Sessions, sm.Completed, sm.Failed, sm.Emitted)
		}
	}
}

// FormatJSON writes the run report as JSON.
func FormatJSON(w io.Writer, s Summary, m *Metrics) error {
	output := struct {
		Summary   Summary                     `json:"summary"`
		Duration  string                      `json:"duration,omitempty"`
		Actions   int                         `json:"actions"`
		Succeeded int                         `json:"succeeded"`
		Skipped   int                         `json:"skipped"`
		Failed    int                         `json:"failed"`
		ByAction  map[string]jsonActionStats  `json:"by_action"`
		Scenarios map[string]*ScenarioMetrics `json:"by_scenario"`
	}{
		Summary:  s,
		ByAction: make(map[string]jsonActionStats),
	}
	if m != nil {
		output.Duration = m.BatchDuration.Round(time.Millisecond).String()
		output.Actions = m.Actions
		output.Succeeded = m.Succeeded
		output.Skipped = m.Skipped
		output.Failed = m.Failed
		output.Scenarios = m.ByScenario
		for name, am := range m.ByAction {
			output.ByAction[name] = jsonActionStats{
				Count:     am.Count,
				Succeeded: am.Succeeded,
				Skipped:   am.Skipped,
				Failed:    am.Failed,
				Emitted:   am.Emitted,
				Avg:       FormatDuration(am.Duration.Avg),
				P95:       FormatDuration(am.Duration.P95),
			}
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

type jsonActionStats struct {
	Count     int    `json:"count"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Emitted   int    `json:"events_emitted"`
	Avg       string `json:"avg"`
	P95       string `json:"p95"`
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", formatNumber(n/1000), n%1000)
}
