package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"hogsim/internal/collector"
	"hogsim/internal/core"
)

type fixedSource struct{ m *collector.Metrics }

func (f fixedSource) Compute() *collector.Metrics { return f.m }

func sample() Source {
	return fixedSource{collector.ComputeMetrics([]core.Event{
		{Step: "land", Status: core.StatusSucceeded, Emitted: 1},
		{Step: "rage_click", Status: core.StatusSkipped},
		{Scenario: "returning_user", Status: core.StatusSucceeded},
	}, 0)}
}

// syncBuffer guards a buffer written by the progress goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgress_Line(t *testing.T) {
	p := NewProgress(sample(), 25, false)
	got := p.Line(75 * time.Second)
	want := "[01:15] Personas: 1/25 | Actions: 2 (skipped 1, failed 0) | Events: 1"
	if got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestProgress_QuietMode(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(sample(), 1, true)
	p.SetOutput(&buf)
	p.Start()
	p.Printf("hello")
	p.Stop()
	if buf.String() != "" {
		t.Errorf("quiet progress wrote %q", buf.String())
	}
}

func TestProgress_Ticks(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(sample(), 5, false)
	p.SetOutput(&buf)
	p.SetInterval(5 * time.Millisecond)
	p.Start()
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	if !strings.Contains(buf.String(), "Personas: 1/5") {
		t.Errorf("expected a status line, got %q", buf.String())
	}
}

func TestProgress_DoubleStop(t *testing.T) {
	p := NewProgress(sample(), 1, false)
	p.SetOutput(&syncBuffer{})
	p.Start()
	p.Stop()
	p.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	p := NewProgress(sample(), 1, false)
	p.SetOutput(&syncBuffer{})
	p.Stop()
}

func TestProgress_Printf(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(sample(), 1, false)
	p.SetOutput(&buf)
	p.Printf("batch of %d personas", 3)
	if !strings.Contains(buf.String(), "batch of 3 personas\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestProgress_WithCollector(t *testing.T) {
	c := collector.NewCollector(core.NewFakeClock(time.Unix(0, 0)))
	defer c.Close()
	p := NewProgress(c, 2, false)
	if !strings.Contains(p.Line(0), "Personas: 0/2") {
		t.Errorf("unexpected line %q", p.Line(0))
	}
}
