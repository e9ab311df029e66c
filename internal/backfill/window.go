package backfill

import (
	"sort"
	"time"

	"hogsim/internal/core"
)

// Window is a half-open hour range [From, To) within a UTC day.
type Window struct {
	From, To int
}

// Step windows. Each window starts at or after the previous one ends, so
// drawing each step inside its own window keeps a day causally ordered.
var (
	PageviewWindow = Window{7, 11}
	BrowseWindow   = Window{11, 14}
	TitleWindow    = Window{14, 17}
	WatchWindow    = Window{17, 21}
	SearchWindow   = Window{21, 23}
	LateWindow     = Window{23, 24}
)

func (w Window) bounds(day time.Time) (time.Time, time.Time) {
	return day.Add(time.Duration(w.From) * time.Hour), day.Add(time.Duration(w.To) * time.Hour)
}

// split divides w on day into n consecutive slices.
func (w Window) split(day time.Time, n int) [][2]time.Time {
	from, to := w.bounds(day)
	if n < 1 {
		n = 1
	}
	width := to.Sub(from) / time.Duration(n)
	out := make([][2]time.Time, n)
	for i := range out {
		lo := from.Add(time.Duration(i) * width)
		hi := lo.Add(width)
		if i == n-1 {
			hi = to
		}
		out[i] = [2]time.Time{lo, hi}
	}
	return out
}

// draw returns a whole-second instant in [from, to).
func draw(r *core.Rand, from, to time.Time) time.Time {
	secs := int64(to.Sub(from) / time.Second)
	if secs <= 0 {
		return from
	}
	return from.Add(time.Duration(r.Int63n(secs)) * time.Second)
}

// drawSorted returns k ascending instants in [from, to).
func drawSorted(r *core.Rand, from, to time.Time, k int) []time.Time {
	out := make([]time.Time, k)
	for i := range out {
		out[i] = draw(r, from, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
