package behavior

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hogsim/internal/browser"
	"hogsim/internal/core"
)

// ErrPrecondition marks an action whose target state is absent. The action
// is skipped and the scenario moves on.
var ErrPrecondition = errors.New("precondition not met")

// Action is a guarded unit of behaviour. Pre checks (and may wait for) the
// state the action needs; Do performs it and emits events.
type Action struct {
	Name string
	Pre  func(ctx context.Context, s *Session) error
	Do   func(ctx context.Context, s *Session) error
}

// Outcome is the result of running one action.
type Outcome struct {
	Action   string
	Status   core.Status
	Err      error
	Events   int
	Duration time.Duration
}

// Run executes the action and records its outcome on the session.
func (a Action) Run(ctx context.Context, s *Session) Outcome {
	start := s.Clock.Now()
	before := s.emitted

	err := ctx.Err()
	if err == nil && a.Pre != nil {
		err = a.Pre(ctx, s)
	}
	if err == nil {
		err = a.Do(ctx, s)
	}

	o := Outcome{
		Action:   a.Name,
		Status:   classify(err),
		Err:      err,
		Events:   s.emitted - before,
		Duration: s.Clock.Since(start),
	}
	switch o.Status {
	case core.StatusSkipped:
		s.log.Debug("action skipped", zap.String("action", a.Name), zap.Error(err))
	case core.StatusFailed:
		s.log.Warn("action failed", zap.String("action", a.Name), zap.Error(err))
	}
	s.record(o)
	return o
}

func classify(err error) core.Status {
	switch {
	case err == nil:
		return core.StatusSucceeded
	case errors.Is(err, ErrPrecondition), errors.Is(err, browser.ErrElementNotFound):
		return core.StatusSkipped
	default:
		return core.StatusFailed
	}
}
