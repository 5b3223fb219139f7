package differential

import (
	"context"
	"sync"

	"github.com/sonarbot/rover/logging"
)

// A Stopper can brake.
type Stopper interface {
	Stop(ctx context.Context) error
}

// A StopGuard stops a base exactly once when released. Acquire one at the start of a control cycle
// and defer its Release so that every way out of the cycle leaves the wheels braked.
type StopGuard struct {
	stopper Stopper
	logger  logging.Logger

	once sync.Once
	err  error
}

// NewStopGuard returns a guard over s.
func NewStopGuard(s Stopper, logger logging.Logger) *StopGuard {
	return &StopGuard{stopper: s, logger: logger}
}

// Release stops the base the first time it is called and returns that stop's result on every
// call. The stop runs even when ctx is already cancelled.
func (g *StopGuard) Release(ctx context.Context) error {
	g.once.Do(func() {
		g.err = g.stopper.Stop(context.WithoutCancel(ctx))
		if g.err != nil {
			g.logger.Errorw("failed to stop base", "error", g.err)
		}
	})
	return g.err
}
