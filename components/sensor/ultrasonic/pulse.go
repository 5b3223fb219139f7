package ultrasonic

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/sonarbot/rover/components/board"
)

// ErrTimedOut is returned when an awaited edge is not seen within the poll bound.
var ErrTimedOut = errors.New("timed out waiting for edge")

// DefaultMaxPolls bounds each edge wait.
const DefaultMaxPolls = 10000

// PollInterval is the delay between two reads of the echo line.
const PollInterval = time.Microsecond

// An Edge is the moment a line was first seen at an awaited level.
type Edge struct {
	Time time.Time
	// Polls is how many reads it took to observe the edge.
	Polls int
}

// A PulseTimer times pulses on a digital input by polling it.
type PulseTimer struct {
	pin      board.GPIOPin
	clk      clock.Clock
	maxPolls int
}

// NewPulseTimer returns a PulseTimer reading pin. A non-positive maxPolls uses DefaultMaxPolls.
func NewPulseTimer(pin board.GPIOPin, clk clock.Clock, maxPolls int) *PulseTimer {
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return &PulseTimer{pin: pin, clk: clk, maxPolls: maxPolls}
}

// MaxPolls returns the poll bound of every edge wait.
func (pt *PulseTimer) MaxPolls() int {
	return pt.maxPolls
}

// AwaitEdge polls the line until it reads high (or low, when high is false) and returns the
// time of that read. The line is read at most MaxPolls times; if it never reaches the level the
// error wraps ErrTimedOut and the returned Edge carries the number of polls made.
//
// The wait is a busy loop: it does not observe ctx between polls because a scheduling delay would
// skew the measured width.
func (pt *PulseTimer) AwaitEdge(ctx context.Context, high bool) (Edge, error) {
	for polls := 1; polls <= pt.maxPolls; polls++ {
		level, err := pt.pin.Get(ctx)
		if err != nil {
			return Edge{Polls: polls}, errors.Wrap(err, "reading echo pin")
		}
		if level == high {
			return Edge{Time: pt.clk.Now(), Polls: polls}, nil
		}
		pt.clk.Sleep(PollInterval)
	}
	return Edge{Polls: pt.maxPolls}, errors.Wrapf(ErrTimedOut, "%s edge after %d polls", edgeName(high), pt.maxPolls)
}

// Width awaits the line going high then low and returns the time between the two edges.
func (pt *PulseTimer) Width(ctx context.Context) (time.Duration, error) {
	start, err := pt.AwaitEdge(ctx, true)
	if err != nil {
		return 0, errors.Wrap(err, "awaiting echo start")
	}
	end, err := pt.AwaitEdge(ctx, false)
	if err != nil {
		return 0, errors.Wrap(err, "awaiting echo end")
	}
	width := end.Time.Sub(start.Time)
	if width < 0 {
		width = 0
	}
	return width, nil
}

func edgeName(high bool) string {
	if high {
		return "rising"
	}
	return "falling"
}
