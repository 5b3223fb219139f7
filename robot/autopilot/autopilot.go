// Package autopilot runs the rover's control loop: sweep the ranger, decide, drive, pause, and
// brake at the end of every cycle however it ends.
package autopilot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/components/base"
	"github.com/sonarbot/rover/components/base/differential"
	"github.com/sonarbot/rover/components/sensor/ultrasonic"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/services/decision"
	"github.com/sonarbot/rover/services/sweep"
)

// DefaultPace is the pause at the end of each cycle.
const DefaultPace = 200 * time.Millisecond

// errFaultStopped is returned by cycles attempted after a fatal fault.
var errFaultStopped = errors.New("autopilot is fault stopped")

// State is where the loop is within a cycle.
type State int

// Loop states.
const (
	Idle State = iota
	Scanning
	Deciding
	Actuating
	Pacing
	FaultStop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Deciding:
		return "deciding"
	case Actuating:
		return "actuating"
	case Pacing:
		return "pacing"
	case FaultStop:
		return "fault_stop"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// A Scanner produces one full sweep.
type Scanner interface {
	Sweep(ctx context.Context) (sweep.DistanceRecord, error)
}

// A SafetyMonitor returns an error when the rover must not keep driving.
type SafetyMonitor interface {
	Check(ctx context.Context) error
}

// Config configures the loop.
type Config struct {
	PaceMs int `json:"pace_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.PaceMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("pace_ms cannot be negative"))
	}
	return nil
}

// IsRecoverable reports whether a cycle error only calls for stopping and trying again. Only
// missed sonar edges are; everything else ends the loop.
func IsRecoverable(err error) bool {
	return errors.Is(err, ultrasonic.ErrTimedOut)
}

// A Loop owns the scanner, the drive and the safety monitor for as long as it runs.
type Loop struct {
	scanner    Scanner
	drive      base.Base
	safety     SafetyMonitor
	thresholds decision.Thresholds
	pace       time.Duration
	clk        clock.Clock
	logger     logging.Logger

	mu           sync.Mutex
	state        State
	cycles       int
	onTransition func(State)
}

// NewLoop returns a loop. safety may be nil.
func NewLoop(
	scanner Scanner,
	drive base.Base,
	safety SafetyMonitor,
	conf Config,
	thresholds decision.Thresholds,
	clk clock.Clock,
	logger logging.Logger,
) *Loop {
	pace := DefaultPace
	if conf.PaceMs > 0 {
		pace = time.Duration(conf.PaceMs) * time.Millisecond
	}
	return &Loop{
		scanner:    scanner,
		drive:      drive,
		safety:     safety,
		thresholds: thresholds,
		pace:       pace,
		clk:        clk,
		logger:     logger,
	}
}

// State returns the loop's current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Cycles returns how many cycles have been started.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	hook := l.onTransition
	l.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Run runs cycles until ctx is cancelled, which returns nil, or a cycle fails fatally, which
// returns that cycle's error. Cancellation is only looked at between cycles.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("autopilot started")
	for {
		if ctx.Err() != nil {
			l.logger.Info("autopilot stopped")
			return nil
		}
		if err := l.RunCycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				l.logger.Info("autopilot stopped")
				return nil
			}
			return err
		}
	}
}

// RunCycle runs one scan, decide, actuate and pace cycle. The drive is stopped exactly once
// before RunCycle returns or a panic leaves it. A scan that times out stops and returns nil; any
// other failure moves the loop to FaultStop and is returned.
func (l *Loop) RunCycle(ctx context.Context) (err error) {
	if l.State() == FaultStop {
		return errFaultStopped
	}
	l.mu.Lock()
	l.cycles++
	cycle := l.cycles
	l.mu.Unlock()

	guard := differential.NewStopGuard(l.drive, l.logger)
	defer func() {
		err = multierr.Combine(err, guard.Release(ctx))
	}()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorw("control cycle panicked", "cycle", cycle, "panic", r)
			l.setState(FaultStop)
			panic(r)
		}
	}()

	if err := l.cycle(ctx, cycle); err != nil {
		l.logger.Errorw("fatal fault, stopping", "cycle", cycle, "error", err)
		l.setState(FaultStop)
		return errors.Wrapf(err, "control cycle %d", cycle)
	}
	return nil
}

func (l *Loop) cycle(ctx context.Context, cycle int) error {
	if l.safety != nil {
		if err := l.safety.Check(ctx); err != nil {
			return err
		}
	}

	l.setState(Scanning)
	record, err := l.scanner.Sweep(ctx)
	if err != nil {
		if !IsRecoverable(err) {
			return err
		}
		l.logger.Warnw("scan timed out, stopping", "cycle", cycle, "error", err)
		l.setState(Actuating)
		if err := l.drive.Execute(ctx, base.Stop); err != nil {
			return err
		}
		l.sleepPace()
		return nil
	}

	l.setState(Deciding)
	d := decision.Evaluate(record.Front, record.Left, record.Right, l.thresholds)
	if d.BothSidesBlocked {
		l.logger.Debugw("both sides blocked", "cycle", cycle, "command", d.Command.String())
	}

	l.setState(Actuating)
	if err := l.drive.Execute(ctx, d.Command); err != nil {
		return err
	}
	l.logger.Infof("cycle %d: %s -> %s", cycle, record, d.Command)
	l.sleepPace()
	return nil
}

func (l *Loop) sleepPace() {
	l.setState(Pacing)
	l.clk.Sleep(l.pace)
}
