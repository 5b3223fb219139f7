// Package differential implements a two-wheel differential drive base: each command is a pair of
// per-wheel states on two H-bridge channels.
package differential

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sonarbot/rover/components/base"
	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/motor/gpio"
	"github.com/sonarbot/rover/logging"
)

// Config is how you configure a differential base.
type Config struct {
	Left  gpio.PinConfig `json:"left"`
	Right gpio.PinConfig `json:"right"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if err := conf.Left.Validate(path + ".left"); err != nil {
		return err
	}
	return conf.Right.Validate(path + ".right")
}

// WheelStates returns the left and right wheel states for cmd.
func WheelStates(cmd base.MotionCommand) (gpio.WheelState, gpio.WheelState, error) {
	switch cmd {
	case base.Forward:
		return gpio.ForwardRotation, gpio.ForwardRotation, nil
	case base.Backward:
		return gpio.ReverseRotation, gpio.ReverseRotation, nil
	case base.TurnRight:
		return gpio.ForwardRotation, gpio.ReverseRotation, nil
	case base.TurnLeft:
		return gpio.ReverseRotation, gpio.ForwardRotation, nil
	case base.Stop:
		return gpio.Brake, gpio.Brake, nil
	case base.Idle:
		return gpio.Idle, gpio.Idle, nil
	default:
		return gpio.Idle, gpio.Idle, errors.Errorf("unsupported motion command %s", cmd)
	}
}

// Base owns both wheels. It is the only writer of their states.
type Base struct {
	left   *gpio.Motor
	right  *gpio.Motor
	logger logging.Logger

	mu   sync.Mutex
	last base.MotionCommand
}

var _ base.Base = (*Base)(nil)

// NewBase sets up both wheel channels on b. The wheels start coasting.
func NewBase(ctx context.Context, b board.Board, conf Config, logger logging.Logger) (*Base, error) {
	left, err := gpio.NewMotor(ctx, "left", b, conf.Left, logger)
	if err != nil {
		return nil, err
	}
	right, err := gpio.NewMotor(ctx, "right", b, conf.Right, logger)
	if err != nil {
		return nil, err
	}
	return &Base{left: left, right: right, logger: logger, last: base.Idle}, nil
}

// Execute drives both wheels for cmd. If a wheel cannot be set the base is braked before the
// error is returned.
func (b *Base) Execute(ctx context.Context, cmd base.MotionCommand) error {
	leftState, rightState, err := WheelStates(cmd)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.setWheels(ctx, leftState, rightState); err != nil {
		if cmd == base.Stop {
			return errors.Wrap(err, "stopping base")
		}
		return multierr.Combine(errors.Wrapf(err, "executing %s", cmd), b.setWheels(ctx, gpio.Brake, gpio.Brake))
	}
	b.last = cmd
	b.logger.Debugw("base command", "command", cmd.String(), "left", leftState.String(), "right", rightState.String())
	return nil
}

// Stop brakes both wheels. The second wheel is attempted even if the first fails.
func (b *Base) Stop(ctx context.Context) error {
	return b.Execute(ctx, base.Stop)
}

func (b *Base) setWheels(ctx context.Context, leftState, rightState gpio.WheelState) error {
	return multierr.Combine(b.left.SetState(ctx, leftState), b.right.SetState(ctx, rightState))
}

// WheelStates returns the current left and right wheel states.
func (b *Base) WheelStates() (gpio.WheelState, gpio.WheelState) {
	return b.left.State(), b.right.State()
}

// LastCommand returns the last command that was fully applied.
func (b *Base) LastCommand() base.MotionCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Guard returns a StopGuard that brakes this base when released.
func (b *Base) Guard() *StopGuard {
	return NewStopGuard(b, b.logger)
}
