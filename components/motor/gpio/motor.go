// Package gpio implements one channel of a two-input H-bridge (a DRV8835 in IN/IN mode) driven by
// plain GPIO pins.
package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

// WheelState is what one wheel's driver channel is doing.
type WheelState int

// Wheel states. The zero value coasts.
const (
	Idle WheelState = iota
	ForwardRotation
	ReverseRotation
	Brake
)

func (s WheelState) String() string {
	switch s {
	case Idle:
		return "idle"
	case ForwardRotation:
		return "forward"
	case ReverseRotation:
		return "reverse"
	case Brake:
		return "brake"
	default:
		return fmt.Sprintf("WheelState(%d)", int(s))
	}
}

// levels returns the IN1/IN2 levels for a state.
func (s WheelState) levels() (bool, bool, error) {
	switch s {
	case Idle:
		return false, false, nil
	case ForwardRotation:
		return true, false, nil
	case ReverseRotation:
		return false, true, nil
	case Brake:
		return true, true, nil
	default:
		return false, false, errors.Errorf("unknown wheel state %d", int(s))
	}
}

// PinConfig names the two bridge inputs of a channel.
type PinConfig struct {
	In1 string `json:"in1"`
	In2 string `json:"in2"`
}

// Validate ensures all parts of the config are valid.
func (conf *PinConfig) Validate(path string) error {
	if conf.In1 == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "in1")
	}
	if conf.In2 == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "in2")
	}
	if conf.In1 == conf.In2 {
		return utils.NewConfigValidationError(path, errors.Errorf("in1 and in2 cannot share pin %q", conf.In1))
	}
	return nil
}

// A Motor is one wheel's bridge channel.
type Motor struct {
	name   string
	in1    board.GPIOPin
	in2    board.GPIOPin
	logger logging.Logger

	mu    sync.Mutex
	state WheelState
}

// NewMotor grabs the channel's pins from b and leaves the wheel coasting.
func NewMotor(ctx context.Context, name string, b board.Board, conf PinConfig, logger logging.Logger) (*Motor, error) {
	in1, err := b.GPIOPinByName(conf.In1)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s: cannot grab gpio %q", name, conf.In1)
	}
	in2, err := b.GPIOPinByName(conf.In2)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s: cannot grab gpio %q", name, conf.In2)
	}
	m := &Motor{name: name, in1: in1, in2: in2, logger: logger}
	if err := m.SetState(ctx, Idle); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the wheel's name.
func (m *Motor) Name() string {
	return m.name
}

// SetState drives the channel's inputs for state. Both inputs are written even if the first write
// fails; the recorded state only changes when both succeed.
func (m *Motor) SetState(ctx context.Context, state WheelState) error {
	high1, high2, err := state.levels()
	if err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err = multierr.Combine(m.in1.Set(ctx, high1), m.in2.Set(ctx, high2))
	if err != nil {
		return errors.Wrapf(err, "motor %s: setting %s", m.name, state)
	}
	if m.state != state {
		m.logger.Debugf("motor %s %s -> %s", m.name, m.state, state)
	}
	m.state = state
	return nil
}

// State returns the last state that was fully applied.
func (m *Motor) State() WheelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
