// Package gpio implements a pin based hobby servo that sweeps through [-90, 90] degrees.
package gpio

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

const (
	// MinDeg is the furthest the servo turns to the rover's right.
	MinDeg = -90
	// MaxDeg is the furthest the servo turns to the rover's left.
	MaxDeg = 90

	minWidthMs   = 0.5 // pulse width at MinDeg
	widthRangeMs = 1.9 // pulse width added between MinDeg and MaxDeg

	// DefaultFrequencyHz is the standard hobby servo pulse rate.
	DefaultFrequencyHz uint = 50
	// DefaultSettle is how long a move is given to complete.
	DefaultSettle = 500 * time.Millisecond

	maxFrequencyHz uint = 450
)

// Config describes how the servo is wired and timed.
type Config struct {
	// Pin a GPIO pin with pwm capabilities
	Pin string `json:"pin"`
	// FrequencyHz the PWM frequency the pin is driven at, defaults to 50
	FrequencyHz uint `json:"frequency_hz,omitempty"`
	// SettleMs how long SetAngle blocks after commanding a move, defaults to 500
	SettleMs int `json:"settle_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Pin == "" {
		return viamutils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	if conf.FrequencyHz > maxFrequencyHz {
		return viamutils.NewConfigValidationError(path,
			errors.Errorf("frequency_hz should not be above %dHz, have %d", maxFrequencyHz, conf.FrequencyHz))
	}
	if conf.SettleMs < 0 {
		return viamutils.NewConfigValidationError(path, errors.New("settle_ms cannot be negative"))
	}
	return nil
}

// DutyMs returns the pulse width in milliseconds commanding the given angle.
func DutyMs(deg int) float64 {
	return float64(deg-MinDeg)/float64(MaxDeg-MinDeg)*widthRangeMs + minWidthMs
}

// DutyRatio returns the fraction of a PWM period at frequencyHz that commands the given angle.
func DutyRatio(deg int, frequencyHz uint) float64 {
	periodMs := 1000 / float64(frequencyHz)
	return DutyMs(deg) / periodMs
}

// DutyU16 returns DutyRatio scaled to a 16 bit PWM register.
func DutyU16(deg int, frequencyHz uint) uint16 {
	return uint16(DutyRatio(deg, frequencyHz) * math.MaxUint16)
}

// AngleForDutyRatio is the inverse of DutyRatio, rounded to the nearest degree and clamped to
// [MinDeg, MaxDeg].
func AngleForDutyRatio(ratio float64, frequencyHz uint) int {
	widthMs := ratio * 1000 / float64(frequencyHz)
	deg := (widthMs-minWidthMs)/widthRangeMs*float64(MaxDeg-MinDeg) + MinDeg
	deg = math.Max(MinDeg, math.Min(MaxDeg, deg))
	return int(math.Round(deg))
}

// A Servo positions itself open loop: it never verifies the angle it arrives at.
type Servo struct {
	pin       board.GPIOPin
	frequency uint
	settle    time.Duration
	clk       clock.Clock
	logger    logging.Logger

	current     int
	hasPosition bool
}

// NewServo configures the pin's PWM frequency and returns a servo driving it. The servo is not
// moved until the first SetAngle.
func NewServo(ctx context.Context, pin board.GPIOPin, conf Config, clk clock.Clock, logger logging.Logger) (*Servo, error) {
	frequency := conf.FrequencyHz
	if frequency == 0 {
		frequency = DefaultFrequencyHz
	}
	settle := DefaultSettle
	if conf.SettleMs > 0 {
		settle = time.Duration(conf.SettleMs) * time.Millisecond
	}
	if err := pin.SetPWMFreq(ctx, frequency); err != nil {
		return nil, errors.Wrap(err, "error setting servo pin frequency")
	}
	return &Servo{
		pin:       pin,
		frequency: frequency,
		settle:    settle,
		clk:       clk,
		logger:    logger,
	}, nil
}

// SetAngle moves the servo to deg, then blocks for the settle duration so a measurement taken
// afterwards sees the new heading.
func (s *Servo) SetAngle(ctx context.Context, deg int) error {
	if deg < MinDeg || deg > MaxDeg {
		return errors.Errorf("angle %d out of range [%d, %d]", deg, MinDeg, MaxDeg)
	}
	pct := DutyRatio(deg, s.frequency)
	if err := s.pin.SetPWM(ctx, pct); err != nil {
		return errors.Wrap(err, "couldn't move the servo")
	}
	s.current = deg
	s.hasPosition = true
	s.logger.Debugw("servo moved", "angle_deg", deg, "duty_ms", DutyMs(deg))
	s.clk.Sleep(s.settle)
	return nil
}

// Position returns the last commanded angle, and false if the servo was never moved.
func (s *Servo) Position() (int, bool) {
	return s.current, s.hasPosition
}

// Stop releases the servo by removing its pulse.
func (s *Servo) Stop(ctx context.Context) error {
	if err := s.pin.SetPWM(ctx, 0.0); err != nil {
		return errors.Wrap(err, "couldn't stop servo")
	}
	return nil
}
