// Package ultrasonic implements an HC-SR04 style ultrasonic ranger driven by a trigger pin and
// read back by polling an echo pin.
package ultrasonic

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	rdkutils "go.viam.com/utils"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

const (
	// SpeedOfSound is the speed of sound in air at 20 °C, in meters per second.
	SpeedOfSound = 342.62

	// SamplesPerReading is how many single measurements Measure takes the median of.
	SamplesPerReading = 3

	// DefaultSamplePause separates two samples of one reading so the previous echo dies out.
	DefaultSamplePause = 60 * time.Millisecond

	triggerSettle = 2 * time.Microsecond
	triggerWidth  = 10 * time.Microsecond
)

// Config is used for converting config attributes.
type Config struct {
	TriggerPin    string `json:"trigger_pin"`
	EchoPin       string `json:"echo_pin"`
	MaxTry        int    `json:"max_try,omitempty"`
	SamplePauseMs int    `json:"sample_pause_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if len(conf.TriggerPin) == 0 {
		return rdkutils.NewConfigValidationFieldRequiredError(path, "trigger_pin")
	}
	if len(conf.EchoPin) == 0 {
		return rdkutils.NewConfigValidationFieldRequiredError(path, "echo_pin")
	}
	if conf.MaxTry < 0 {
		return rdkutils.NewConfigValidationError(path, errors.New("max_try cannot be negative"))
	}
	if conf.SamplePauseMs < 0 {
		return rdkutils.NewConfigValidationError(path, errors.New("sample_pause_ms cannot be negative"))
	}
	return nil
}

// Sensor ultrasonic sensor.
type Sensor struct {
	triggerPin  board.GPIOPin
	echo        *PulseTimer
	samplePause time.Duration
	clk         clock.Clock
	logger      logging.Logger
}

// NewSensor looks up the sensor's pins on b and drives the trigger low.
func NewSensor(ctx context.Context, b board.Board, conf Config, clk clock.Clock, logger logging.Logger) (*Sensor, error) {
	trigger, err := b.GPIOPinByName(conf.TriggerPin)
	if err != nil {
		return nil, errors.Wrapf(err, "ultrasonic: cannot grab gpio %q", conf.TriggerPin)
	}
	echo, err := b.GPIOPinByName(conf.EchoPin)
	if err != nil {
		return nil, errors.Wrapf(err, "ultrasonic: cannot grab gpio %q", conf.EchoPin)
	}
	pause := DefaultSamplePause
	if conf.SamplePauseMs > 0 {
		pause = time.Duration(conf.SamplePauseMs) * time.Millisecond
	}
	if err := trigger.Set(ctx, false); err != nil {
		return nil, errors.Wrap(err, "ultrasonic: cannot set trigger pin to low")
	}
	return &Sensor{
		triggerPin:  trigger,
		echo:        NewPulseTimer(echo, clk, conf.MaxTry),
		samplePause: pause,
		clk:         clk,
		logger:      logger,
	}, nil
}

// DistanceFromWidth converts an echo width to a distance in centimeters. The width covers the
// round trip, so it is halved.
func DistanceFromWidth(width time.Duration) float64 {
	return width.Seconds() * SpeedOfSound / 2 * 100
}

func (s *Sensor) trigger(ctx context.Context) error {
	if err := s.triggerPin.Set(ctx, false); err != nil {
		return errors.Wrap(err, "ultrasonic cannot set trigger pin to low")
	}
	s.clk.Sleep(triggerSettle)
	if err := s.triggerPin.Set(ctx, true); err != nil {
		return errors.Wrap(err, "ultrasonic cannot set trigger pin to high")
	}
	s.clk.Sleep(triggerWidth)
	if err := s.triggerPin.Set(ctx, false); err != nil {
		return errors.Wrap(err, "ultrasonic cannot set trigger pin to low")
	}
	return nil
}

// MeasureOnce fires one ping and returns the distance in centimeters to the nearest obstacle. A
// missed edge on either side of the echo fails the whole measurement with ErrTimedOut.
func (s *Sensor) MeasureOnce(ctx context.Context) (float64, error) {
	if err := s.trigger(ctx); err != nil {
		return 0, err
	}
	width, err := s.echo.Width(ctx)
	if err != nil {
		return 0, err
	}
	return DistanceFromWidth(width), nil
}

// Measure takes SamplesPerReading single measurements, pausing between them, and returns their
// median. Any failed sample fails the reading.
func (s *Sensor) Measure(ctx context.Context) (float64, error) {
	samples := make([]float64, 0, SamplesPerReading)
	for i := 0; i < SamplesPerReading; i++ {
		if i > 0 {
			s.clk.Sleep(s.samplePause)
		}
		distance, err := s.MeasureOnce(ctx)
		if err != nil {
			return 0, errors.Wrapf(err, "sample %d of %d", i+1, SamplesPerReading)
		}
		samples = append(samples, distance)
	}
	median, err := Median(samples)
	if err != nil {
		return 0, err
	}
	s.logger.Debugw("ultrasonic reading", "samples_cm", samples, "median_cm", median)
	return median, nil
}

// Median returns the middle value of an odd number of samples.
func Median(samples []float64) (float64, error) {
	if len(samples)%2 == 0 {
		return 0, errors.Errorf("median needs an odd number of samples, have %d", len(samples))
	}
	return stats.Median(samples)
}
