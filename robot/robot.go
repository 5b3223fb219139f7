// Package robot assembles a rover from its config: the board backend, the sweeping ranger, the
// drive base, the optional safety monitor and the control loop over them.
package robot

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sonarbot/rover/components/base/differential"
	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/sensor/bme280"
	"github.com/sonarbot/rover/components/sensor/ultrasonic"
	servo "github.com/sonarbot/rover/components/servo/gpio"
	"github.com/sonarbot/rover/config"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/robot/autopilot"
	"github.com/sonarbot/rover/services/sweep"
)

// A Rover holds every part built from a config. Parts are exclusively owned by the Rover.
type Rover struct {
	Board   board.Board
	Servo   *servo.Servo
	Ranger  *ultrasonic.Sensor
	Sweeper *sweep.Sequencer
	Base    *differential.Base
	// Thermometer and Cutoff are nil when no safety sensor is configured.
	Thermometer *bme280.Sensor
	Cutoff      *bme280.Cutoff
	Loop        *autopilot.Loop

	logger logging.Logger
}

// New builds a rover. On failure everything built so far is closed again.
func New(ctx context.Context, conf *config.Config, clk clock.Clock, logger logging.Logger) (_ *Rover, err error) {
	b, err := board.New(ctx, conf.Board, clk, logger.Sublogger("board"))
	if err != nil {
		return nil, err
	}
	r := &Rover{Board: b, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.Close(ctx))
		}
	}()

	servoPin, err := b.GPIOPinByName(conf.Servo.Pin)
	if err != nil {
		return nil, errors.Wrapf(err, "servo: cannot grab gpio %q", conf.Servo.Pin)
	}
	if r.Servo, err = servo.NewServo(ctx, servoPin, conf.Servo, clk, logger.Sublogger("servo")); err != nil {
		return nil, err
	}
	if r.Ranger, err = ultrasonic.NewSensor(ctx, b, conf.Ultrasonic, clk, logger.Sublogger("ultrasonic")); err != nil {
		return nil, err
	}
	if r.Sweeper, err = sweep.NewSequencer(r.Servo, r.Ranger, conf.Scan.Angles, logger.Sublogger("sweep")); err != nil {
		return nil, err
	}
	if r.Base, err = differential.NewBase(ctx, b, conf.Drive, logger.Sublogger("base")); err != nil {
		return nil, err
	}

	var safety autopilot.SafetyMonitor
	if bmeConf := conf.Safety.BME280; bmeConf != nil {
		if r.Thermometer, err = bme280.NewSensor(ctx, b, *bmeConf, logger.Sublogger("bme280")); err != nil {
			return nil, err
		}
		r.Cutoff = bme280.NewCutoff(r.Thermometer, bmeConf.MaxTemperatureC, logger.Sublogger("safety"))
		safety = r.Cutoff
	}

	r.Loop = autopilot.NewLoop(r.Sweeper, r.Base, safety, conf.Loop, conf.Decision, clk, logger.Sublogger("autopilot"))
	return r, nil
}

// Close brakes the wheels, releases the servo and closes the board.
func (r *Rover) Close(ctx context.Context) error {
	var err error
	if r.Base != nil {
		err = multierr.Combine(err, r.Base.Stop(context.WithoutCancel(ctx)))
	}
	if r.Servo != nil {
		err = multierr.Combine(err, r.Servo.Stop(context.WithoutCancel(ctx)))
	}
	if r.Board != nil {
		err = multierr.Combine(err, r.Board.Close(ctx))
	}
	return err
}
