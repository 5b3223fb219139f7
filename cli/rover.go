package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/sonarbot/rover/components/base"
	"github.com/sonarbot/rover/config"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/robot"
	"github.com/sonarbot/rover/services/decision"
)

const defaultDriveDuration = time.Second

type runner struct {
	clk    clock.Clock
	logger logging.Logger
	// conf is the config the running command was built from.
	conf *config.Config
}

// withRover builds the rover named by the --config flag, runs fn and closes the rover again.
func (r *runner) withRover(c *cli.Context, fn func(ctx context.Context, rover *robot.Rover) error) (err error) {
	path := c.String(flagConfig)
	if path == "" {
		return errors.New("no rover config given, pass --config")
	}
	conf, err := config.Read(path)
	if err != nil {
		return err
	}
	r.conf = conf
	ctx := c.Context
	rover, err := robot.New(ctx, conf, r.clk, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, rover.Close(ctx))
	}()
	return fn(ctx, rover)
}

// MeasureAction prints one filtered distance.
func (r *runner) MeasureAction(c *cli.Context) error {
	return r.withRover(c, func(ctx context.Context, rover *robot.Rover) error {
		if c.IsSet(flagAngle) {
			if err := rover.Servo.SetAngle(ctx, c.Int(flagAngle)); err != nil {
				return err
			}
		}
		distance, err := rover.Ranger.Measure(ctx)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "distance: %.1fcm", distance)
		return nil
	})
}

// ServoAction moves the servo to the angle given as the first argument.
func (r *runner) ServoAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("servo takes exactly one angle in degrees")
	}
	deg, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return errors.Wrapf(err, "angle %q is not an integer", c.Args().First())
	}
	return r.withRover(c, func(ctx context.Context, rover *robot.Rover) error {
		if err := rover.Servo.SetAngle(ctx, deg); err != nil {
			return err
		}
		infof(c.App.Writer, "servo at %d°", deg)
		return nil
	})
}

// DriveAction applies a motion command for the --for duration. The base is braked however the
// command ends.
func (r *runner) DriveAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("drive takes exactly one motion command")
	}
	cmd, err := base.ParseMotionCommand(c.Args().First())
	if err != nil {
		return err
	}
	return r.withRover(c, func(ctx context.Context, rover *robot.Rover) (err error) {
		guard := rover.Base.Guard()
		defer func() {
			err = multierr.Combine(err, guard.Release(ctx))
		}()
		if err := rover.Base.Execute(ctx, cmd); err != nil {
			return err
		}
		infof(c.App.Writer, "%s for %s", cmd, c.Duration(flagFor))
		r.clk.Sleep(c.Duration(flagFor))
		return nil
	})
}

// ScanAction sweeps once and prints what the autopilot would do.
func (r *runner) ScanAction(c *cli.Context) error {
	return r.withRover(c, func(ctx context.Context, rover *robot.Rover) error {
		record, err := rover.Sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		d := decision.Evaluate(record.Front, record.Left, record.Right, r.conf.Decision)
		printf(c.App.Writer, "%s", record)
		if d.BothSidesBlocked {
			printf(c.App.Writer, "decision: %s (both sides blocked)", d.Command)
		} else {
			printf(c.App.Writer, "decision: %s", d.Command)
		}
		return nil
	})
}

// SchemaAction prints the config JSON schema.
func SchemaAction(c *cli.Context) error {
	return printJSON(c.App.Writer, config.Schema())
}

// CheckConfigAction validates the config file given as the first argument.
func CheckConfigAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("config check takes exactly one file")
	}
	conf, err := config.Read(c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, conf)
}
