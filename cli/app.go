// Package cli contains the rover's operator command line.
package cli

import (
	"io"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"

	"github.com/sonarbot/rover/logging"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
	flagAngle  = "angle"
	flagFor    = "for"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return newApp(out, errOut, clock.New(), nil)
}

// newApp builds the app over clk. A nil logger is chosen from the debug flag.
func newApp(out, errOut io.Writer, clk clock.Clock, logger logging.Logger) *cli.App {
	r := &runner{clk: clk, logger: logger}
	app := &cli.App{
		Name:            "rover",
		Usage:           "operate a sonar rover by hand",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load rover configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if r.logger != nil {
				return nil
			}
			if c.Bool(flagDebug) {
				r.logger = logging.NewDebugLogger("cli")
			} else {
				r.logger = logging.NewLogger("cli")
				r.logger.SetLevel(logging.WARN)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "measure",
				Usage: "take one filtered ultrasonic reading",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagAngle,
						Usage: "point the servo at `DEGREES` first",
					},
				},
				Action: r.MeasureAction,
			},
			{
				Name:      "servo",
				Usage:     "move the ranger servo",
				ArgsUsage: "<degrees>",
				Action:    r.ServoAction,
			},
			{
				Name:      "drive",
				Usage:     "run one motion command for a while, then brake",
				ArgsUsage: "<forward|backward|turn_left|turn_right|stop|idle>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  flagFor,
						Usage: "how long to keep the command applied",
						Value: defaultDriveDuration,
					},
				},
				Action: r.DriveAction,
			},
			{
				Name:   "scan",
				Usage:  "sweep once and print the decision without driving",
				Action: r.ScanAction,
			},
			{
				Name:            "config",
				Usage:           "work with rover config files",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "schema",
						Usage:  "print the JSON schema of the config file",
						Action: SchemaAction,
					},
					{
						Name:      "check",
						Usage:     "validate a config file and print it with defaults filled in",
						ArgsUsage: "<file>",
						Action:    CheckConfigAction,
					},
				},
			},
		},
	}
	return app
}
