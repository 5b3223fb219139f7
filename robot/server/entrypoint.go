// Package server implements the entry point for running the rover daemon.
package server

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/config"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/robot"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=rover config file"`
	Debug      bool   `flag:"debug,usage=log at debug level"`
}

// RunServer is an entry point to running the rover that can be called by main in a code
// sample. It returns nil when ctx is cancelled and the error of the fault otherwise.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	conf, err := config.Read(argsParsed.ConfigFile)
	if err != nil {
		return err
	}
	if argsParsed.Debug || conf.Log.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	closeLogs, err := ConfigureLogging(logger, conf.Log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLogs())
	}()

	logger.Info("new session")
	rover, err := robot.New(ctx, conf, clock.New(), logger)
	if err != nil {
		logger.Errorw("cannot start rover", "error", err)
		return err
	}
	defer func() {
		err = multierr.Combine(err, rover.Close(ctx))
	}()

	if err := rover.Loop.Run(ctx); err != nil {
		return errors.Wrap(err, "autopilot stopped on a fault")
	}
	return nil
}

// ConfigureLogging adds the file and webhook appenders named in conf to logger. The returned
// function flushes and closes them.
func ConfigureLogging(logger logging.Logger, conf config.LogConfig) (func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Combine(err, c())
		}
		return err
	}

	if conf.File != "" {
		fileAppender := logging.NewFileAppender(conf.File, logging.FileRotation{
			MaxSizeMB:  conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
			MaxAgeDays: conf.MaxAgeDays,
		})
		logger.AddAppender(fileAppender)
		closers = append(closers, fileAppender.Close)
	}

	if conf.WebhookURL != "" {
		level := logging.WARN
		if conf.WebhookLevel != "" {
			var err error
			if level, err = logging.LevelFromString(conf.WebhookLevel); err != nil {
				return nil, multierr.Combine(err, closeAll())
			}
		}
		webhook, err := logging.NewWebhookAppender(logging.WebhookConfig{URL: conf.WebhookURL, MinLevel: level})
		if err != nil {
			return nil, multierr.Combine(err, closeAll())
		}
		logger.AddAppender(webhook)
		closers = append(closers, func() error {
			webhook.Close()
			return nil
		})
	}
	return closeAll, nil
}
