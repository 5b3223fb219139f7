// Package config defines the rover's configuration file and how it is read, defaulted and
// validated.
package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/sonarbot/rover/components/base/differential"
	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/sensor/bme280"
	"github.com/sonarbot/rover/components/sensor/ultrasonic"
	servo "github.com/sonarbot/rover/components/servo/gpio"
	"github.com/sonarbot/rover/robot/autopilot"
	"github.com/sonarbot/rover/services/decision"
	"github.com/sonarbot/rover/services/sweep"
)

// A Config describes the whole rover.
type Config struct {
	Board      board.Config        `json:"board"`
	Ultrasonic ultrasonic.Config   `json:"ultrasonic"`
	Servo      servo.Config        `json:"servo"`
	Drive      differential.Config `json:"drive"`
	Scan       ScanConfig          `json:"scan,omitempty"`
	Decision   decision.Thresholds `json:"decision,omitempty"`
	Loop       autopilot.Config    `json:"loop,omitempty"`
	Safety     SafetyConfig        `json:"safety,omitempty"`
	Log        LogConfig           `json:"log,omitempty"`
}

// ScanConfig is the sweep order.
type ScanConfig struct {
	Angles []int `json:"angles,omitempty"`
}

// SafetyConfig lists the optional safety monitors.
type SafetyConfig struct {
	BME280 *bme280.Config `json:"bme280,omitempty"`
}

// LogConfig configures where log lines go besides stdout.
type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
	// WebhookLevel is the least severe level posted to the webhook, defaults to warn.
	WebhookLevel string `json:"webhook_level,omitempty"`
	Debug        bool   `json:"debug,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate() error {
	if err := conf.Board.Validate("board"); err != nil {
		return err
	}
	if err := conf.Ultrasonic.Validate("ultrasonic"); err != nil {
		return err
	}
	if err := conf.Servo.Validate("servo"); err != nil {
		return err
	}
	if err := conf.Drive.Validate("drive"); err != nil {
		return err
	}
	if conf.Scan.Angles != nil {
		if err := sweep.ValidateAngles("scan.angles", conf.Scan.Angles); err != nil {
			return err
		}
	}
	if err := conf.Decision.Validate("decision"); err != nil {
		return err
	}
	if err := conf.Loop.Validate("loop"); err != nil {
		return err
	}
	if conf.Safety.BME280 != nil {
		if err := conf.Safety.BME280.Validate("safety.bme280"); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDefaults fills every unset tunable with its default.
func (conf *Config) ApplyDefaults() {
	if conf.Ultrasonic.MaxTry == 0 {
		conf.Ultrasonic.MaxTry = ultrasonic.DefaultMaxPolls
	}
	if conf.Ultrasonic.SamplePauseMs == 0 {
		conf.Ultrasonic.SamplePauseMs = int(ultrasonic.DefaultSamplePause.Milliseconds())
	}
	if conf.Servo.FrequencyHz == 0 {
		conf.Servo.FrequencyHz = servo.DefaultFrequencyHz
	}
	if conf.Servo.SettleMs == 0 {
		conf.Servo.SettleMs = int(servo.DefaultSettle.Milliseconds())
	}
	if len(conf.Scan.Angles) == 0 {
		conf.Scan.Angles = append([]int(nil), sweep.DefaultAngles...)
	}
	if conf.Decision.FrontClearCm == 0 {
		conf.Decision.FrontClearCm = decision.DefaultFrontClearCm
	}
	if conf.Decision.SideBlockedCm == 0 {
		conf.Decision.SideBlockedCm = decision.DefaultSideBlockedCm
	}
	if conf.Loop.PaceMs == 0 {
		conf.Loop.PaceMs = int(autopilot.DefaultPace.Milliseconds())
	}
	if bme := conf.Safety.BME280; bme != nil {
		if bme.I2CAddr == 0 {
			bme.I2CAddr = bme280.DefaultAddress
		}
		if bme.MaxTemperatureC == 0 {
			bme.MaxTemperatureC = bme280.DefaultMaxTemperatureC
		}
	}
	if conf.Log.WebhookURL != "" && conf.Log.WebhookLevel == "" {
		conf.Log.WebhookLevel = "warn"
	}
}

// Read reads a config from the given file, expanding ${VAR} references from the environment.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader decodes, validates and defaults a config. originalPath is only used in errors.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	var conf Config
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.ApplyDefaults()
	return &conf, nil
}

// Schema returns the JSON schema of the config file. Every part's config type is called Config,
// so definitions are inlined rather than referenced by type name.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(&Config{})
}
