package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	_ "github.com/sonarbot/rover/components/board/register"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/testutils"
)

const fakeConfig = `{
	"board": {"model": "fake", "attributes": {
		"sonar": {"trigger_pin": "trig", "echo_pin": "echo", "servo_pin": "12",
			"echo_delay_us": 200, "default_distance_cm": 150, "obstacles": {"0": 30, "60": 10, "-60": 12}}
	}},
	"ultrasonic": {"trigger_pin": "trig", "echo_pin": "echo"},
	"servo": {"pin": "12"},
	"drive": {"left": {"in1": "11", "in2": "13"}, "right": {"in1": "15", "in2": "16"}}
}`

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rover.json")
	test.That(t, os.WriteFile(path, []byte(raw), 0o600), test.ShouldBeNil)
	return path
}

func runApp(t *testing.T, clk *testutils.SteppingClock, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp(&out, &errOut, clk, logging.NewTestLogger(t))
	err := app.RunContext(context.Background(), append([]string{"rover"}, args...))
	return out.String(), err
}

func TestMeasure(t *testing.T) {
	path := writeConfig(t, fakeConfig)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	out, err := runApp(t, clk, "--config", path, "measure")
	test.That(t, err, test.ShouldBeNil)
	// the servo was never moved, so the sonar looks straight ahead
	test.That(t, out, test.ShouldEqual, "distance: 30.0cm\n")

	out, err = runApp(t, clk, "--config", path, "measure", "--angle", "60")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "distance: 10.0cm\n")

	_, err = runApp(t, clk, "measure")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pass --config")
}

func TestServo(t *testing.T) {
	path := writeConfig(t, fakeConfig)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	out, err := runApp(t, clk, "--config", path, "servo", "45")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "Info: servo at 45°\n")

	_, err = runApp(t, clk, "--config", path, "servo", "95")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")

	_, err = runApp(t, clk, "--config", path, "servo", "left")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `angle "left" is not an integer`)
}

func TestDrive(t *testing.T) {
	path := writeConfig(t, fakeConfig)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	out, err := runApp(t, clk, "--config", path, "drive", "--for", "3s", "turn_left")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "Info: turn_left for 3s\n")
	test.That(t, clk.SleepCount(3*time.Second), test.ShouldEqual, 1)

	_, err = runApp(t, clk, "--config", path, "drive", "sideways")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown motion command")

	_, err = runApp(t, clk, "--config", path, "drive")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestScan(t *testing.T) {
	path := writeConfig(t, fakeConfig)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	out, err := runApp(t, clk, "--config", path, "scan")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "left=10.0cm front=30.0cm right=12.0cm\ndecision: turn_right (both sides blocked)\n")
}

func TestConfigCommands(t *testing.T) {
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	out, err := runApp(t, clk, "config", "schema")
	test.That(t, err, test.ShouldBeNil)
	var schema map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &schema), test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "sample_pause_ms")

	out, err = runApp(t, clk, "config", "check", writeConfig(t, fakeConfig))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"pace_ms": 200`)
	test.That(t, out, test.ShouldContainSubstring, `"max_try": 10000`)

	_, err = runApp(t, clk, "config", "check", writeConfig(t, `{"board": {"model": "fake"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "trigger_pin")
}
