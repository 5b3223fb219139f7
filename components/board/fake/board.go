// Package fake implements a simulated board. Pins read back what was written to them, except for
// the pins wired to the simulated sonar, which behave like an HC-SR04 on a servo looking at a
// configured set of obstacles.
package fake

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

// Model is the name this backend is registered under.
const Model = "fake"

// Config describes the simulated world.
type Config struct {
	Sonar  *SonarConfig  `mapstructure:"sonar"`
	BME280 *BME280Config `mapstructure:"bme280"`
}

// SonarConfig wires the simulated sonar to pins and describes what it sees.
type SonarConfig struct {
	TriggerPin string `mapstructure:"trigger_pin"`
	EchoPin    string `mapstructure:"echo_pin"`
	ServoPin   string `mapstructure:"servo_pin"`
	// EchoDelayUs is the time between the trigger falling and the echo rising.
	EchoDelayUs int `mapstructure:"echo_delay_us"`
	// DefaultDistanceCm is seen at every heading without an obstacle.
	DefaultDistanceCm float64 `mapstructure:"default_distance_cm"`
	// Obstacles maps a heading in degrees to the distance seen there. A negative distance never
	// echoes.
	Obstacles map[string]float64 `mapstructure:"obstacles"`
}

// BME280Config places a simulated BME280 on a bus.
type BME280Config struct {
	Bus          string  `mapstructure:"bus"`
	Address      int     `mapstructure:"address"`
	TemperatureC float64 `mapstructure:"temperature_c"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Sonar != nil {
		if conf.Sonar.TriggerPin == "" {
			return utils.NewConfigValidationFieldRequiredError(path+".sonar", "trigger_pin")
		}
		if conf.Sonar.EchoPin == "" {
			return utils.NewConfigValidationFieldRequiredError(path+".sonar", "echo_pin")
		}
		for heading := range conf.Sonar.Obstacles {
			if _, err := strconv.Atoi(heading); err != nil {
				return utils.NewConfigValidationError(path+".sonar.obstacles", errors.Errorf("heading %q is not an integer", heading))
			}
		}
	}
	if conf.BME280 != nil && conf.BME280.Bus == "" {
		return utils.NewConfigValidationFieldRequiredError(path+".bme280", "bus")
	}
	return nil
}

func init() {
	board.Register(Model, func(
		ctx context.Context,
		conf board.Config,
		clk clock.Clock,
		logger logging.Logger,
	) (board.Board, error) {
		var attrs Config
		if err := mapstructure.Decode(conf.Attributes, &attrs); err != nil {
			return nil, errors.Wrap(err, "decoding fake board attributes")
		}
		return NewBoard(attrs, clk, logger)
	})
}

// NewBoard returns a new fake board.
func NewBoard(conf Config, clk clock.Clock, logger logging.Logger) (*Board, error) {
	if err := conf.Validate("attributes"); err != nil {
		return nil, err
	}
	b := &Board{
		logger: logger,
		pins:   map[string]*GPIOPin{},
		i2cs:   map[string]*I2C{},
	}

	if conf.Sonar != nil {
		obstacles := make(map[int]float64, len(conf.Sonar.Obstacles))
		for heading, distance := range conf.Sonar.Obstacles {
			deg, err := strconv.Atoi(heading)
			if err != nil {
				return nil, err
			}
			obstacles[deg] = distance
		}
		sonar := &Sonar{
			clk:       clk,
			echoDelay: time.Duration(conf.Sonar.EchoDelayUs) * time.Microsecond,
			defaultCm: conf.Sonar.DefaultDistanceCm,
			obstacles: obstacles,
		}
		if conf.Sonar.ServoPin != "" {
			sonar.servo = b.pin(conf.Sonar.ServoPin)
		}
		b.pin(conf.Sonar.TriggerPin).onSet = sonar.triggerSet
		b.pin(conf.Sonar.EchoPin).onGet = sonar.echoLevel
		b.Sonar = sonar
	}

	if conf.BME280 != nil {
		addr := byte(conf.BME280.Address)
		if addr == 0 {
			addr = 0x76
		}
		b.BME280 = newBME280(conf.BME280.TemperatureC)
		b.i2cs[conf.BME280.Bus] = &I2C{devices: map[byte]*BME280{addr: b.BME280}}
	}
	logger.Debugw("fake board ready", "sonar", b.Sonar != nil, "bme280", b.BME280 != nil)
	return b, nil
}

// A Board provides dummy data from fake parts in order to implement a Board.
type Board struct {
	mu     sync.Mutex
	logger logging.Logger
	pins   map[string]*GPIOPin
	i2cs   map[string]*I2C

	// Sonar is nil unless configured.
	Sonar *Sonar
	// BME280 is nil unless configured.
	BME280 *BME280
}

func (b *Board) pin(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	if !ok {
		p = &GPIOPin{}
		b.pins[name] = p
	}
	return p
}

// GPIOPinByName returns the GPIO pin by the given name, creating it on first use.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.pin(name), nil
}

// Pin returns the concrete fake pin by name so tests can inspect it.
func (b *Board) Pin(name string) *GPIOPin {
	return b.pin(name)
}

// I2CByName returns the i2c bus by the given name.
func (b *Board) I2CByName(name string) (board.I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bus, ok := b.i2cs[name]
	if !ok {
		return nil, &board.ConnectionError{Bus: name, Err: errors.New("no such bus")}
	}
	return bus, nil
}

// Close does nothing.
func (b *Board) Close(ctx context.Context) error {
	return nil
}

// A GPIOPin reads back the same set values.
type GPIOPin struct {
	high    bool
	pwm     float64
	pwmFreq uint
	sets    int

	onSet func(prev, high bool)
	onGet func() bool

	mu sync.Mutex
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool) error {
	gp.mu.Lock()
	prev := gp.high
	gp.high = high
	gp.pwm = 0
	gp.sets++
	onSet := gp.onSet
	gp.mu.Unlock()

	if onSet != nil {
		onSet(prev, high)
	}
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context) (bool, error) {
	gp.mu.Lock()
	onGet := gp.onGet
	high := gp.high
	gp.mu.Unlock()

	if onGet != nil {
		return onGet(), nil
	}
	return high, nil
}

// SetCount returns how many times Set was called.
func (gp *GPIOPin) SetCount() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.sets
}

// PWM gets the pin's given duty cycle.
func (gp *GPIOPin) PWM(ctx context.Context) (float64, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwm, nil
}

// SetPWM sets the pin to the given duty cycle.
func (gp *GPIOPin) SetPWM(ctx context.Context, dutyCyclePct float64) error {
	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle %f out of range [0, 1]", dutyCyclePct)
	}
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.pwm = dutyCyclePct
	return nil
}

// PWMFreq gets the PWM frequency of the pin.
func (gp *GPIOPin) PWMFreq(ctx context.Context) (uint, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwmFreq, nil
}

// SetPWMFreq sets the given pin to the given PWM frequency.
func (gp *GPIOPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.pwmFreq = freqHz
	return nil
}
