// Package periph implements a board on top of periph.io, driving the host's GPIO lines and I2C
// buses directly. Pins are named as periph names them, e.g. "GPIO17", and buses as i2creg opens
// them, e.g. "1" or "/dev/i2c-1".
package periph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

// Model is the name this backend is registered under.
const Model = "periph"

// Config holds the backend specific attributes.
type Config struct {
	// I2CBuses maps a logical bus name to the name i2creg opens.
	I2CBuses map[string]string `mapstructure:"i2c_buses"`
	// Aliases maps a logical pin name to the periph pin name.
	Aliases map[string]string `mapstructure:"aliases"`
}

func init() {
	board.Register(Model, func(
		ctx context.Context,
		conf board.Config,
		_ clock.Clock,
		logger logging.Logger,
	) (board.Board, error) {
		var attrs Config
		if err := mapstructure.Decode(conf.Attributes, &attrs); err != nil {
			return nil, errors.Wrap(err, "decoding periph attributes")
		}
		return NewBoard(attrs, logger)
	})
}

type pwmSetting struct {
	dutyCycle gpio.Duty
	frequency physic.Frequency
}

type periphBoard struct {
	mu     sync.RWMutex
	conf   Config
	logger logging.Logger

	pwms  map[string]pwmSetting
	buses map[string]*i2cBus

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewBoard initializes the periph host drivers and returns a board over them.
func NewBoard(conf Config, logger logging.Logger) (board.Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing periph host drivers")
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &periphBoard{
		conf:       conf,
		logger:     logger,
		pwms:       map[string]pwmSetting{},
		buses:      map[string]*i2cBus{},
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}, nil
}

func (b *periphBoard) GPIOPinByName(name string) (board.GPIOPin, error) {
	pinName := name
	if alias, ok := b.conf.Aliases[name]; ok {
		pinName = alias
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, errors.Errorf("no gpio pin found for %q", pinName)
	}
	return &gpioPin{b: b, pin: pin, pinName: pinName}, nil
}

func (b *periphBoard) I2CByName(name string) (board.I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bus, ok := b.buses[name]; ok {
		return bus, nil
	}
	busName := name
	if mapped, ok := b.conf.I2CBuses[name]; ok {
		busName = mapped
	}
	closer, err := i2creg.Open(busName)
	if err != nil {
		return nil, &board.ConnectionError{Bus: name, Err: err}
	}
	bus := &i2cBus{name: name, bus: closer}
	b.buses[name] = bus
	return bus, nil
}

func (b *periphBoard) Close(ctx context.Context) error {
	b.mu.Lock()
	b.cancelFunc()
	b.mu.Unlock()
	b.activeBackgroundWorkers.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for name, bus := range b.buses {
		err = multierr.Combine(err, bus.bus.Close())
		delete(b.buses, name)
	}
	return err
}

type gpioPin struct {
	b       *periphBoard
	pin     gpio.PinIO
	pinName string

	mu      sync.Mutex
	isInput bool
}

func (gp *gpioPin) Set(ctx context.Context, high bool) error {
	gp.b.mu.Lock()
	delete(gp.b.pwms, gp.pinName)
	gp.b.mu.Unlock()

	return gp.set(high)
}

func (gp *gpioPin) set(high bool) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	gp.mu.Lock()
	gp.isInput = false
	gp.mu.Unlock()
	return gp.pin.Out(l)
}

func (gp *gpioPin) Get(ctx context.Context) (bool, error) {
	gp.mu.Lock()
	if !gp.isInput {
		if err := gp.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			gp.mu.Unlock()
			return false, errors.Wrapf(err, "configuring %s as input", gp.pinName)
		}
		gp.isInput = true
	}
	gp.mu.Unlock()
	return gp.pin.Read() == gpio.High, nil
}

func (gp *gpioPin) PWM(ctx context.Context) (float64, error) {
	gp.b.mu.RLock()
	defer gp.b.mu.RUnlock()

	pwm, ok := gp.b.pwms[gp.pinName]
	if !ok {
		return 0, fmt.Errorf("missing pin %s", gp.pinName)
	}
	return float64(pwm.dutyCycle) / float64(gpio.DutyMax), nil
}

func (gp *gpioPin) SetPWM(ctx context.Context, dutyCyclePct float64) error {
	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle %f out of range [0, 1]", dutyCyclePct)
	}
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()

	last, alreadySet := gp.b.pwms[gp.pinName]
	last.dutyCycle = gpio.Duty(dutyCyclePct * float64(gpio.DutyMax))
	gp.b.pwms[gp.pinName] = last
	return gp.applyPWM(last, alreadySet)
}

func (gp *gpioPin) PWMFreq(ctx context.Context) (uint, error) {
	gp.b.mu.RLock()
	defer gp.b.mu.RUnlock()

	return uint(gp.b.pwms[gp.pinName].frequency / physic.Hertz), nil
}

func (gp *gpioPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()

	last, alreadySet := gp.b.pwms[gp.pinName]
	last.frequency = physic.Hertz * physic.Frequency(freqHz)
	gp.b.pwms[gp.pinName] = last
	return gp.applyPWM(last, alreadySet)
}

// applyPWM prefers the pin's hardware PWM and falls back to a software loop. Expects the board
// lock to be held.
func (gp *gpioPin) applyPWM(setting pwmSetting, alreadySet bool) error {
	if setting.frequency == 0 {
		// Nothing to drive until a frequency is known.
		return nil
	}
	if err := gp.pin.PWM(setting.dutyCycle, setting.frequency); err == nil {
		return nil
	}
	if !alreadySet {
		gp.b.startSoftwarePWMLoop(gp)
	}
	return nil
}

// expects to already have lock acquired.
func (b *periphBoard) startSoftwarePWMLoop(gp *gpioPin) {
	b.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		b.softwarePWMLoop(b.cancelCtx, gp)
	}, b.activeBackgroundWorkers.Done)
}

func (b *periphBoard) softwarePWMLoop(ctx context.Context, gp *gpioPin) {
	for b.softwarePWMCycle(ctx, gp) {
	}
}

// softwarePWMCycle drives one period of gp's PWM setting and reports whether the loop should go
// on. A zero duty cycle holds the line low for the whole period.
func (b *periphBoard) softwarePWMCycle(ctx context.Context, gp *gpioPin) bool {
	b.mu.RLock()
	setting, ok := b.pwms[gp.pinName]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("pwm setting deleted; stopping")
		return false
	}
	if setting.frequency == 0 {
		return goutils.SelectContextOrWait(ctx, 10*time.Millisecond)
	}

	period := setting.frequency.Period()
	onPeriod := time.Duration(float64(setting.dutyCycle) / float64(gpio.DutyMax) * float64(period))
	if onPeriod <= 0 {
		if err := gp.pin.Out(gpio.Low); err != nil {
			b.logger.Errorw("error setting pin", "pin_name", gp.pinName, "error", err)
		}
		return goutils.SelectContextOrWait(ctx, period)
	}

	if err := gp.pin.Out(gpio.High); err != nil {
		b.logger.Errorw("error setting pin", "pin_name", gp.pinName, "error", err)
		return goutils.SelectContextOrWait(ctx, period)
	}
	if !goutils.SelectContextOrWait(ctx, onPeriod) {
		return false
	}
	if err := gp.pin.Out(gpio.Low); err != nil {
		b.logger.Errorw("error setting pin", "pin_name", gp.pinName, "error", err)
	}
	return goutils.SelectContextOrWait(ctx, period-onPeriod)
}

type i2cBus struct {
	mu   sync.Mutex
	name string
	bus  i2c.BusCloser
}

func (bus *i2cBus) OpenHandle(addr byte) (board.I2CHandle, error) {
	bus.mu.Lock()
	return &i2cHandle{bus: bus, dev: &i2c.Dev{Bus: bus.bus, Addr: uint16(addr)}}, nil
}

type i2cHandle struct {
	bus    *i2cBus
	dev    *i2c.Dev
	closed bool
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	return h.dev.Tx(tx, nil)
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	rx := make([]byte, count)
	if err := h.dev.Tx(nil, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	rx := make([]byte, 1)
	if err := h.dev.Tx([]byte{register}, rx); err != nil {
		return 0, err
	}
	return rx[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.dev.Tx([]byte{register, data}, nil)
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	rx := make([]byte, numBytes)
	if err := h.dev.Tx([]byte{register}, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

func (h *i2cHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.bus.mu.Unlock()
	return nil
}
