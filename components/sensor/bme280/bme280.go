// Package bme280 reads the temperature of a Bosch BME280 over I2C and turns it into a safety
// cutoff for the control loop.
package bme280

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/logging"
)

const (
	// DefaultAddress is the address of a BME280 with SDO tied low.
	DefaultAddress = 0x76
	// DefaultMaxTemperatureC is the cutoff used when none is configured.
	DefaultMaxTemperatureC = 60.0

	// ChipID is what the chip id register of every BME280 reads.
	ChipID byte = 0x60

	// Register map.
	CalibT1LSBReg     byte = 0x88
	ChipIDReg         byte = 0xD0
	CtrlMeasReg       byte = 0xF4
	TemperatureMSBReg byte = 0xFA

	calibTempLen = 6
	// osrs_t x1, pressure skipped, normal mode.
	ctrlMeasTempNormal byte = 0b001_000_11
	maxRawTemperature       = 1<<20 - 1
)

// Config describes where the sensor sits and when it trips.
type Config struct {
	I2CBus          string  `json:"i2c_bus"`
	I2CAddr         int     `json:"i2c_addr,omitempty"`
	MaxTemperatureC float64 `json:"max_temperature_c,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.I2CBus == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	if conf.I2CAddr < 0 || conf.I2CAddr > 0x7F {
		return utils.NewConfigValidationError(path, errors.Errorf("i2c_addr %#x is not a 7 bit address", conf.I2CAddr))
	}
	return nil
}

// Calibration holds the factory temperature trimming parameters dig_T1..dig_T3.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16
}

// CompensateTemperature converts a raw 20 bit temperature reading to degrees Celsius using the
// floating point formula from the datasheet.
func CompensateTemperature(adc int32, cal Calibration) float64 {
	raw := float64(adc)
	var1 := (raw/16384 - float64(cal.T1)/1024) * float64(cal.T2)
	var2 := math.Pow(raw/131072-float64(cal.T1)/8192, 2) * float64(cal.T3)
	return (var1 + var2) / 5120
}

// RawTemperature returns the raw reading that compensates closest to celsius.
func RawTemperature(celsius float64, cal Calibration) int32 {
	lo, hi := int32(0), int32(maxRawTemperature)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if CompensateTemperature(mid, cal) < celsius {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Sensor is a BME280 on an I2C bus.
type Sensor struct {
	bus     board.I2C
	busName string
	addr    byte
	cal     Calibration
	logger  logging.Logger
}

// NewSensor probes the chip, puts it in normal mode and reads its calibration. If nothing
// answers, or something other than a BME280 answers, the error is a *board.ConnectionError.
func NewSensor(ctx context.Context, b board.Board, conf Config, logger logging.Logger) (*Sensor, error) {
	addr := byte(conf.I2CAddr)
	if addr == 0 {
		addr = DefaultAddress
	}
	bus, err := b.I2CByName(conf.I2CBus)
	if err != nil {
		var connErr *board.ConnectionError
		if errors.As(err, &connErr) {
			connErr.Address = addr
			return nil, connErr
		}
		return nil, &board.ConnectionError{Bus: conf.I2CBus, Address: addr, Err: err}
	}
	s := &Sensor{bus: bus, busName: conf.I2CBus, addr: addr, logger: logger}
	if err := s.setup(ctx); err != nil {
		return nil, err
	}
	logger.Debugw("bme280 ready", "bus", conf.I2CBus, "addr", fmt.Sprintf("%#x", addr), "calibration", s.cal)
	return s, nil
}

func (s *Sensor) connectionError(err error) error {
	return &board.ConnectionError{Bus: s.busName, Address: s.addr, Err: err}
}

func (s *Sensor) setup(ctx context.Context) (err error) {
	handle, err := s.bus.OpenHandle(s.addr)
	if err != nil {
		return s.connectionError(err)
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()

	id, err := handle.ReadByteData(ctx, ChipIDReg)
	if err != nil {
		return s.connectionError(err)
	}
	if id != ChipID {
		return s.connectionError(errors.Errorf("unexpected chip id %#x", id))
	}
	if err := handle.WriteByteData(ctx, CtrlMeasReg, ctrlMeasTempNormal); err != nil {
		return errors.Wrap(err, "bme280: cannot set measurement mode")
	}
	calib, err := handle.ReadBlockData(ctx, CalibT1LSBReg, calibTempLen)
	if err != nil {
		return errors.Wrap(err, "bme280: cannot read calibration")
	}
	if len(calib) != calibTempLen {
		return errors.Errorf("bme280: calibration read returned %d bytes, want %d", len(calib), calibTempLen)
	}
	s.cal = Calibration{
		T1: uint16(calib[0]) | uint16(calib[1])<<8,
		T2: int16(uint16(calib[2]) | uint16(calib[3])<<8),
		T3: int16(uint16(calib[4]) | uint16(calib[5])<<8),
	}
	return nil
}

// Temperature returns the current temperature in degrees Celsius.
func (s *Sensor) Temperature(ctx context.Context) (_ float64, err error) {
	handle, err := s.bus.OpenHandle(s.addr)
	if err != nil {
		return 0, errors.Wrap(err, "can't open bme280 i2c")
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()
	buffer, err := handle.ReadBlockData(ctx, TemperatureMSBReg, 3)
	if err != nil {
		return 0, errors.Wrap(err, "bme280: cannot read temperature")
	}
	if len(buffer) != 3 {
		return 0, errors.New("i2c read did not get 3 bytes")
	}
	adc := int32(buffer[0])<<12 | int32(buffer[1])<<4 | int32(buffer[2])>>4
	return CompensateTemperature(adc, s.cal), nil
}
