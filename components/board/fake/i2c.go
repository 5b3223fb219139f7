package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/sensor/bme280"
)

// I2C is a fake bus holding simulated devices by address.
type I2C struct {
	mu      sync.Mutex
	devices map[byte]*BME280
}

// OpenHandle returns a handle to the device at addr, or a connection error if nothing is there.
func (bus *I2C) OpenHandle(addr byte) (board.I2CHandle, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	dev, ok := bus.devices[addr]
	if !ok {
		return nil, &board.ConnectionError{Address: addr, Err: errors.New("no device")}
	}
	return &i2cHandle{dev: dev}, nil
}

// calibration of a sample chip from the datasheet.
var fakeCalibration = bme280.Calibration{T1: 27504, T2: 26435, T3: -1000}

// BME280 is a simulated BME280 register file reporting a settable temperature.
type BME280 struct {
	mu        sync.Mutex
	raw       int32
	registers map[byte]byte
}

func newBME280(celsius float64) *BME280 {
	dev := &BME280{registers: map[byte]byte{}}
	dev.SetTemperature(celsius)
	return dev
}

// SetTemperature changes the temperature the chip reports.
func (dev *BME280) SetTemperature(celsius float64) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.raw = bme280.RawTemperature(celsius, fakeCalibration)
}

// Register returns the last value written to a register.
func (dev *BME280) Register(register byte) byte {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.registers[register]
}

func (dev *BME280) readBlock(register byte, n uint8) ([]byte, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	switch {
	case register == bme280.CalibT1LSBReg && n <= 6:
		cal := fakeCalibration
		block := []byte{
			byte(cal.T1), byte(cal.T1 >> 8),
			byte(uint16(cal.T2)), byte(uint16(cal.T2) >> 8),
			byte(uint16(cal.T3)), byte(uint16(cal.T3) >> 8),
		}
		return block[:n], nil
	case register == bme280.TemperatureMSBReg && n <= 3:
		block := []byte{byte(dev.raw >> 12), byte(dev.raw >> 4), byte(dev.raw<<4) & 0xF0}
		return block[:n], nil
	}
	return nil, errors.Errorf("fake bme280 cannot read %d bytes at %#x", n, register)
}

type i2cHandle struct {
	dev *BME280
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	if len(tx) < 2 {
		return nil
	}
	return h.WriteByteData(ctx, tx[0], tx[1])
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	return nil, errors.New("fake bme280 only supports register reads")
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	if register == bme280.ChipIDReg {
		return bme280.ChipID, nil
	}
	return h.dev.Register(register), nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	h.dev.registers[register] = data
	return nil
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	return h.dev.readBlock(register, numBytes)
}

func (h *i2cHandle) Close() error {
	return nil
}
