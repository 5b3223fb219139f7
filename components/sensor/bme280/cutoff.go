package bme280

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sonarbot/rover/logging"
)

// A TemperatureReader reports a temperature in degrees Celsius.
type TemperatureReader interface {
	Temperature(ctx context.Context) (float64, error)
}

// SafetyCutoffError means a reading exceeded its safety bound and the rover must stop.
type SafetyCutoffError struct {
	TemperatureC float64
	LimitC       float64
}

func (e *SafetyCutoffError) Error() string {
	return fmt.Sprintf("safety cutoff: temperature %.1f°C exceeds limit %.1f°C", e.TemperatureC, e.LimitC)
}

// Cutoff trips when the reader reports a temperature above a limit.
type Cutoff struct {
	reader TemperatureReader
	limitC float64
	logger logging.Logger
}

// NewCutoff returns a Cutoff over reader. A non-positive limit uses DefaultMaxTemperatureC.
func NewCutoff(reader TemperatureReader, limitC float64, logger logging.Logger) *Cutoff {
	if limitC <= 0 {
		limitC = DefaultMaxTemperatureC
	}
	return &Cutoff{reader: reader, limitC: limitC, logger: logger}
}

// Check returns a *SafetyCutoffError when the current temperature is above the limit. Failing to
// read the temperature is also an error, since an unreadable sensor cannot vouch for safety.
func (c *Cutoff) Check(ctx context.Context) error {
	temp, err := c.reader.Temperature(ctx)
	if err != nil {
		return errors.Wrap(err, "reading safety temperature")
	}
	c.logger.Debugw("safety temperature", "temperature_c", temp, "limit_c", c.limitC)
	if temp > c.limitC {
		return &SafetyCutoffError{TemperatureC: temp, LimitC: c.limitC}
	}
	return nil
}
