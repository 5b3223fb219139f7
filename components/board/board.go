// Package board defines the pin and bus capabilities the rover's components are built on, and the
// registry of hardware backends that provide them.
package board

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/logging"
)

// A Board represents a physical general purpose board that contains GPIO pins and I2C buses.
type Board interface {
	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)

	// I2CByName returns an I2C bus by name.
	I2CByName(name string) (I2C, error)

	// Close releases every pin and bus held by the board.
	Close(ctx context.Context) error
}

// A Config selects a backend by model and carries its backend specific attributes.
type Config struct {
	Model      string                 `json:"model"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	if _, ok := lookup(conf.Model); !ok {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown board model %q, known models: %v", conf.Model, Models()))
	}
	return nil
}

// A Constructor builds a backend from its config. The clock is shared with every component
// that times pin activity so simulated backends can observe the same time.
type Constructor func(ctx context.Context, conf Config, clk clock.Clock, logger logging.Logger) (Board, error)

var (
	registryMu   sync.RWMutex
	constructors = map[string]Constructor{}
)

// Register makes a backend available under the given model name. It panics if the model is
// already registered.
func Register(model string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := constructors[model]; ok {
		panic(errors.Errorf("board model %q already registered", model))
	}
	constructors[model] = constructor
}

func lookup(model string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := constructors[model]
	return constructor, ok
}

// Models returns the sorted names of every registered backend.
func Models() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(constructors))
	for model := range constructors {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// New constructs the backend named by conf.Model.
func New(ctx context.Context, conf Config, clk clock.Clock, logger logging.Logger) (Board, error) {
	constructor, ok := lookup(conf.Model)
	if !ok {
		return nil, errors.Errorf("unknown board model %q, known models: %v", conf.Model, Models())
	}
	b, err := constructor(ctx, conf, clk, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "constructing %q board", conf.Model)
	}
	return b, nil
}
