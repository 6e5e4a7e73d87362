package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config"
)

// ErrUnsuportedConversion indicates the wrapper does not implement conversion from the source type
var ErrUnsuportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// converter turns a raw source value into T. Sources like the environment
// yield []byte, while in memory sources hold typed values.
type converter[T any] func(raw interface{}) (T, error)

type typedConfig[T any] struct {
	override     config.Config
	defaultValue T
	convert      converter[T]

	stateMu   sync.RWMutex
	lastValue T
}

func newTypedConfig[T any](override config.Config, defaultValue T, convert converter[T]) *typedConfig[T] {
	return &typedConfig[T]{
		override:     override,
		defaultValue: defaultValue,
		convert:      convert,
		lastValue:    defaultValue,
	}
}

// GetSafe gets a config value and propagates any errors that arise. A best-effort
// attempt is made to return the last known value
func (c *typedConfig[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := c.override.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if err == config.ErrNoValue {
		c.setLastValue(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	newValue, err := c.convert(raw)
	if err != nil {
		return lastValue, err
	}
	c.setLastValue(newValue)
	return newValue, nil
}

// Get is a wrapper for GetSafe that ignores the returned error
func (c *typedConfig[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown signals the config to stop all underlying resources
func (c *typedConfig[T]) Shutdown() {
	c.override.Shutdown()
}

func (c *typedConfig[T]) setLastValue(v T) {
	c.stateMu.Lock()
	c.lastValue = v
	c.stateMu.Unlock()
}

// NewBoolConfig returns a bool config parsed with strconv.ParseBool
func NewBoolConfig(override config.Config, defaultValue bool) config.Bool {
	return newTypedConfig(override, defaultValue, func(raw interface{}) (bool, error) {
		switch v := raw.(type) {
		case []byte:
			return strconv.ParseBool(string(v))
		case bool:
			return v, nil
		}
		return false, ErrUnsuportedConversion
	})
}

// NewUint64Config returns a base 10 uint64 config
func NewUint64Config(override config.Config, defaultValue uint64) config.Uint64 {
	return newTypedConfig(override, defaultValue, func(raw interface{}) (uint64, error) {
		switch v := raw.(type) {
		case []byte:
			return strconv.ParseUint(string(v), 10, 64)
		case uint64:
			return v, nil
		case uint:
			return uint64(v), nil
		case int:
			if v < 0 {
				return 0, errors.Errorf("negative value %d", v)
			}
			return uint64(v), nil
		}
		return 0, ErrUnsuportedConversion
	})
}

// NewDurationConfig returns a duration config in time.ParseDuration format
func NewDurationConfig(override config.Config, defaultValue time.Duration) config.Duration {
	return newTypedConfig(override, defaultValue, func(raw interface{}) (time.Duration, error) {
		switch v := raw.(type) {
		case []byte:
			return time.ParseDuration(string(v))
		case time.Duration:
			return v, nil
		}
		return 0, ErrUnsuportedConversion
	})
}

// NewStringConfig returns a string config
func NewStringConfig(override config.Config, defaultValue string) config.String {
	return newTypedConfig(override, defaultValue, func(raw interface{}) (string, error) {
		switch v := raw.(type) {
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		}
		return "", ErrUnsuportedConversion
	})
}
