package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config"
)

var errDeveloperInduced = errors.New("in memory config: developer induced error")

// Config is a mutable in memory config.Config for tests. A nil value means
// no value is set.
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	err      error
	shutdown bool
}

func NewConfig(value interface{}) *Config {
	return &Config{value: value}
}

// Get implements Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.err != nil:
		return nil, c.err
	case c.value == nil:
		return nil, config.ErrNoValue
	}
	return c.value, nil
}

// Shutdown implements Config.Shutdown
func (c *Config) Shutdown() {
	c.update(func() { c.shutdown = true })
}

func (c *Config) SetValue(value interface{}) {
	c.update(func() { c.value = value })
}

func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// InduceErrors makes subsequent Get calls fail until StopInducingErrors.
func (c *Config) InduceErrors() {
	c.update(func() { c.err = errDeveloperInduced })
}

func (c *Config) StopInducingErrors() {
	c.update(func() { c.err = nil })
}

func (c *Config) update(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}
