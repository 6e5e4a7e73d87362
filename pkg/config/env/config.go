package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/wrapper"
)

// conf reads a variable once at construction. Values are surrounding
// whitespace trimmed, and an empty variable counts as unset.
type conf struct {
	key string
	val string
}

func NewConfig(key string) config.Config {
	key = strings.ToUpper(key)
	return &conf{
		key: key,
		val: strings.TrimSpace(os.Getenv(key)),
	}
}

// Get implements Config.Get
func (c *conf) Get(_ context.Context) (interface{}, error) {
	if len(c.val) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(c.val), nil
}

// Shutdown implements Config.Shutdown
func (c *conf) Shutdown() {
}

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}
