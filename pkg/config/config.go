package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoValue indicates no value was set for the config
	ErrNoValue = errors.New("config: no value set")

	// ErrShutdown indicates the use of a Config after calling Shutdown
	ErrShutdown = errors.New("config: shutdown")
)

// Config is a source of untyped configuration values, such as the process
// environment or an in memory value set by a test.
type Config interface {
	// Get returns the latest config value
	Get(ctx context.Context) (interface{}, error)

	// Shutdown signals the config to stop all underlying resources
	Shutdown()
}

// Value is a typed view over a Config.
type Value[T any] interface {
	// Get returns the latest value, or the last known good value when the
	// source fails.
	Get(ctx context.Context) T

	// GetSafe is Get with the source's error.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

type (
	Bool     = Value[bool]
	Duration = Value[time.Duration]
	Uint64   = Value[uint64]
	String   = Value[string]
)
