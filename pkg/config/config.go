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

// Config is an interface for getting a configuration value
type Config interface {
	// Get returns the latest config value
	Get(ctx context.Context) (interface{}, error)

	// Shutdown signals the config to stop all underlying resources
	Shutdown()
}

// Value is a typed config.Config.
type Value[T any] interface {
	// Get returns the latest value, or the last known value on error.
	Get(ctx context.Context) T

	// GetSafe is Get with any error from the underlying config propagated.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

// Bool provides a boolean typed config.Config.
type Bool = Value[bool]

// Duration provides a time.Duration typed config.Config.
type Duration = Value[time.Duration]

// Float64 provides a float64 typed config.Config.
type Float64 = Value[float64]

// Uint64 provides a uint64 typed config.Config.
type Uint64 = Value[uint64]

// String provides a string typed config.Config.
type String = Value[string]
