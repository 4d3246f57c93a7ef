package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsing is returned when environment variables cannot be parsed into
// the configuration struct.
var ErrParsing = errors.New("failed to parse environment configuration")

var (
	envOnce sync.Once
	cache   sync.Map // reflect.Type -> any (T value)
	loadMu  sync.Mutex
)

// Load fills cfg from the environment. The first call loads .env from the
// working directory if it exists. Each type is parsed once and later calls
// receive the cached value.
func Load[T any](cfg *T) error {
	envOnce.Do(func() {
		// A missing .env file is expected outside local development.
		_ = godotenv.Load()
	})

	typ := reflect.TypeFor[T]()
	if cached, ok := cache.Load(typ); ok {
		*cfg = cached.(T)
		return nil
	}

	loadMu.Lock()
	defer loadMu.Unlock()

	if cached, ok := cache.Load(typ); ok {
		*cfg = cached.(T)
		return nil
	}

	var fresh T
	if err := env.Parse(&fresh); err != nil {
		return errors.Join(ErrParsing, fmt.Errorf("%s: %w", typ, err))
	}

	cache.Store(typ, fresh)
	*cfg = fresh
	return nil
}

// MustLoad is like Load but panics on failure. Intended for startup code.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
