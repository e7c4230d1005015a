// FILE: secureconfig/builder.go
package secureconfig

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Builder provides a fluent interface for constructing and initializing a
// Service.
type Builder struct {
	opts     Options
	defaults any
	prefix   string
	required []requiredRule
	err      error
}

type requiredRule struct {
	key string
	fns []ValidatorFunc
}

// NewBuilder creates a new service builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithDir sets the directory holding the overlay files.
func (b *Builder) WithDir(dir string) *Builder {
	b.opts.Dir = dir
	return b
}

// WithEnvironment sets the active environment name, selecting the
// environment-named overlay and production key handling.
func (b *Builder) WithEnvironment(env string) *Builder {
	b.opts.Environment = env
	return b
}

// WithEnvPrefix sets the environment variable prefix.
func (b *Builder) WithEnvPrefix(prefix string) *Builder {
	b.opts.EnvPrefix = prefix
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.opts.Logger = logger
	return b
}

// WithKeyFile sets the key material file location.
func (b *Builder) WithKeyFile(path string) *Builder {
	b.opts.KeyFile = path
	return b
}

// WithKeyMaterial injects key material directly, bypassing file I/O.
// The key must be exactly KeySize bytes; a wrong-sized key fails Build.
func (b *Builder) WithKeyMaterial(key []byte) *Builder {
	if len(key) != KeySize {
		b.err = fmt.Errorf("%w: got %d", ErrKeySize, len(key))
		return b
	}
	b.opts.KeyMaterial = key
	return b
}

// WithJournalCapacity bounds the change journal.
func (b *Builder) WithJournalCapacity(capacity int) *Builder {
	b.opts.JournalCapacity = capacity
	return b
}

// WithWatchDebounce sets the reload coalescence window.
func (b *Builder) WithWatchDebounce(d time.Duration) *Builder {
	b.opts.WatchDebounce = d
	return b
}

// WithoutWatch disables live overlay reloading.
func (b *Builder) WithoutWatch() *Builder {
	b.opts.DisableWatch = true
	return b
}

// WithDefaults sets the struct containing default values, registered with
// the configured prefix before initialization.
func (b *Builder) WithDefaults(defaults any) *Builder {
	b.defaults = defaults
	return b
}

// WithPrefix sets the path prefix for struct registration.
func (b *Builder) WithPrefix(prefix string) *Builder {
	b.prefix = prefix
	return b
}

// WithRequired registers a mandatory key, optionally with custom checks,
// enforced during the Validating phase.
func (b *Builder) WithRequired(key string, fns ...ValidatorFunc) *Builder {
	b.required = append(b.required, requiredRule{key: key, fns: fns})
	return b
}

// Build constructs the Service and runs Initialize. A validation or load
// failure leaves the returned service in the Failed state and is returned
// as the error.
func (b *Builder) Build(ctx context.Context) (*Service, error) {
	if b.err != nil {
		return nil, b.err
	}

	svc := NewService(b.opts)

	if b.defaults != nil {
		if err := svc.RegisterStruct(b.prefix, b.defaults); err != nil {
			return nil, fmt.Errorf("failed to register defaults: %w", err)
		}
	}

	for _, rule := range b.required {
		svc.Require(rule.key, rule.fns...)
	}

	if err := svc.Initialize(ctx); err != nil {
		return svc, err
	}
	return svc, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild(ctx context.Context) *Service {
	svc, err := b.Build(ctx)
	if err != nil {
		panic(fmt.Sprintf("configuration build failed: %v", err))
	}
	return svc
}
