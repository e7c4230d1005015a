// FILE: secureconfig/service_test.go
package secureconfig

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.KeyMaterial == nil {
		opts.KeyMaterial = testKey(t)
	}
	opts.DisableWatch = true
	svc := NewService(opts)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "[server]\nport = 9090\n")

	svc := newTestService(t, Options{Dir: dir})
	require.NoError(t, svc.Register("server.port", 8080))

	assert.Equal(t, StateUninitialized, svc.State())
	assert.False(t, svc.Ready())

	// Before initialization reads are best-effort over defaults
	assert.Equal(t, 8080, svc.Get("server.port", 0))

	require.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, StateReady, svc.State())
	assert.True(t, svc.Ready())
	assert.Equal(t, int64(9090), svc.Get("server.port", 0))
}

func TestServiceInitializeIdempotent(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, StateReady, svc.State())
}

func TestServiceInitializeValidationFailure(t *testing.T) {
	svc := newTestService(t, Options{})
	svc.Require("db.host")

	err := svc.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, svc.State())

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	// Failed is terminal for Initialize
	assert.ErrorIs(t, svc.Initialize(context.Background()), ErrInitFailed)
}

func TestServiceInitializeCancelledContext(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, svc.Initialize(ctx))
	assert.Equal(t, StateFailed, svc.State())
}

func TestServiceNoWatchNotificationsDuringInitialize(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "theme = \"dark\"\n")

	svc := newTestService(t, Options{Dir: dir})
	require.NoError(t, svc.Register("theme", "light"))

	var calls int
	svc.Watch("theme", func(c Change) { calls++ })

	require.NoError(t, svc.Initialize(context.Background()))
	assert.Zero(t, calls, "overlay application during startup is not observable")

	require.NoError(t, svc.Set("theme", "solar"))
	assert.Equal(t, 1, calls, "post-ready writes notify")
}

func TestServiceWatchExactlyOnceThenUnwatch(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("theme", "light"))
	require.NoError(t, svc.Initialize(context.Background()))

	var got []Change
	unwatch := svc.Watch("theme", func(c Change) { got = append(got, c) })

	require.NoError(t, svc.Set("theme", "dark"))
	require.Len(t, got, 1)
	assert.Equal(t, "theme", got[0].Key)
	assert.Equal(t, "light", got[0].Previous)
	assert.Equal(t, "dark", got[0].Next)

	unwatch()
	require.NoError(t, svc.Set("theme", "light"))
	assert.Len(t, got, 1, "no delivery after unwatch")
}

func TestServiceReset(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "[server]\nport = 9090\n")

	svc := newTestService(t, Options{Dir: dir})
	require.NoError(t, svc.Register("server.port", 8080))
	require.NoError(t, svc.Register("secret", "", Sensitive()))
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.Set("server.port", 1234))
	require.NoError(t, svc.Set("secret", "hunter2"))

	require.NoError(t, svc.Reset(context.Background()))
	assert.Equal(t, StateReady, svc.State())

	// Runtime writes are gone, overlays and registrations replayed
	assert.Equal(t, int64(9090), svc.Get("server.port", 0))
	assert.Equal(t, "", svc.Get("secret", ""))
	assert.Empty(t, svc.History("secret"), "journal cleared of pre-reset writes")
	require.Len(t, svc.History("server.port"), 1, "only the replayed overlay application remains")
}

func TestServiceResetRequiresReady(t *testing.T) {
	svc := newTestService(t, Options{})
	assert.ErrorIs(t, svc.Reset(context.Background()), ErrNotReady)
}

func TestServiceRegisterStruct(t *testing.T) {
	type dbConfig struct {
		DSN      string `toml:"dsn,required"`
		Password string `toml:"password,sensitive"`
		MaxConns int    `toml:"max_conns"`
	}
	type appConfig struct {
		Debug    bool     `toml:"debug"`
		Database dbConfig `toml:"database"`
	}

	svc := newTestService(t, Options{})
	require.NoError(t, svc.RegisterStruct("", appConfig{
		Database: dbConfig{DSN: "postgres://localhost/app", MaxConns: 10},
	}))

	assert.Equal(t, false, svc.Get("debug", true))
	assert.Equal(t, "postgres://localhost/app", svc.Get("database.dsn", ""))
	assert.Equal(t, 10, svc.Get("database.max_conns", 0))

	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Set("database.password", "s3cret"))

	exported := svc.ToMap(false)
	db := exported["database"].(map[string]any)
	assert.Equal(t, Redacted, db["password"])
	assert.Equal(t, "s3cret", svc.Get("database.password", ""))
}

func TestServiceRegisterStructRequiredEnforced(t *testing.T) {
	type creds struct {
		Token string `toml:"token,required"`
	}

	svc := newTestService(t, Options{})
	require.NoError(t, svc.RegisterStruct("api", creds{}))

	err := svc.Initialize(context.Background())
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Failures, 1)
	assert.Equal(t, "api.token", verr.Failures[0].Key)
	assert.Equal(t, FailureMissing, verr.Failures[0].Kind)
}

func TestServiceScan(t *testing.T) {
	type serverConfig struct {
		Host    string        `toml:"host"`
		Port    int           `toml:"port"`
		Timeout time.Duration `toml:"timeout"`
	}

	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("server.host", "localhost"))
	require.NoError(t, svc.Register("server.port", 8080))
	require.NoError(t, svc.Register("server.timeout", "30s"))
	require.NoError(t, svc.Initialize(context.Background()))

	var cfg serverConfig
	require.NoError(t, svc.Scan("server", &cfg))
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	assert.Error(t, svc.Scan("server", serverConfig{}), "non-pointer target rejected")
}

func TestServiceScanDecryptsSensitive(t *testing.T) {
	type creds struct {
		Password string `toml:"password"`
	}

	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("db.password", "", Sensitive()))
	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Set("db.password", "hunter2"))

	var c creds
	require.NoError(t, svc.Scan("db", &c))
	assert.Equal(t, "hunter2", c.Password)
}

func TestServiceTypedAccessors(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("name", "app"))
	require.NoError(t, svc.Register("port", 8080))
	require.NoError(t, svc.Register("debug", true))
	require.NoError(t, svc.Register("ratio", 0.75))

	s, err := svc.String("name")
	require.NoError(t, err)
	assert.Equal(t, "app", s)

	i, err := svc.Int64("port")
	require.NoError(t, err)
	assert.Equal(t, int64(8080), i)

	b, err := svc.Bool("debug")
	require.NoError(t, err)
	assert.True(t, b)

	f, err := svc.Float64("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.75, f)

	_, err = svc.String("absent")
	assert.Error(t, err)
}

func TestServiceEnvironmentOverlaySelection(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "region = \"us-east-1\"\n")
	writeOverlay(t, dir, "staging.toml", "region = \"eu-west-1\"\n")

	svc := newTestService(t, Options{Dir: dir, Environment: "staging"})
	require.NoError(t, svc.Register("region", ""))
	require.NoError(t, svc.Initialize(context.Background()))

	assert.Equal(t, "eu-west-1", svc.Get("region", ""))
}

func TestServiceEnvVarLayer(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "[server]\nport = 8080\n")
	t.Setenv("APP_SERVER_PORT", "9999")

	svc := newTestService(t, Options{Dir: dir, EnvPrefix: "APP_"})
	require.NoError(t, svc.Register("server.port", 0))
	require.NoError(t, svc.Initialize(context.Background()))

	assert.Equal(t, int64(9999), svc.Get("server.port", 0))
}

func TestServiceDump(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("server.host", "localhost"))
	require.NoError(t, svc.Register("token", "", Sensitive()))
	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Set("token", "abc123"))

	var buf bytes.Buffer
	require.NoError(t, svc.Dump(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "localhost")
	assert.Contains(t, out, Redacted)
	assert.NotContains(t, out, "abc123")

	buf.Reset()
	require.NoError(t, svc.Dump(&buf, true))
	assert.Contains(t, buf.String(), "abc123")
}

func TestServiceHistory(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("counter", 0))
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.Set("counter", 1))
	require.NoError(t, svc.Set("counter", 2))

	records := svc.History("counter")
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Next)
	assert.Equal(t, 1, records[1].Previous)
	assert.Equal(t, 2, records[1].Next)
}

func TestServiceInitializeRejectsInvalidOverlayValue(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "port = 99999\nmarker = true\n")

	svc := newTestService(t, Options{Dir: dir})
	require.NoError(t, svc.Register("port", 8080, WithValidator(func(v Value) bool {
		n, ok := v.AsNumber()
		return ok && n > 0 && n < 65536
	})))
	require.NoError(t, svc.Initialize(context.Background()))

	// The rejected value never lands; the rest of the overlay still applies
	assert.Equal(t, 8080, svc.Get("port", 0))
	assert.Equal(t, true, svc.Get("marker", false))
	assert.Empty(t, svc.History("port"), "a rejected overlay value is never journaled")
}

func TestServiceSetRejectedBeforeCommit(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Register("port", 8080, WithValidator(func(v Value) bool {
		n, ok := v.AsNumber()
		return ok && n > 0 && n < 65536
	})))
	require.NoError(t, svc.Initialize(context.Background()))

	err := svc.Set("port", 70000)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 8080, svc.Get("port", 0))
	assert.Empty(t, svc.History("port"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "validating", StateValidating.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
