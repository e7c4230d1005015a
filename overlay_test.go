// FILE: secureconfig/overlay_test.go
package secureconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeOverlay(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOverlayLaterSourceWins(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "a = 1\n")
	writeOverlay(t, dir, "staging.toml", "a = 2\nb = 3\n")
	writeOverlay(t, dir, "local.toml", "b = 4\n")

	loader := NewOverlayLoader(dir, "staging", "", zap.NewNop())
	flat := loader.Load(nil)

	assert.Equal(t, int64(2), flat["a"], "environment overlay overrides default per key")
	assert.Equal(t, int64(4), flat["b"], "local overlay wins over environment overlay")
}

func TestOverlaySourceOrder(t *testing.T) {
	dir := t.TempDir()
	local := writeOverlay(t, dir, "local.toml", "x = 1\n")
	def := writeOverlay(t, dir, "default.yaml", "x: 2\n")
	env := writeOverlay(t, dir, "prod.json", `{"x": 3}`)

	loader := NewOverlayLoader(dir, "prod", "", zap.NewNop())
	assert.Equal(t, []string{def, env, local}, loader.Sources())
}

func TestOverlayFlattensNestedTables(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", `
[database.pool]
max = 20

[server]
host = "0.0.0.0"
`)

	loader := NewOverlayLoader(dir, "", "", zap.NewNop())
	flat := loader.Load(nil)

	assert.Equal(t, int64(20), flat["database.pool.max"])
	assert.Equal(t, "0.0.0.0", flat["server.host"])
}

func TestOverlayArraysAreOpaqueLeaves(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.yaml", "hosts:\n  - a\n  - b\n")

	loader := NewOverlayLoader(dir, "", "", zap.NewNop())
	flat := loader.Load(nil)

	require.Contains(t, flat, "hosts")
	assert.Equal(t, []any{"a", "b"}, flat["hosts"])
	assert.NotContains(t, flat, "hosts.0")
}

func TestOverlayUnparseableSourceIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "== this is not toml ==")
	writeOverlay(t, dir, "local.toml", "ok = true\n")

	loader := NewOverlayLoader(dir, "", "", zap.NewNop())
	flat := loader.Load(nil)

	assert.Equal(t, true, flat["ok"], "later sources still apply after a bad source")
	assert.NotContains(t, flat, "==")
}

func TestOverlayMissingDirectory(t *testing.T) {
	loader := NewOverlayLoader(filepath.Join(t.TempDir(), "absent"), "", "", zap.NewNop())
	assert.Empty(t, loader.Sources())
	assert.Empty(t, loader.Load(nil))
}

func TestOverlayEnvLayerWinsOverFiles(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "default.toml", "[server]\nport = 8080\n")
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	loader := NewOverlayLoader(dir, "", "MYAPP_", zap.NewNop())
	flat := loader.Load([]string{"server.port"})

	assert.Equal(t, int64(9090), flat["server.port"])
}

func TestOverlayEnvLayerOnlyRegisteredPaths(t *testing.T) {
	t.Setenv("MYAPP_UNREGISTERED_KEY", "x")

	loader := NewOverlayLoader("", "", "MYAPP_", zap.NewNop())
	flat := loader.Load([]string{"server.port"})

	assert.NotContains(t, flat, "unregistered.key")
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "MYAPP_SERVER_PORT", envTransform("MYAPP_", "server.port"))
	assert.Equal(t, "DEBUG", envTransform("", "debug"))
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"42", int64(42)},
		{"3.14", 3.14},
		{`"quoted"`, "quoted"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseScalar(tt.in), "input %q", tt.in)
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "toml", detectFileFormat("conf/default.toml"))
	assert.Equal(t, "yaml", detectFileFormat("conf/default.yml"))
	assert.Equal(t, "json", detectFileFormat("conf/default.json"))
	assert.Equal(t, "", detectFileFormat("conf/default.conf"))

	assert.Equal(t, "json", detectFormatFromContent([]byte(`{"a": 1}`)))
	assert.Equal(t, "toml", detectFormatFromContent([]byte("a = 1\n")))
}
