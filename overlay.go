// FILE: secureconfig/overlay.go
package secureconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// overlayExtensions lists the file extensions tried for each overlay name,
// in order.
var overlayExtensions = []string{".toml", ".yaml", ".yml", ".json"}

// OverlayLoader reads the layered override files for a configuration
// directory and merges them into a single flat key set. Source order is
// default, then the active environment's overlay, then local; later
// sources win on key collision. A source that cannot be read or parsed is
// logged and skipped, never fatal.
type OverlayLoader struct {
	dir         string
	environment string
	envPrefix   string
	logger      *zap.Logger
}

// NewOverlayLoader creates a loader for the given directory and active
// environment name.
func NewOverlayLoader(dir, environment, envPrefix string, logger *zap.Logger) *OverlayLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlayLoader{
		dir:         dir,
		environment: environment,
		envPrefix:   envPrefix,
		logger:      logger,
	}
}

// Sources returns the overlay file paths that exist, in priority order
// (lowest first). Discovery follows the fixed naming convention: default,
// the active environment name, then local.
func (l *OverlayLoader) Sources() []string {
	if l.dir == "" {
		return nil
	}

	names := []string{"default"}
	if l.environment != "" && l.environment != "default" && l.environment != "local" {
		names = append(names, l.environment)
	}
	names = append(names, "local")

	var paths []string
	for _, name := range names {
		for _, ext := range overlayExtensions {
			path := filepath.Join(l.dir, name+ext)
			if stat, err := os.Stat(path); err == nil && !stat.IsDir() {
				paths = append(paths, path)
				break // first matching extension wins for a name
			}
		}
	}
	return paths
}

// Load merges every discovered source into one flat dotted-key map,
// later sources winning per key, then applies the environment-variable
// layer for the supplied registered paths on top.
func (l *OverlayLoader) Load(registered []string) map[string]any {
	merged := make(map[string]any)

	for _, path := range l.Sources() {
		flat, err := l.readSource(path)
		if err != nil {
			l.logger.Warn("skipping unreadable overlay source",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		for key, value := range flat {
			merged[key] = value
		}
	}

	for key, value := range l.loadEnv(registered) {
		merged[key] = value
	}

	return merged
}

// readSource reads and parses one overlay file into a flat map.
func (l *OverlayLoader) readSource(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}

	format := detectFileFormat(path)
	if format == "" {
		format = detectFormatFromContent(data)
	}

	nested := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("%w: parse TOML '%s': %w", ErrSourceUnreadable, path, err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber() // Preserve number precision
		if err := decoder.Decode(&nested); err != nil {
			return nil, fmt.Errorf("%w: parse JSON '%s': %w", ErrSourceUnreadable, path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("%w: parse YAML '%s': %w", ErrSourceUnreadable, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format for '%s'", ErrSourceUnreadable, path)
	}

	return flattenMap(nested, ""), nil
}

// loadEnv reads the process environment layer for the registered paths.
// Variables are matched by the default transform: dots to underscores,
// uppercased, with the configured prefix.
func (l *OverlayLoader) loadEnv(registered []string) map[string]any {
	found := make(map[string]any)
	for _, path := range registered {
		envVar := envTransform(l.envPrefix, path)
		if value, exists := os.LookupEnv(envVar); exists {
			found[path] = parseScalar(value)
		}
	}
	return found
}

// envTransform converts a dotted path to its environment variable name.
func envTransform(prefix, path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	return prefix + env
}

// parseScalar attempts to parse a string into bool, int64, or float64,
// falling back to the string itself.
func parseScalar(s string) any {
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}

	// Remove quotes if present
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}

// detectFileFormat determines format from file extension.
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing.
func detectFormatFromContent(data []byte) string {
	// Try JSON first (strict format)
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}

	// Try TOML before YAML: YAML accepts nearly anything
	var tomlTest any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}

	var yamlTest any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}

	return ""
}
