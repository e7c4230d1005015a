// Package secureconfig provides a layered, thread-safe configuration
// service for Go applications with transparent encryption of sensitive
// values, per-key validation, bounded change history, and live reload of
// overlay files.
//
// Features:
//   - Layered overlay sources (default, environment-named, local) with
//     later-source-wins merging, plus an environment-variable layer on top
//   - TOML, YAML, and JSON overlay files with automatic format detection
//   - Sensitive keys encrypted at rest in memory (AES-256-GCM) and
//     redacted from exports
//   - Per-key validators and transformers on the write path
//   - Aggregated required-key validation so operators see every
//     misconfiguration in one report
//   - Bounded change journal and synchronous change observers
//   - Live reload of overlay files via fsnotify, funneled through the
//     same mutation path as programmatic writes
//
// Quick Start:
//
//	svc, err := secureconfig.NewBuilder().
//	    WithDir("./conf").
//	    WithEnvironment("staging").
//	    WithEnvPrefix("MYAPP_").
//	    Build(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	host, _ := svc.String("server.host")
//	dbPass := svc.Get("database.password", "")
//
// Overlay Precedence (highest to lowest):
//  1. Environment variables (MYAPP_SERVER_PORT=9090)
//  2. local overlay file (local.toml)
//  3. environment-named overlay file (staging.toml)
//  4. default overlay file (default.toml)
//  5. Registered default values
//
// Thread Safety:
// All operations are thread-safe. Every mutation runs the
// transform-validate-store-journal-notify sequence as one critical
// section; observer callbacks are delivered synchronously after the
// commit, outside the store lock, so a callback may re-enter the
// service. Within one writing goroutine callbacks arrive in commit
// order; when multiple goroutines write the same key concurrently the
// store and journal order is serialized by the critical section, but the
// corresponding callbacks may interleave.
package secureconfig
