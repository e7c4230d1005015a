// FILE: secureconfig/service.go
package secureconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State tracks the service lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateValidating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProductionEnvironment designates the environment name in which generated
// key material is never persisted to disk.
const ProductionEnvironment = "production"

// defaultKeyFileName is the key material file created next to the overlays
// outside production when no explicit key file is configured.
const defaultKeyFileName = ".secureconfig.key"

// Options configures a Service.
type Options struct {
	// Dir holds the overlay files (default, <environment>, local).
	Dir string

	// Environment selects the environment-named overlay and designates
	// production behavior when equal to ProductionEnvironment.
	Environment string

	// EnvPrefix is prepended to environment variable names,
	// e.g. "MYAPP_" maps "server.port" to MYAPP_SERVER_PORT.
	EnvPrefix string

	// KeyFile overrides the key material location. Empty means
	// Dir/.secureconfig.key when Dir is set.
	KeyFile string

	// KeyMaterial injects key material directly, bypassing file I/O.
	// Must be exactly KeySize bytes when set.
	KeyMaterial []byte

	// JournalCapacity bounds the change journal (default 100).
	JournalCapacity int

	// WatchDebounce coalesces rapid overlay edits (default 250ms).
	WatchDebounce time.Duration

	// DisableWatch turns off live overlay reloading.
	DisableWatch bool

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// registration remembers one Register call so Reset can replay it after
// clearing the store.
type registration struct {
	path string
	def  any
	opts []EntryOption
}

// Service is the composition root: it owns the store, cipher, overlay
// loader, validation pipeline, journal, observer bus, and file watcher,
// and drives them through the Uninitialized-Loading-Validating-Ready
// lifecycle. Construct one explicitly and hand it to collaborators; there
// is no package-level singleton.
type Service struct {
	opts   Options
	logger *zap.Logger

	state atomic.Int32

	store    *Store
	overlays *OverlayLoader
	pipeline *Pipeline
	journal  *Journal
	bus      *Bus

	watchMu sync.Mutex
	watcher *fileWatcher

	regMu sync.Mutex
	regs  []registration

	reloadMu    sync.Mutex
	overlayKeys map[string]bool
}

// NewService constructs a service. Initialize must complete before
// collaborators may rely on overlay-applied values; reads before that are
// best-effort over registered defaults.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.KeyFile == "" && opts.Dir != "" {
		opts.KeyFile = filepath.Join(opts.Dir, defaultKeyFileName)
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = DefaultDebounce
	}

	journal := NewJournal(opts.JournalCapacity)
	bus := NewBus()

	return &Service{
		opts:        opts,
		logger:      logger,
		store:       NewStore(journal, bus),
		overlays:    NewOverlayLoader(opts.Dir, opts.Environment, opts.EnvPrefix, logger),
		pipeline:    NewPipeline(),
		journal:     journal,
		bus:         bus,
		overlayKeys: make(map[string]bool),
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Ready reports whether initialization has completed successfully.
func (s *Service) Ready() bool {
	return s.State() == StateReady
}

// Initialize runs the load sequence: establish the cipher key, apply
// overlay sources and the environment layer, validate, arm the live-reload
// watcher, and mark the service ready. It is idempotent once Ready;
// re-entrant calls before completion fail fast with ErrAlreadyInitializing.
// An unrecoverable error transitions the service to the terminal Failed
// state and is returned to the caller, which is expected to abort startup.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		switch s.State() {
		case StateReady:
			return nil
		case StateLoading, StateValidating:
			return ErrAlreadyInitializing
		default:
			return ErrInitFailed
		}
	}

	if err := s.load(ctx); err != nil {
		s.state.Store(int32(StateFailed))
		s.logger.Error("configuration load failed", zap.Error(err))
		return err
	}

	s.state.Store(int32(StateValidating))
	if err := s.pipeline.ValidateAll(s.store); err != nil {
		s.state.Store(int32(StateFailed))
		s.logger.Error("configuration validation failed", zap.Error(err))
		return err
	}

	s.armWatcher()

	s.store.setNotifying(true)
	s.state.Store(int32(StateReady))
	s.logger.Info("configuration service ready",
		zap.String("environment", s.opts.Environment),
		zap.Int("overlay_keys", len(s.overlayKeys)))
	return nil
}

// load performs the Loading phase: key establishment and overlay merge.
func (s *Service) load(ctx context.Context) error {
	key := s.opts.KeyMaterial
	if key == nil {
		production := s.opts.Environment == ProductionEnvironment
		loaded, err := loadOrCreateKey(s.opts.KeyFile, production, s.logger)
		if err != nil {
			return err
		}
		key = loaded
	}

	cipher, err := NewSecretCipher(key)
	if err != nil {
		return err
	}
	if err := s.store.SetCipher(cipher); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Overlay values pass through the same transform and validation stages
	// as any other write; a rejected value is skipped and the key keeps its
	// registered default. Notify is moot here, delivery is still disarmed.
	applied := make(map[string]bool)
	for path, value := range s.overlays.Load(s.store.Keys()) {
		if err := s.store.Set(path, value, DefaultSetOptions()); err != nil {
			s.logger.Warn("skipping overlay value",
				zap.String("key", path), zap.Error(err))
			continue
		}
		applied[path] = true
	}

	s.reloadMu.Lock()
	s.overlayKeys = applied
	s.reloadMu.Unlock()

	return ctx.Err()
}

// armWatcher starts the fsnotify watcher over the overlay directory.
// Watcher failure degrades to a static configuration, it never fails boot.
func (s *Service) armWatcher() {
	if s.opts.DisableWatch || s.opts.Dir == "" {
		return
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return
	}

	w, err := newFileWatcher(s, s.opts.Dir, s.opts.WatchDebounce)
	if err != nil {
		s.logger.Warn("overlay watcher unavailable, live reload disabled",
			zap.String("dir", s.opts.Dir), zap.Error(err))
		return
	}
	s.watcher = w
}

// Reset tears the service back to Uninitialized, clearing the store and
// journal, then re-runs the full load sequence. It is the only supported
// way to reload from scratch. Registered paths, metadata, and required-key
// rules are replayed; observer subscriptions survive.
func (s *Service) Reset(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateReady), int32(StateUninitialized)) {
		return fmt.Errorf("%w: reset requires the ready state, currently %s", ErrNotReady, s.State())
	}

	s.stopWatcher()
	s.store.setNotifying(false)
	s.store.Clear()
	s.journal.Clear()

	s.reloadMu.Lock()
	s.overlayKeys = make(map[string]bool)
	s.reloadMu.Unlock()

	s.regMu.Lock()
	regs := make([]registration, len(s.regs))
	copy(regs, s.regs)
	s.regMu.Unlock()

	for _, reg := range regs {
		if err := s.store.Register(reg.path, reg.def, reg.opts...); err != nil {
			s.state.Store(int32(StateFailed))
			return fmt.Errorf("failed to re-register %q: %w", reg.path, err)
		}
	}

	return s.Initialize(ctx)
}

// Close stops the overlay watcher. The in-memory store remains readable.
func (s *Service) Close() error {
	s.stopWatcher()
	return nil
}

func (s *Service) stopWatcher() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		s.watcher.stop()
		s.watcher = nil
	}
}

// Register makes a path known with a default value and optional metadata.
func (s *Service) Register(path string, defaultValue any, opts ...EntryOption) error {
	if err := s.store.Register(path, defaultValue, opts...); err != nil {
		return err
	}
	s.regMu.Lock()
	s.regs = append(s.regs, registration{path: path, def: defaultValue, opts: opts})
	s.regMu.Unlock()
	return nil
}

// RegisterStruct registers defaults derived from a struct using `toml`
// tags for paths. Tag options mark metadata: `toml:"password,sensitive"`
// encrypts at rest, `toml:"dsn,required"` adds a presence check.
func (s *Service) RegisterStruct(prefix string, defaults any) error {
	v := reflect.ValueOf(defaults)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("RegisterStruct requires a non-nil struct pointer or value")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("RegisterStruct requires a struct or struct pointer, got %T", defaults)
	}

	var errs []string
	s.registerFields(v, prefix, &errs)
	if len(errs) > 0 {
		return fmt.Errorf("failed to register %d field(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) registerFields(v reflect.Value, pathPrefix string, errs *[]string) {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("toml")
		if tag == "-" {
			continue
		}

		key := field.Name
		var entryOpts []EntryOption
		if tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				key = parts[0]
			}
			for _, opt := range parts[1:] {
				switch opt {
				case "sensitive":
					entryOpts = append(entryOpts, Sensitive())
				case "required":
					entryOpts = append(entryOpts, Required())
				}
			}
		}

		currentPath := key
		if pathPrefix != "" {
			prefix := pathPrefix
			if !strings.HasSuffix(prefix, ".") {
				prefix += "."
			}
			currentPath = prefix + key
		}

		isStruct := fieldValue.Kind() == reflect.Struct
		isPtrToStruct := fieldValue.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.Struct

		if isStruct || isPtrToStruct {
			nested := fieldValue
			if isPtrToStruct {
				if fieldValue.IsNil() {
					continue
				}
				nested = fieldValue.Elem()
			}
			s.registerFields(nested, currentPath, errs)
			continue
		}

		if err := s.Register(currentPath, fieldValue.Interface(), entryOpts...); err != nil {
			*errs = append(*errs, fmt.Sprintf("field %s (path %s): %v", field.Name, currentPath, err))
		}
	}
}

// Get returns the resolved value for a flat key or dotted path, or def on
// any miss. Safe to call in any state; before Ready it reflects only the
// values applied so far.
func (s *Service) Get(key string, def any) any {
	return s.store.Get(key, def)
}

// Has reports key existence with the same resolution semantics as Get.
func (s *Service) Has(key string) bool {
	return s.store.Has(key)
}

// Set writes a value through the full transform-validate-notify path.
func (s *Service) Set(key string, value any) error {
	return s.store.Set(key, value, DefaultSetOptions())
}

// SetWith writes a value with explicit control over the write stages.
func (s *Service) SetWith(key string, value any, opts SetOptions) error {
	return s.store.Set(key, value, opts)
}

// MarkSensitive permanently flags a key for encryption at rest.
func (s *Service) MarkSensitive(key string) error {
	return s.store.MarkSensitive(key)
}

// Require registers a key as mandatory for ValidateAll, optionally with
// custom checks.
func (s *Service) Require(key string, fns ...ValidatorFunc) {
	s.pipeline.Require(key, fns...)
}

// ValidateAll re-runs the aggregated required-key validation on demand.
func (s *Service) ValidateAll() error {
	return s.pipeline.ValidateAll(s.store)
}

// ValidateStruct applies `validate` struct tags to a decoded section.
func (s *Service) ValidateStruct(target any) error {
	return s.pipeline.ValidateStruct(target)
}

// Watch registers an observer for a single key and returns its unwatch
// handle. Delivery is synchronous, after the mutation commits.
func (s *Service) Watch(key string, fn WatchFunc) UnwatchFunc {
	return s.bus.Watch(key, fn)
}

// WatchAll registers an observer for every committed change.
func (s *Service) WatchAll(fn WatchFunc) UnwatchFunc {
	return s.bus.WatchAll(fn)
}

// History returns journaled changes, all of them or only those for key.
func (s *Service) History(key string) []ChangeRecord {
	return s.journal.History(key)
}

// ToMap exports the configuration as a nested map, redacting sensitive
// keys unless includeSensitive is set.
func (s *Service) ToMap(includeSensitive bool) map[string]any {
	return s.store.ToMap(includeSensitive)
}

// reloadOverlays re-reads every overlay source and funnels the differences
// through the standard write path, notifying observers per changed key.
// Keys an overlay no longer provides revert to their registered default.
func (s *Service) reloadOverlays(ctx context.Context) {
	if s.State() != StateReady {
		return
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	flat := s.overlays.Load(s.store.Keys())
	applied := make(map[string]bool, len(flat))
	changed := 0

	for path, value := range flat {
		if ctx.Err() != nil {
			return
		}
		applied[path] = true
		current, found := s.store.Lookup(path)
		if found && reflect.DeepEqual(current, value) {
			continue
		}
		if err := s.store.Set(path, value, DefaultSetOptions()); err != nil {
			s.logger.Warn("rejected reloaded overlay value",
				zap.String("key", path), zap.Error(err))
			continue
		}
		changed++
	}

	// Revert keys that dropped out of every overlay source
	for path := range s.overlayKeys {
		if applied[path] {
			continue
		}
		if err := s.store.Set(path, s.store.defaultOf(path), DefaultSetOptions()); err != nil {
			s.logger.Warn("failed to revert removed overlay key",
				zap.String("key", path), zap.Error(err))
			continue
		}
		changed++
	}

	s.overlayKeys = applied
	if changed > 0 {
		s.logger.Info("overlay reload applied", zap.Int("changed", changed))
	}
}
