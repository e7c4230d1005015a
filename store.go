// FILE: secureconfig/store.go
package secureconfig

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Redacted replaces sensitive values in exports and journal records.
const Redacted = "[REDACTED]"

// ValidatorFunc reports whether a candidate value is acceptable for a key.
type ValidatorFunc func(v Value) bool

// TransformFunc rewrites a candidate value before validation and storage.
type TransformFunc func(v Value) Value

// entry holds the per-key state and metadata for one configuration path.
type entry struct {
	value       any // envelope string when sensitive and sealed
	def         any
	sensitive   bool
	sealed      bool // value is an encrypted envelope
	required    bool
	validator   ValidatorFunc
	transformer TransformFunc
}

// EntryOption configures key metadata at registration time.
type EntryOption func(*entry)

// Sensitive marks the key for encryption at rest and redaction from
// exports. Once set for a key the flag is permanent.
func Sensitive() EntryOption {
	return func(e *entry) { e.sensitive = true }
}

// Required marks the key as mandatory at validation time.
func Required() EntryOption {
	return func(e *entry) { e.required = true }
}

// WithValidator attaches a predicate evaluated on every validated write.
func WithValidator(fn ValidatorFunc) EntryOption {
	return func(e *entry) { e.validator = fn }
}

// WithTransformer attaches a pure function applied before validation on
// every transformed write.
func WithTransformer(fn TransformFunc) EntryOption {
	return func(e *entry) { e.transformer = fn }
}

// SetOptions controls which stages of the write path run for one Set call.
type SetOptions struct {
	Transform bool
	Validate  bool
	Notify    bool
}

// DefaultSetOptions enables the full transform-validate-notify write path.
func DefaultSetOptions() SetOptions {
	return SetOptions{Transform: true, Validate: true, Notify: true}
}

// Store maps dotted key paths to resolved values with per-key metadata.
// Every mutation runs as one critical section; observer delivery happens
// after the commit, outside the lock.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]entry
	cipher    *SecretCipher
	journal   *Journal
	bus       *Bus
	notifying atomic.Bool // armed once initialization completes
}

// NewStore creates a store wired to its journal and observer bus. The
// cipher is attached later via SetCipher, once key material is established.
func NewStore(journal *Journal, bus *Bus) *Store {
	return &Store{
		entries: make(map[string]entry),
		journal: journal,
		bus:     bus,
	}
}

// SetCipher attaches the process cipher and seals any sensitive entries
// that were written before key material was available.
func (s *Store) SetCipher(cipher *SecretCipher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cipher = cipher
	for path, e := range s.entries {
		if e.sensitive && !e.sealed && e.value != nil {
			if err := s.sealLocked(&e); err != nil {
				return fmt.Errorf("key %q: %w", path, err)
			}
			s.entries[path] = e
		}
	}
	return nil
}

// Register makes a path known to the store with a default value and
// optional metadata. Registering an existing path updates its metadata but
// never clears a sensitive flag.
func (s *Store) Register(path string, defaultValue any, opts ...EntryOption) error {
	if err := validatePath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[path]
	wasSensitive := e.sensitive
	e.def = defaultValue
	for _, opt := range opts {
		opt(&e)
	}
	// Sensitivity is sticky
	e.sensitive = e.sensitive || wasSensitive

	if e.value == nil {
		e.value = defaultValue
	}
	// Seal a plaintext value on first transition to sensitive; an already
	// sensitive entry holds an envelope and must not be sealed twice.
	if e.sensitive && !wasSensitive && e.value != nil {
		if err := s.sealLocked(&e); err != nil {
			return err
		}
	}

	s.entries[path] = e
	return nil
}

// MarkSensitive flags an existing key as sensitive, encrypting any value it
// already holds. The flag cannot be removed afterwards.
func (s *Store) MarkSensitive(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[path]
	if e.sensitive {
		return nil
	}
	e.sensitive = true
	if e.value != nil {
		if err := s.sealLocked(&e); err != nil {
			return err
		}
	}
	s.entries[path] = e
	return nil
}

// sealLocked encrypts the entry's current plaintext value in place. With
// no cipher attached yet the value stays plaintext and unsealed; SetCipher
// seals it once key material exists.
func (s *Store) sealLocked(e *entry) error {
	if s.cipher == nil {
		return nil
	}
	plain, ok := ValueOf(e.value).AsString()
	if !ok {
		return fmt.Errorf("sensitive values must be string-representable, got %T", e.value)
	}
	env, err := s.cipher.Encrypt(plain)
	if err != nil {
		return err
	}
	e.value = env
	e.sealed = true
	return nil
}

// Set writes a value through the transform-validate-store-journal-notify
// sequence. A validator rejection leaves the store and journal unchanged.
// Writing the same key twice is last-write-wins; the new value replaces the
// whole previous value, nested structures are never deep-merged.
//
// Notification happens after the lock is released so callbacks may
// re-enter the store. Callbacks from one goroutine's writes arrive in
// commit order; concurrent writers to the same key may see their
// callbacks interleaved relative to journal order.
func (s *Store) Set(key string, value any, opts SetOptions) error {
	if err := validatePath(key); err != nil {
		return err
	}

	s.mu.Lock()

	e := s.entries[key]

	if opts.Transform && e.transformer != nil {
		value = e.transformer(ValueOf(value)).Raw()
	}

	if opts.Validate && e.validator != nil && !e.validator(ValueOf(value)) {
		s.mu.Unlock()
		return fmt.Errorf("%w: key %q", ErrInvalidValue, key)
	}

	prev, _ := s.resolveLocked(key)

	if e.sensitive {
		plain, ok := ValueOf(value).AsString()
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("sensitive values must be string-representable, got %T", value)
		}
		e.value = plain
		e.sealed = false
		value = plain
		if s.cipher != nil {
			env, err := s.cipher.Encrypt(plain)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			e.value = env
			e.sealed = true
		}
	} else {
		e.value = value
	}
	s.entries[key] = e

	recPrev, recNext := prev, value
	if e.sensitive {
		recPrev, recNext = Redacted, Redacted
	}
	s.journal.Record(ChangeRecord{
		Time:     time.Now(),
		Key:      key,
		Previous: recPrev,
		Next:     recNext,
	})

	s.mu.Unlock()

	if opts.Notify && s.notifying.Load() {
		s.bus.Notify(Change{Key: key, Previous: prev, Next: value})
	}

	return nil
}

// Get returns the resolved logical value for a flat key or dotted path, or
// def when the key is absent, an intermediate segment is missing, or a
// sensitive value fails to decrypt. It never returns an error or panics.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	v, ok := s.resolveLocked(key)
	s.mu.RUnlock()

	if !ok {
		return def
	}
	return v
}

// Has reports key existence with the same dotted resolution as Get.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	_, ok := s.resolveLocked(key)
	s.mu.RUnlock()
	return ok
}

// Lookup returns the resolved logical value and whether it was found.
func (s *Store) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(key)
}

// resolveLocked resolves a flat key or dotted path. Exact entries win; a
// dotted path falls back to walking the nested structure stored under the
// longest registered prefix, one segment at a time.
func (s *Store) resolveLocked(key string) (any, bool) {
	if e, ok := s.entries[key]; ok && e.value != nil {
		return s.unsealLocked(e)
	}

	segments := strings.Split(key, ".")
	for i := len(segments) - 1; i >= 1; i-- {
		prefix := strings.Join(segments[:i], ".")
		e, ok := s.entries[prefix]
		if !ok || e.value == nil {
			continue
		}
		nested, isMap := e.value.(map[string]any)
		if !isMap {
			return nil, false
		}
		v := navigateToPath(nested, strings.Join(segments[i:], "."))
		if v == nil {
			return nil, false
		}
		return v, true
	}

	return nil, false
}

// unsealLocked returns the logical value of an entry, decrypting sensitive
// payloads. Decryption failure reports not-found so readers degrade to
// their default.
func (s *Store) unsealLocked(e entry) (any, bool) {
	if !e.sensitive || !e.sealed {
		return e.value, true
	}

	env, ok := e.value.(string)
	if !ok || s.cipher == nil {
		return nil, false
	}
	plain, err := s.cipher.Decrypt(env)
	if err != nil {
		return nil, false
	}
	return plain, true
}

// ToMap exports the configuration as a nested map. Sensitive keys are
// redacted unless includeSensitive is set.
func (s *Store) ToMap(includeSensitive bool) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nested := make(map[string]any)
	for path, e := range s.entries {
		if e.value == nil {
			continue
		}
		if e.sensitive && !includeSensitive {
			setNestedValue(nested, path, Redacted)
			continue
		}
		v, ok := s.unsealLocked(e)
		if !ok {
			setNestedValue(nested, path, Redacted)
			continue
		}
		setNestedValue(nested, path, v)
	}
	return nested
}

// Keys returns all registered paths in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for path := range s.entries {
		keys = append(keys, path)
	}
	sort.Strings(keys)
	return keys
}

// requiredPaths returns every path whose entry carries the required flag.
func (s *Store) requiredPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string
	for path, e := range s.entries {
		if e.required {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// defaultOf returns the registered default for a path.
func (s *Store) defaultOf(path string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[path].def
}

// setNotifying arms or disarms observer delivery. Disarmed during
// initialization so bootstrap writes do not fan out.
func (s *Store) setNotifying(on bool) {
	s.notifying.Store(on)
}

// Clear removes every entry. Metadata registered before the clear is lost;
// callers re-run registration as part of a reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}
