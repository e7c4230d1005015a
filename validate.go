// FILE: secureconfig/validate.go
package secureconfig

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Pipeline runs required-key and custom-validator checks over a Store and
// aggregates every failure before reporting, so one pass surfaces the full
// set of misconfigured keys.
type Pipeline struct {
	mu     sync.RWMutex
	rules  map[string][]ValidatorFunc // nil slice means presence-only
	tagged *validator.Validate
}

// NewPipeline creates an empty validation pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		rules:  make(map[string][]ValidatorFunc),
		tagged: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Require registers a key as mandatory, optionally with custom checks.
// Calling Require again for the same key appends checks.
func (p *Pipeline) Require(key string, fns ...ValidatorFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rules[key]; !ok {
		p.rules[key] = nil
	}
	for _, fn := range fns {
		if fn != nil {
			p.rules[key] = append(p.rules[key], fn)
		}
	}
}

// RequiredKeys returns the registered mandatory keys in sorted order.
func (p *Pipeline) RequiredKeys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.rules))
	for key := range p.rules {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ValidateAll scans every required key against the store. Absent, nil, or
// empty-string values are missing-key failures; present values rejected by
// a custom check are invalid-value failures. All failures across all keys
// are collected into one ValidationError rather than failing fast. A clean
// pass returns nil with no side effects.
func (p *Pipeline) ValidateAll(store *Store) error {
	p.mu.RLock()
	rules := make(map[string][]ValidatorFunc, len(p.rules))
	for key, fns := range p.rules {
		rules[key] = fns
	}
	p.mu.RUnlock()

	// Entries flagged required at registration join the presence checks.
	for _, key := range store.requiredPaths() {
		if _, ok := rules[key]; !ok {
			rules[key] = nil
		}
	}

	keys := make([]string, 0, len(rules))
	for key := range rules {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var failures []Failure
	for _, key := range keys {
		raw, found := store.Lookup(key)
		if !found || ValueOf(raw).IsEmpty() {
			failures = append(failures, Failure{Key: key, Kind: FailureMissing})
			continue
		}

		for _, fn := range rules[key] {
			if !fn(ValueOf(raw)) {
				failures = append(failures, Failure{Key: key, Kind: FailureInvalid})
				break
			}
		}
	}

	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}
	return nil
}

// ValidateStruct applies `validate` struct tags to a decoded configuration
// section, complementing the per-key rules with declarative constraints.
func (p *Pipeline) ValidateStruct(target any) error {
	if err := p.tagged.Struct(target); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	return nil
}

// Clear removes every registered rule.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = make(map[string][]ValidatorFunc)
}
