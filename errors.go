// FILE: secureconfig/errors.go
package secureconfig

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady is returned by operations that require a completed Initialize.
	ErrNotReady = errors.New("configuration service is not ready")

	// ErrAlreadyInitializing is returned when Initialize is called re-entrantly
	// before a previous call has completed.
	ErrAlreadyInitializing = errors.New("initialization already in progress")

	// ErrInitFailed is returned when the service is in the terminal Failed state.
	ErrInitFailed = errors.New("configuration service failed to initialize")

	// ErrInvalidValue is returned by Set when a registered validator rejects the
	// write. The store is left unchanged.
	ErrInvalidValue = errors.New("value rejected by validator")

	// ErrKeySize is returned when supplied cipher key material is not the
	// required length.
	ErrKeySize = errors.New("cipher key material must be exactly 32 bytes")

	// ErrSourceUnreadable marks an overlay source that could not be read or
	// parsed. It is logged and the source skipped; it never aborts a load.
	ErrSourceUnreadable = errors.New("overlay source unreadable")
)

var errEmptyPath = errors.New("registration path cannot be empty")

func errInvalidSegment(segment, path string) error {
	return fmt.Errorf("invalid path segment %q in path %q", segment, path)
}

// FailureKind classifies a single validation failure.
type FailureKind int

const (
	// FailureMissing indicates a required key is absent, nil, or empty.
	FailureMissing FailureKind = iota
	// FailureInvalid indicates a present value was rejected by its validator.
	FailureInvalid
)

func (k FailureKind) String() string {
	switch k {
	case FailureMissing:
		return "missing"
	case FailureInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Failure describes one validation failure for one key.
type Failure struct {
	Key  string
	Kind FailureKind
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s)", f.Key, f.Kind)
}

// ValidationError aggregates every failure found in a single ValidateAll
// pass, so operators can fix all misconfiguration at once.
type ValidationError struct {
	Failures []Failure
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("configuration validation failed for %d key(s): %s",
		len(e.Failures), strings.Join(parts, ", "))
}
