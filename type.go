// FILE: secureconfig/type.go
package secureconfig

import "fmt"

// String retrieves a string configuration value using the path.
// Attempts conversion from common types if the stored value isn't already a string.
func (s *Service) String(path string) (string, error) {
	val, found := s.store.Lookup(path)
	if !found {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if val == nil {
		return "", nil // Treat nil as empty string for convenience
	}

	str, ok := ValueOf(val).AsString()
	if !ok {
		return "", fmt.Errorf("cannot convert type %T to string for path %s", val, path)
	}
	return str, nil
}

// Int64 retrieves an int64 configuration value using the path.
// Attempts conversion from numeric types, parsable strings, and booleans.
func (s *Service) Int64(path string) (int64, error) {
	val, found := s.store.Lookup(path)
	if !found {
		return 0, fmt.Errorf("path not found: %s", path)
	}

	f, ok := ValueOf(val).AsNumber()
	if !ok {
		return 0, fmt.Errorf("cannot convert type %T to int64 for path %s", val, path)
	}
	// Truncate toward zero, matching float-to-int conversion
	return int64(f), nil
}

// Bool retrieves a boolean configuration value using the path.
// Attempts conversion from numeric types (0=false, non-zero=true) and parsable strings.
func (s *Service) Bool(path string) (bool, error) {
	val, found := s.store.Lookup(path)
	if !found {
		return false, fmt.Errorf("path not found: %s", path)
	}

	b, ok := ValueOf(val).AsBool()
	if !ok {
		return false, fmt.Errorf("cannot convert type %T to bool for path %s", val, path)
	}
	return b, nil
}

// Float64 retrieves a float64 configuration value using the path.
// Attempts conversion from numeric types, parsable strings, and booleans.
func (s *Service) Float64(path string) (float64, error) {
	val, found := s.store.Lookup(path)
	if !found {
		return 0.0, fmt.Errorf("path not found: %s", path)
	}

	f, ok := ValueOf(val).AsNumber()
	if !ok {
		return 0.0, fmt.Errorf("cannot convert type %T to float64 for path %s", val, path)
	}
	return f, nil
}
