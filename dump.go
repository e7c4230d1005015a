// FILE: secureconfig/dump.go
package secureconfig

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// Dump writes the current configuration to w in TOML format. Sensitive
// keys are redacted unless includeSensitive is set; the redacting form is
// the one to use in logs, debug endpoints, and support bundles.
func (s *Service) Dump(w io.Writer, includeSensitive bool) error {
	nested := s.store.ToMap(includeSensitive)

	encoder := toml.NewEncoder(w)
	if err := encoder.Encode(nested); err != nil {
		return fmt.Errorf("failed to marshal config data to TOML: %w", err)
	}
	return nil
}
