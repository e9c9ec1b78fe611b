package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"labelcomposer/internal/domain"
)

// TOMLCodec handles TOML import/export
type TOMLCodec struct{}

// NewTOMLCodec creates a new TOML codec
func NewTOMLCodec() *TOMLCodec {
	return &TOMLCodec{}
}

// Format returns the codec format identifier
func (c *TOMLCodec) Format() string {
	return "toml"
}

// Parse imports a scheme from TOML
func (c *TOMLCodec) Parse(r io.Reader) (*domain.Scheme, error) {
	var doc Document
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("failed to parse TOML: unknown keys %s", strings.Join(keys, ", "))
	}

	return doc.Scheme()
}

// Export exports a scheme to TOML
func (c *TOMLCodec) Export(scheme *domain.Scheme, w io.Writer) error {
	encoder := toml.NewEncoder(w)
	encoder.Indent = "  "

	if err := encoder.Encode(NewDocument(scheme)); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}

	return nil
}
