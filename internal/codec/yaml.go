package codec

import (
	"fmt"
	"io"

	"labelcomposer/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports a scheme from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Scheme, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return doc.Scheme()
}

// Export exports a scheme to YAML
func (c *YAMLCodec) Export(scheme *domain.Scheme, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(NewDocument(scheme)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
