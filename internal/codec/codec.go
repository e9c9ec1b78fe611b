package codec

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"labelcomposer/internal/domain"
)

// Importer interface for importing schemes from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.Scheme, error)
	Format() string
}

// Exporter interface for exporting schemes to various formats
type Exporter interface {
	Export(scheme *domain.Scheme, w io.Writer) error
	Format() string
}

// Codec both imports and exports one format
type Codec interface {
	Importer
	Exporter
}

// ErrUnsupportedFormat is returned for a format no codec handles
var ErrUnsupportedFormat = errors.New("unsupported format")

// Formats lists the supported format identifiers
var Formats = []string{"yaml", "json", "toml"}

// ForFormat returns the codec for a format identifier. "yml" is accepted as
// an alias of "yaml".
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	case "toml":
		return NewTOMLCodec(), nil
	default:
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedFormat, format, strings.Join(Formats, ", "))
	}
}

// ForPath picks a codec from a file extension
func ForPath(path string) (Codec, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, fmt.Errorf("%w: cannot infer format of %s", ErrUnsupportedFormat, path)
	}
	return ForFormat(ext)
}
