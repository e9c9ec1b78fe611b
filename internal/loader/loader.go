// Package loader reads scheme files from disk.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"labelcomposer/internal/codec"
	"labelcomposer/internal/domain"
)

// DefaultPattern matches every supported scheme file below a directory
const DefaultPattern = "**/*.{yaml,yml,json,toml}"

// Loaded is a scheme together with the file it came from
type Loaded struct {
	Path   string
	Scheme *domain.Scheme
}

// LoadFile loads a scheme from a file, picking the codec by extension
func LoadFile(path string) (*domain.Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	c, err := codec.ForPath(path)
	if err != nil {
		return nil, err
	}

	s, err := Parse(data, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes scheme bytes with c. UTF-16 input with a byte order mark is
// transcoded to UTF-8 first.
func Parse(data []byte, c codec.Importer) (*domain.Scheme, error) {
	text, err := toUTF8(data)
	if err != nil {
		return nil, err
	}
	return c.Parse(bytes.NewReader(text))
}

// LoadDir loads every file below dir matching pattern. Files that fail to
// load are reported in the joined error; the schemes that did load are
// returned regardless.
func LoadDir(dir, pattern string) ([]Loaded, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid scheme pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	slices.Sort(matches)

	var (
		loaded []Loaded
		errs   []error
	)
	for _, rel := range matches {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		s, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, Loaded{Path: path, Scheme: s})
	}
	return loaded, errors.Join(errs...)
}

// Matches reports whether path, relative to dir, is selected by pattern
func Matches(dir, pattern, path string) bool {
	if pattern == "" {
		pattern = DefaultPattern
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// IsNotExist reports whether err stems from a missing file
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func toUTF8(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return data, nil
	}
	if !(data[0] == 0xFF && data[1] == 0xFE) && !(data[0] == 0xFE && data[1] == 0xFF) {
		return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}), nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, fmt.Errorf("decode UTF-16: %w", err)
	}
	return out, nil
}
