package domain

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName validates a label or atom name and returns its canonical form.
// Names must be valid UTF-8 and not blank; the result is NFC-normalized so that
// visually identical names compare equal.
func NormalizeName(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidName, name)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: name is blank", ErrInvalidName)
	}
	return norm.NFC.String(name), nil
}

// DecodeName converts byte input to a normalized name. UTF-16 input is
// accepted when it carries a byte order mark; everything else must be UTF-8.
func DecodeName(raw []byte) (string, error) {
	if hasUTF16BOM(raw) {
		decoded, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder(), raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
		}
		raw = decoded
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	return NormalizeName(string(raw))
}

func hasUTF16BOM(raw []byte) bool {
	if len(raw) < 2 {
		return false
	}
	return (raw[0] == 0xFF && raw[1] == 0xFE) || (raw[0] == 0xFE && raw[1] == 0xFF)
}
