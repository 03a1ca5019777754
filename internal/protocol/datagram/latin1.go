package datagram

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Charset selects how WriteString and ReadString map text to wire bytes.
type Charset uint8

const (
	// Raw copies strings byte-for-byte.
	Raw Charset = iota
	// Latin1 transcodes UTF-8 text to and from ISO-8859-1.
	Latin1
)

func (c Charset) String() string {
	switch c {
	case Raw:
		return "raw"
	case Latin1:
		return "latin1"
	default:
		return fmt.Sprintf("charset(%d)", uint8(c))
	}
}

// ParseCharset accepts "", "raw", "latin1" and "iso-8859-1".
func ParseCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raw":
		return Raw, nil
	case "latin1", "iso-8859-1":
		return Latin1, nil
	default:
		return Raw, fmt.Errorf("datagram: unknown charset %q", name)
	}
}

func (c Charset) encode(s string) (string, error) {
	if c != Latin1 {
		return s, nil
	}
	return EncodeLatin1(s)
}

func (c Charset) decode(s string) (string, error) {
	if c != Latin1 {
		return s, nil
	}
	return DecodeLatin1(s)
}

// EncodeLatin1 converts UTF-8 text to the single-byte wire form. Runes
// outside ISO-8859-1 are rejected rather than silently replaced.
func EncodeLatin1(s string) (string, error) {
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("datagram: latin1 encode: %w", err)
	}
	return out, nil
}

// DecodeLatin1 converts a single-byte wire string back to UTF-8 text.
func DecodeLatin1(s string) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return "", fmt.Errorf("datagram: latin1 decode: %w", err)
	}
	return out, nil
}
