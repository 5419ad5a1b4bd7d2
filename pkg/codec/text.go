package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextEncoding selects how strings are laid out on the wire.
type TextEncoding int

const (
	// Latin1 writes one byte per code point. Code points above 0xFF keep only
	// their low byte, matching the permissive integer convention.
	Latin1 TextEncoding = iota
	// UTF8 writes the string's UTF-8 bytes. Both peers must agree on it.
	UTF8
)

// String returns the configuration name of the encoding.
func (t TextEncoding) String() string {
	switch t {
	case Latin1:
		return "latin1"
	case UTF8:
		return "utf8"
	default:
		return "unknown"
	}
}

// ParseTextEncoding maps a configuration name to a TextEncoding.
func ParseTextEncoding(s string) (TextEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latin1", "latin-1", "iso-8859-1":
		return Latin1, nil
	case "utf8", "utf-8":
		return UTF8, nil
	default:
		return Latin1, fmt.Errorf("codec: unknown text encoding %q", s)
	}
}

func (t TextEncoding) encode(s string) []byte {
	if t == UTF8 {
		return []byte(s)
	}
	out := make([]byte, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}

func (t TextEncoding) decode(b []byte) string {
	if t == UTF8 {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
