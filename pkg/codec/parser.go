package codec

import (
	"encoding/binary"
	"errors"
)

// ErrTruncatedBuffer is returned when a read runs past the end of the buffer.
var ErrTruncatedBuffer = errors.New("codec: truncated buffer")

// Parser consumes fields from a byte slice in declaration order.
//
// After the first failed read the parser is spent: every further read
// returns ErrTruncatedBuffer.
type Parser struct {
	buf    []byte
	pos    int
	text   TextEncoding
	failed bool
}

// NewParser creates a Parser that reads strings as Latin-1.
func NewParser(buf []byte) *Parser {
	return NewParserWithText(buf, Latin1)
}

// NewParserWithText creates a Parser using the given string encoding.
func NewParserWithText(buf []byte, text TextEncoding) *Parser {
	return &Parser{buf: buf, text: text}
}

// Remaining returns the number of unread bytes.
func (p *Parser) Remaining() int {
	if p.failed {
		return 0
	}
	return len(p.buf) - p.pos
}

func (p *Parser) take(n int) ([]byte, error) {
	if p.failed || n < 0 || n > len(p.buf)-p.pos {
		p.failed = true
		return nil, ErrTruncatedBuffer
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// Uint8 reads one byte.
func (p *Parser) Uint8() (uint8, error) {
	b, err := p.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a big-endian 16-bit value.
func (p *Parser) Uint16() (uint16, error) {
	b, err := p.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 reads a big-endian 32-bit value.
func (p *Parser) Uint32() (uint32, error) {
	b, err := p.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// String reads a u32 length and that many encoded bytes.
func (p *Parser) String() (string, error) {
	n, err := p.Uint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(p.Remaining()) {
		p.failed = true
		return "", ErrTruncatedBuffer
	}
	b, err := p.take(int(n))
	if err != nil {
		return "", err
	}
	return p.text.decode(b), nil
}

// Bytes reads a raw run of n bytes. The result is a copy.
func (p *Parser) Bytes(n int) ([]byte, error) {
	b, err := p.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
