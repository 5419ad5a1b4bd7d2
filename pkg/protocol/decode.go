package protocol

import (
	"fmt"

	"github.com/omochice/realm-paint/pkg/codec"
)

// minCursorSize is id:u32 + x:u16 + y:u16 + an empty string's u32 length.
const minCursorSize = 4 + 2 + 2 + 4

// Decode parses one frame using the default codec.
func Decode(data []byte) (Message, error) {
	return defaultCodec.Decode(data)
}

// Decode parses one frame. It never returns a partially populated message:
// on error the message is nil. Bytes after the last field are ignored.
func (c Codec) Decode(data []byte) (Message, error) {
	p := codec.NewParserWithText(data, c.Text)
	tag, err := p.Uint8()
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	var msg Message
	switch Type(tag) {
	case TypeInit:
		msg, err = readInit(p)
	case TypePaint:
		msg, err = readPaint(p)
	case TypeClear:
		msg, err = readClear(p)
	case TypePosition:
		msg, err = readPosition(p)
	case TypeChangeRealm:
		msg, err = readChangeRealm(p)
	default:
		return nil, fmt.Errorf("failed to decode message: %w: tag %d", ErrUnknownMessageType, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s message: %w", Type(tag), err)
	}
	return msg, nil
}

// fields reads a sequence of values and keeps the first error, so variant
// readers can be written as straight-line field lists.
type fields struct {
	p   *codec.Parser
	err error
}

func (f *fields) u8() uint8 {
	if f.err != nil {
		return 0
	}
	v, err := f.p.Uint8()
	f.err = err
	return v
}

func (f *fields) u16() uint16 {
	if f.err != nil {
		return 0
	}
	v, err := f.p.Uint16()
	f.err = err
	return v
}

func (f *fields) u32() uint32 {
	if f.err != nil {
		return 0
	}
	v, err := f.p.Uint32()
	f.err = err
	return v
}

func (f *fields) str() string {
	if f.err != nil {
		return ""
	}
	v, err := f.p.String()
	f.err = err
	return v
}

func (f *fields) bytes(n int) []byte {
	if f.err != nil {
		return nil
	}
	v, err := f.p.Bytes(n)
	f.err = err
	return v
}

func readInit(p *codec.Parser) (Message, error) {
	f := &fields{p: p}
	m := &Init{
		Width:      f.u16(),
		Height:     f.u16(),
		LayerCount: f.u8(),
		Name:       f.str(),
		ID:         f.u32(),
	}
	count := f.u32()
	if f.err != nil {
		return nil, f.err
	}
	// A count the remaining bytes cannot hold is truncated by definition.
	if uint64(count)*minCursorSize > uint64(p.Remaining()) {
		return nil, codec.ErrTruncatedBuffer
	}
	m.Cursors = make([]CursorInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		c := CursorInfo{
			ID:   f.u32(),
			X:    f.u16(),
			Y:    f.u16(),
			Name: f.str(),
		}
		if f.err != nil {
			return nil, f.err
		}
		m.Cursors = append(m.Cursors, c)
	}
	m.ImageData = f.bytes(ImageSize(m.Width, m.Height, m.LayerCount))
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

func readPaint(p *codec.Parser) (Message, error) {
	f := &fields{p: p}
	m := &Paint{
		Realm:     f.u32(),
		X:         f.u16(),
		Y:         f.u16(),
		R:         f.u8(),
		G:         f.u8(),
		B:         f.u8(),
		A:         f.u8(),
		BrushSize: f.u16(),
		Target:    f.u8(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

func readClear(p *codec.Parser) (Message, error) {
	f := &fields{p: p}
	m := &Clear{
		Realm:  f.u32(),
		R:      f.u8(),
		G:      f.u8(),
		B:      f.u8(),
		A:      f.u8(),
		Target: f.u8(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

func readPosition(p *codec.Parser) (Message, error) {
	f := &fields{p: p}
	m := &Position{
		Realm: f.u32(),
		ID:    f.u32(),
		X:     f.u16(),
		Y:     f.u16(),
		Name:  f.str(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

func readChangeRealm(p *codec.Parser) (Message, error) {
	f := &fields{p: p}
	m := &ChangeRealm{
		Realm: f.u32(),
		ID:    f.u32(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}
