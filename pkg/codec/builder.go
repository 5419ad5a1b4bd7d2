// Package codec provides the fixed-width big-endian field primitives the
// realm protocol is built on.
//
// Fields carry no type or length information of their own: a Parser must
// read fields in exactly the order the Builder wrote them.
package codec

// Builder accumulates fields in call order.
//
// Integer setters take wide arguments and mask them to the field width
// instead of rejecting out-of-range values, e.g. AddUint8(256) writes 0x00.
type Builder struct {
	buf  []byte
	text TextEncoding
}

// NewBuilder creates a Builder that writes strings as Latin-1.
func NewBuilder() *Builder {
	return NewBuilderWithText(Latin1)
}

// NewBuilderWithText creates a Builder using the given string encoding.
func NewBuilderWithText(text TextEncoding) *Builder {
	return &Builder{
		buf:  make([]byte, 0, 64),
		text: text,
	}
}

// AddUint8 appends the low 8 bits of v.
func (b *Builder) AddUint8(v int) {
	b.buf = append(b.buf, byte(v))
}

// AddUint16 appends the low 16 bits of v in big-endian order.
func (b *Builder) AddUint16(v int) {
	b.buf = append(b.buf, byte(v>>8), byte(v))
}

// AddUint32 appends the low 32 bits of v in big-endian order.
func (b *Builder) AddUint32(v int64) {
	b.buf = append(b.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// AddString appends a u32 length followed by the encoded string bytes.
func (b *Builder) AddString(s string) {
	encoded := b.text.encode(s)
	b.AddUint32(int64(len(encoded)))
	b.buf = append(b.buf, encoded...)
}

// AddBytes appends p verbatim. The reader must know len(p) from context.
func (b *Builder) AddBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns the accumulated buffer. The slice is owned by the Builder
// until the next Add call.
func (b *Builder) Bytes() []byte {
	return b.buf
}
