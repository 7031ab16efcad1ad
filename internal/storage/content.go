package storage

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Kind tells whether content was produced as text or as raw bytes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindText
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	}
	return "unknown"
}

// Content is the payload of a stored object. Text is kept UTF-8 encoded.
type Content struct {
	data []byte
	kind Kind
}

// Text wraps s as text content.
func Text(s string) Content { return Content{data: []byte(s), kind: KindText} }

// Bytes wraps b as binary content. b is not copied; stores that keep
// content beyond the call Clone it.
func Bytes(b []byte) Content {
	if b == nil {
		b = []byte{}
	}
	return Content{data: b, kind: KindBinary}
}

// Empty returns zero-length content of kind k.
func Empty(k Kind) Content { return Content{data: []byte{}, kind: k} }

func (c Content) Kind() Kind      { return c.kind }
func (c Content) IsText() bool    { return c.kind == KindText }
func (c Content) IsBinary() bool  { return c.kind == KindBinary }
func (c Content) Len() int64      { return int64(len(c.data)) }
func (c Content) Bytes() []byte   { return c.data }
func (c Content) String() string  { return string(c.data) }
func (c Content) Valid() bool     { return c.kind == KindText || c.kind == KindBinary }
func (c Content) AsText() Content { return Content{data: c.data, kind: KindText} }

// AsBinary returns c relabelled as raw bytes.
func (c Content) AsBinary() Content { return Content{data: c.data, kind: KindBinary} }

// Clone returns content that shares no memory with c.
func (c Content) Clone() Content {
	data := bytes.Clone(c.data)
	if data == nil {
		data = []byte{}
	}
	return Content{data: data, kind: c.kind}
}

// As converts c to the representation requested by a read mode. Text reads
// of bytes that are not valid UTF-8 fail with ErrTypeMismatch.
func (c Content) As(mode ReadMode) (Content, error) {
	if mode == ReadBinary {
		return c.AsBinary(), nil
	}
	if !utf8.Valid(c.data) {
		return Content{}, fmt.Errorf("%w: content is not valid UTF-8, read it as binary", ErrTypeMismatch)
	}
	return c.AsText(), nil
}

// Prefix returns up to n bytes for diagnostics.
func (c Content) Prefix(n int) string {
	if len(c.data) <= n {
		return fmt.Sprintf("%q", c.data)
	}
	return fmt.Sprintf("%q...", c.data[:n])
}

// CheckMode enforces that the Binary flag agrees with the content kind.
func CheckMode(data Content, mode Mode) error {
	switch {
	case mode.IsBinary() && data.kind == KindText:
		return fmt.Errorf("%w: binary mode requires bytes, got text", ErrTypeMismatch)
	case !mode.IsBinary() && data.kind == KindBinary:
		return fmt.Errorf("%w: text mode requires text, got bytes", ErrTypeMismatch)
	}
	return nil
}
