package coff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// DecodeName decodes an 8 byte NUL padded name. A name using all 8 bytes has no terminator.
func DecodeName(b [NameSize]byte) (string, error) {
	end := bytes.IndexByte(b[:], 0)
	if end < 0 {
		end = NameSize
	}
	if !utf8.Valid(b[:end]) {
		return "", fmt.Errorf("%w: name %q", ErrInvalidText, b[:end])
	}
	return string(b[:end]), nil
}

// EncodeName left-justifies name in an 8 byte field and zero pads the rest
func EncodeName(name string) ([NameSize]byte, error) {
	var b [NameSize]byte
	if len(name) > NameSize {
		return b, fmt.Errorf("%w: %q is %d bytes", ErrNameTooLong, name, len(name))
	}
	copy(b[:], name)
	return b, nil
}

// SymbolName is the raw name field of a symbol record. When the first four
// bytes are zero the last four are an offset into the string table, otherwise
// the field holds the name itself.
type SymbolName [NameSize]byte

// IsLong reports whether the name lives in the string table
func (n SymbolName) IsLong() bool {
	return n[0] == 0 && n[1] == 0 && n[2] == 0 && n[3] == 0
}

// Offset returns the string table offset of a long name
func (n SymbolName) Offset() (uint32, bool) {
	if !n.IsLong() {
		return 0, false
	}
	return binary.LittleEndian.Uint32(n[4:]), true
}

// Short returns an inline name
func (n SymbolName) Short() (string, error) {
	if n.IsLong() {
		off, _ := n.Offset()
		return "", fmt.Errorf("%w: string table offset %#x", ErrLongName, off)
	}
	return DecodeName(n)
}

// LongSymbolName builds the name field referencing offset in the string table
func LongSymbolName(offset uint32) SymbolName {
	var n SymbolName
	binary.LittleEndian.PutUint32(n[4:], offset)
	return n
}

// ShortSymbolName builds an inline name field
func ShortSymbolName(name string) (SymbolName, error) {
	b, err := EncodeName(name)
	if err != nil {
		return SymbolName{}, err
	}
	if SymbolName(b).IsLong() {
		return SymbolName{}, fmt.Errorf("%w: %q can not be stored inline", ErrInvalidText, name)
	}
	return SymbolName(b), nil
}

func (n SymbolName) String() string {
	if off, ok := n.Offset(); ok {
		return fmt.Sprintf("strtab+%#x", off)
	}
	name, err := DecodeName(n)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return name
}
