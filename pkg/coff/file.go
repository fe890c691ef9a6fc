package coff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// Sym is a decoded primary symbol together with the auxiliary records that follow it
type Sym struct {
	Index  int    // index of the record in the symbol table
	Offset uint64 // absolute file offset of the record
	Name   string
	Entry  Symbol
	Aux    []AuxRecord
}

// File is a decoded COFF object
type File struct {
	FileHeader
	Sections []*SectionHeader
	Symbols  []*Sym

	// StringTableOffset is derived from the header before any symbol is read
	StringTableOffset uint64

	data []byte
}

// Open reads and parses the COFF object at path
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the file header, section table and symbol table of a COFF object
func Parse(data []byte) (*File, error) {
	f := &File{data: data}

	if err := f.FileHeader.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	f.StringTableOffset = f.FileHeader.StringTableOffset()

	if err := f.readSections(); err != nil {
		return nil, err
	}
	if err := f.readSymbols(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) readSections() error {
	r := bytes.NewReader(f.data)
	if _, err := r.Seek(FileHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to section table: %w", err)
	}

	for i := 0; i < int(f.NumberOfSections); i++ {
		var sh SectionHeader32
		if err := binary.Read(r, binary.LittleEndian, &sh); err != nil {
			return fmt.Errorf("failed to read section header %d: %w", i, readErr(err))
		}
		name, err := DecodeName(sh.Name)
		if err != nil {
			return fmt.Errorf("failed to decode section header %d name: %w", i, err)
		}
		f.Sections = append(f.Sections, &SectionHeader{
			Name:                 name,
			VirtualSize:          sh.VirtualSize,
			VirtualAddress:       sh.VirtualAddress,
			SizeOfRawData:        sh.SizeOfRawData,
			PointerToRawData:     sh.PointerToRawData,
			PointerToRelocations: sh.PointerToRelocations,
			PointerToLineNumbers: sh.PointerToLineNumbers,
			NumberOfRelocations:  sh.NumberOfRelocations,
			NumberOfLineNumbers:  sh.NumberOfLineNumbers,
			Characteristics:      sh.Characteristics,
		})
	}

	return nil
}

func (f *File) readSymbols() error {
	if f.PointerToSymbolTable == 0 {
		return nil
	}
	if uint64(f.PointerToSymbolTable) > uint64(len(f.data)) {
		return fmt.Errorf("%w: symbol table at %#x is past end of file (%#x)", ErrInvalidOffset, f.PointerToSymbolTable, len(f.data))
	}

	r := bytes.NewReader(f.data)
	if _, err := r.Seek(int64(f.PointerToSymbolTable), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to symbol table: %w", err)
	}

	var remaining uint8
	var prev *Sym

	for i := 0; i < int(f.NumberOfSymbols); i++ {
		off := uint64(f.PointerToSymbolTable) + uint64(i)*SymbolSize

		var raw AuxRecord
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return fmt.Errorf("failed to read symbol %d at %#x: %w", i, off, readErr(err))
		}

		if remaining > 0 {
			remaining--
			prev.Aux = append(prev.Aux, raw)
			continue
		}

		var sym Symbol
		if err := binary.Read(bytes.NewReader(raw[:]), binary.LittleEndian, &sym); err != nil {
			return fmt.Errorf("failed to decode symbol %d: %w", i, readErr(err))
		}
		remaining = sym.NumberOfAuxSymbols

		name, err := f.symbolName(sym.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve symbol %d name: %w", i, err)
		}

		prev = &Sym{
			Index:  i,
			Offset: off,
			Name:   name,
			Entry:  sym,
		}
		f.Symbols = append(f.Symbols, prev)
	}

	if remaining != 0 {
		return fmt.Errorf("%w: symbol %d is missing %d auxiliary records", ErrTruncated, prev.Index, remaining)
	}

	return nil
}

func (f *File) symbolName(n SymbolName) (string, error) {
	off, long := n.Offset()
	if !long {
		return n.Short()
	}
	return f.StringAt(off)
}

// StringAt returns the NUL terminated string at offset bytes into the string table
func (f *File) StringAt(offset uint32) (string, error) {
	start := f.StringTableOffset + uint64(offset)
	if start >= uint64(len(f.data)) {
		return "", fmt.Errorf("%w: string table offset %#x (file offset %#x, size %#x)", ErrInvalidOffset, offset, start, len(f.data))
	}
	b := f.data[start:]
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at string table offset %#x", ErrTruncated, offset)
	}
	if !utf8.Valid(b[:end]) {
		return "", fmt.Errorf("%w: string of len %d at string table offset %#x", ErrInvalidText, end, offset)
	}
	return string(b[:end]), nil
}

// StringTableSize returns the size field stored in the first four bytes of the string table
func (f *File) StringTableSize() (uint32, bool) {
	if f.PointerToSymbolTable == 0 || f.StringTableOffset+4 > uint64(len(f.data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(f.data[f.StringTableOffset:]), true
}

// SectionName returns the name of the section a symbol refers to
func (f *File) SectionName(n SectionNumber) string {
	if n > 0 && int(n) <= len(f.Sections) {
		return f.Sections[n-1].Name
	}
	return n.String()
}

// NumAux returns the number of auxiliary records decoded
func (f *File) NumAux() int {
	var n int
	for _, s := range f.Symbols {
		n += len(s.Aux)
	}
	return n
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
