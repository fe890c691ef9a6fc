package coff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type testObject struct {
	header   FileHeader
	sections []SectionHeader
	symbols  [][SymbolSize]byte
	strtab   []byte
}

func symbolRecord(t *testing.T, name SymbolName, value uint32, sect SectionNumber, class StorageClass, aux uint8) [SymbolSize]byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, Symbol{
		Name:               name,
		Value:              value,
		SectionNumber:      sect,
		StorageClass:       class,
		NumberOfAuxSymbols: aux,
	}); err != nil {
		t.Fatal(err)
	}
	var rec [SymbolSize]byte
	copy(rec[:], buf.Bytes())
	return rec
}

func shortName(t *testing.T, name string) SymbolName {
	t.Helper()
	n, err := ShortSymbolName(name)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// build lays out header, section table, symbol table and string table back to back
func (o testObject) build(t *testing.T) []byte {
	t.Helper()
	h := o.header
	h.NumberOfSections = uint16(len(o.sections))
	if len(o.symbols) > 0 && h.NumberOfSymbols == 0 {
		h.NumberOfSymbols = uint32(len(o.symbols))
	}
	if len(o.symbols) > 0 || o.strtab != nil {
		h.PointerToSymbolTable = uint32(FileHeaderSize + len(o.sections)*SectionHeaderSize)
	}

	var buf bytes.Buffer
	if _, err := h.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	for _, s := range o.sections {
		raw, err := s.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, raw); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range o.symbols {
		buf.Write(s[:])
	}
	buf.Write(o.strtab)
	return buf.Bytes()
}

func stringTable(names ...string) ([]byte, []uint32) {
	var offsets []uint32
	body := []byte{}
	for _, n := range names {
		offsets = append(offsets, uint32(4+len(body)))
		body = append(body, n...)
		body = append(body, 0)
	}
	tab := binary.LittleEndian.AppendUint32(nil, uint32(4+len(body)))
	return append(tab, body...), offsets
}

func TestFileHeaderRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		hdr  FileHeader
	}{
		{
			name: "object",
			hdr: FileHeader{
				Machine:              IMAGE_FILE_MACHINE_AMD64,
				NumberOfSections:     3,
				TimeDateStamp:        0x5f5e100,
				PointerToSymbolTable: 0x1234,
				NumberOfSymbols:      17,
			},
		},
		{
			name: "unknown characteristics",
			hdr: FileHeader{
				Machine:         IMAGE_FILE_MACHINE_I386,
				Characteristics: IMAGE_FILE_EXECUTABLE_IMAGE | 0x0040,
			},
		},
		{
			name: "all bits",
			hdr: FileHeader{
				Machine:              0xffff,
				NumberOfSections:     0xffff,
				TimeDateStamp:        0xffffffff,
				PointerToSymbolTable: 0xffffffff,
				NumberOfSymbols:      0xffffffff,
				SizeOfOptionalHeader: 0xffff,
				Characteristics:      0xffff,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.hdr.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != FileHeaderSize {
				t.Fatalf("MarshalBinary() len = %d, want %d", len(data), FileHeaderSize)
			}
			var buf bytes.Buffer
			if _, err := tt.hdr.WriteTo(&buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), data) {
				t.Errorf("WriteTo() = %x, MarshalBinary() = %x", buf.Bytes(), data)
			}
			var got FileHeader
			if err := got.UnmarshalBinary(data); err != nil {
				t.Fatal(err)
			}
			if got != tt.hdr {
				t.Errorf("UnmarshalBinary() = %+v, want %+v", got, tt.hdr)
			}
		})
	}
}

func TestFileHeaderLayout(t *testing.T) {
	data, _ := FileHeader{
		Machine:              IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     0x0201,
		TimeDateStamp:        0x06050403,
		PointerToSymbolTable: 0x0a090807,
		NumberOfSymbols:      0x0e0d0c0b,
		SizeOfOptionalHeader: 0x100f,
		Characteristics:      0x1211,
	}.MarshalBinary()
	want := []byte{
		0x64, 0x86,
		0x01, 0x02,
		0x03, 0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e,
		0x0f, 0x10,
		0x11, 0x12,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("MarshalBinary() = % x, want % x", data, want)
	}
}

// shortWriter accepts limit bytes and then fails
type shortWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := min(len(p), w.limit-w.buf.Len())
	w.buf.Write(p[:n])
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func TestFileHeaderWriteToShort(t *testing.T) {
	h := FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64, NumberOfSymbols: 3}
	for _, limit := range []int{0, 7, FileHeaderSize} {
		w := &shortWriter{limit: limit}
		n, err := h.WriteTo(w)
		if n != int64(limit) {
			t.Errorf("limit %d: WriteTo() n = %d, want %d", limit, n, limit)
		}
		if limit < FileHeaderSize && !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("limit %d: WriteTo() error = %v, want %v", limit, err, io.ErrShortWrite)
		}
		if limit == FileHeaderSize && err != nil {
			t.Errorf("WriteTo() error = %v", err)
		}
	}
}

func TestFileHeaderValidate(t *testing.T) {
	tests := []struct {
		name string
		hdr  FileHeader
		want error
	}{
		{name: "amd64", hdr: FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64}},
		{name: "i386", hdr: FileHeader{Machine: IMAGE_FILE_MACHINE_I386}, want: ErrUnsupportedMachine},
		{name: "optional header", hdr: FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64, SizeOfOptionalHeader: 240}, want: ErrUnsupportedOptionalHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hdr.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	_, err := Parse(make([]byte, FileHeaderSize-1))
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Parse() error = %v, want %v", err, ErrTruncated)
	}
}

func TestParseSections(t *testing.T) {
	obj := testObject{
		header: FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{
			{
				Name:                 ".text",
				SizeOfRawData:        0x20,
				PointerToRawData:     0x100,
				PointerToRelocations: 0x120,
				NumberOfRelocations:  2,
				Characteristics:      IMAGE_SCN_CNT_CODE | IMAGE_SCN_ALIGN_16BYTES | IMAGE_SCN_MEM_EXECUTE | IMAGE_SCN_MEM_READ,
			},
			{
				Name:            ".rdata$z",
				SizeOfRawData:   0x10,
				Characteristics: IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ | 0x00000001,
			},
		},
	}
	f, err := Parse(obj.build(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Sections) != 2 {
		t.Fatalf("len(Sections) = %d, want 2", len(f.Sections))
	}
	for i, want := range obj.sections {
		if *f.Sections[i] != want {
			t.Errorf("Sections[%d] = %+v, want %+v", i, *f.Sections[i], want)
		}
	}
	if a := f.Sections[0].Characteristics.Alignment(); a != 16 {
		t.Errorf("Alignment() = %d, want 16", a)
	}
	if u := f.Sections[1].Characteristics.Unknown(); u != 0x1 {
		t.Errorf("Unknown() = %#x, want 0x1", u)
	}
}

func TestParseSectionsTruncated(t *testing.T) {
	data := testObject{
		header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{{Name: ".text"}, {Name: ".data"}},
	}.build(t)
	_, err := Parse(data[:len(data)-1])
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Parse() error = %v, want %v", err, ErrTruncated)
	}
}

func TestParseSymbols(t *testing.T) {
	strtab, offs := stringTable("a_rather_long_symbol_name", "another_long_one")
	var aux AuxRecord
	for i := range aux {
		aux[i] = 0xaa
	}
	obj := testObject{
		header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{{Name: ".text"}},
		symbols: [][SymbolSize]byte{
			symbolRecord(t, shortName(t, ".text"), 0, 1, IMAGE_SYM_CLASS_STATIC, 1),
			aux,
			symbolRecord(t, LongSymbolName(offs[0]), 0x10, 1, IMAGE_SYM_CLASS_EXTERNAL, 0),
			symbolRecord(t, shortName(t, "main"), 0, 1, IMAGE_SYM_CLASS_EXTERNAL, 0),
			symbolRecord(t, LongSymbolName(offs[1]), 0, IMAGE_SYM_UNDEFINED, IMAGE_SYM_CLASS_EXTERNAL, 0),
		},
		strtab: strtab,
	}
	f, err := Parse(obj.build(t))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		name  string
		index int
		aux   int
	}{
		{".text", 0, 1},
		{"a_rather_long_symbol_name", 2, 0},
		{"main", 3, 0},
		{"another_long_one", 4, 0},
	}
	if len(f.Symbols) != len(want) {
		t.Fatalf("len(Symbols) = %d, want %d", len(f.Symbols), len(want))
	}
	for i, w := range want {
		s := f.Symbols[i]
		if s.Name != w.name || s.Index != w.index || len(s.Aux) != w.aux {
			t.Errorf("Symbols[%d] = {%q %d aux=%d}, want {%q %d aux=%d}", i, s.Name, s.Index, len(s.Aux), w.name, w.index, w.aux)
		}
	}
	if f.Symbols[0].Aux[0] != aux {
		t.Errorf("aux record = %x, want %x", f.Symbols[0].Aux[0], aux)
	}
	if f.NumAux() != 1 {
		t.Errorf("NumAux() = %d, want 1", f.NumAux())
	}
	if got := f.SectionName(f.Symbols[1].Entry.SectionNumber); got != ".text" {
		t.Errorf("SectionName() = %q, want .text", got)
	}
	if got := f.SectionName(f.Symbols[3].Entry.SectionNumber); got != "UNDEF" {
		t.Errorf("SectionName() = %q, want UNDEF", got)
	}
	if size, ok := f.StringTableSize(); !ok || size != uint32(len(strtab)) {
		t.Errorf("StringTableSize() = %d, %v, want %d", size, ok, len(strtab))
	}
}

func TestStringTableOffset(t *testing.T) {
	strtab := []byte("zero\x00")
	obj := testObject{
		header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{{Name: ".text"}, {Name: ".data"}},
		symbols: [][SymbolSize]byte{
			symbolRecord(t, shortName(t, "a"), 0, 1, IMAGE_SYM_CLASS_STATIC, 0),
			symbolRecord(t, LongSymbolName(0), 0, 1, IMAGE_SYM_CLASS_STATIC, 0),
			symbolRecord(t, LongSymbolName(2), 0, 1, IMAGE_SYM_CLASS_STATIC, 0),
		},
		strtab: strtab,
	}
	data := obj.build(t)
	f, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	want := uint64(FileHeaderSize+2*SectionHeaderSize) + 3*SymbolSize
	if f.StringTableOffset != want {
		t.Errorf("StringTableOffset = %d, want %d", f.StringTableOffset, want)
	}
	if f.Symbols[1].Name != "zero" {
		t.Errorf("offset 0 name = %q, want %q", f.Symbols[1].Name, "zero")
	}
	if f.Symbols[2].Name != "ro" {
		t.Errorf("offset 2 name = %q, want %q", f.Symbols[2].Name, "ro")
	}
}

func TestParseSymbolsAuxRunTruncated(t *testing.T) {
	tests := []struct {
		name  string
		count uint32
		recs  int
	}{
		// header claims 2 records but the primary wants 2 aux after it
		{name: "count ends mid run", count: 2, recs: 2},
		// header claims 3 records but the file ends after 2
		{name: "file ends mid run", count: 3, recs: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syms := [][SymbolSize]byte{
				symbolRecord(t, shortName(t, "func"), 0, 1, IMAGE_SYM_CLASS_FUNCTION, 2),
				{},
			}
			obj := testObject{
				header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64, NumberOfSymbols: tt.count},
				sections: []SectionHeader{{Name: ".text"}},
				symbols:  syms[:tt.recs],
			}
			_, err := Parse(obj.build(t))
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Parse() error = %v, want %v", err, ErrTruncated)
			}
		})
	}
}

func TestParseSymbolsAuxNotNamed(t *testing.T) {
	// aux bytes with an invalid name field must never be resolved
	var aux [SymbolSize]byte
	copy(aux[:], []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0x7f})
	obj := testObject{
		header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{{Name: ".text"}},
		symbols: [][SymbolSize]byte{
			symbolRecord(t, shortName(t, ".file"), 0, IMAGE_SYM_DEBUG, IMAGE_SYM_CLASS_FILE, 1),
			aux,
		},
	}
	f, err := Parse(obj.build(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Symbols) != 1 || len(f.Symbols[0].Aux) != 1 {
		t.Errorf("got %d symbols, want 1 with 1 aux", len(f.Symbols))
	}
}

func TestParseSymbolErrors(t *testing.T) {
	tests := []struct {
		name   string
		symbol func(t *testing.T) [SymbolSize]byte
		strtab []byte
		want   error
	}{
		{
			name: "offset past end",
			symbol: func(t *testing.T) [SymbolSize]byte {
				return symbolRecord(t, LongSymbolName(0x1000), 0, 1, IMAGE_SYM_CLASS_EXTERNAL, 0)
			},
			strtab: []byte{8, 0, 0, 0, 'a', 0, 0, 0},
			want:   ErrInvalidOffset,
		},
		{
			name: "unterminated",
			symbol: func(t *testing.T) [SymbolSize]byte {
				return symbolRecord(t, LongSymbolName(4), 0, 1, IMAGE_SYM_CLASS_EXTERNAL, 0)
			},
			strtab: []byte{7, 0, 0, 0, 'a', 'b', 'c'},
			want:   ErrTruncated,
		},
		{
			name: "invalid utf8",
			symbol: func(t *testing.T) [SymbolSize]byte {
				return symbolRecord(t, LongSymbolName(4), 0, 1, IMAGE_SYM_CLASS_EXTERNAL, 0)
			},
			strtab: []byte{7, 0, 0, 0, 0xc3, 0x28, 0},
			want:   ErrInvalidText,
		},
		{
			name: "invalid short name",
			symbol: func(t *testing.T) [SymbolSize]byte {
				return symbolRecord(t, SymbolName{'o', 'k', 0xff, 0xff}, 0, 1, IMAGE_SYM_CLASS_EXTERNAL, 0)
			},
			want: ErrInvalidText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := testObject{
				header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
				sections: []SectionHeader{{Name: ".text"}},
				symbols:  [][SymbolSize]byte{tt.symbol(t)},
				strtab:   tt.strtab,
			}
			_, err := Parse(obj.build(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseSymbolTableOutOfRange(t *testing.T) {
	data := testObject{header: FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64}}.build(t)
	binary.LittleEndian.PutUint32(data[8:], 0x10000)
	binary.LittleEndian.PutUint32(data[12:], 1)
	_, err := Parse(data)
	if !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("Parse() error = %v, want %v", err, ErrInvalidOffset)
	}
}

func TestParseNoSymbolTable(t *testing.T) {
	data := testObject{
		header:   FileHeader{Machine: IMAGE_FILE_MACHINE_AMD64},
		sections: []SectionHeader{{Name: ".text"}},
	}.build(t)
	f, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Symbols) != 0 {
		t.Errorf("len(Symbols) = %d, want 0", len(f.Symbols))
	}
	if _, ok := f.StringTableSize(); ok {
		t.Error("StringTableSize() ok = true without a symbol table")
	}
}
