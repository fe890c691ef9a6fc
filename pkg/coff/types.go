package coff

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

const (
	FileHeaderSize    = 20
	SectionHeaderSize = 40
	SymbolSize        = 18
	NameSize          = 8
)

// Machine is the target machine of an object file
type Machine uint16

const (
	IMAGE_FILE_MACHINE_UNKNOWN Machine = 0x0
	IMAGE_FILE_MACHINE_I386    Machine = 0x14c
	IMAGE_FILE_MACHINE_ARM     Machine = 0x1c0
	IMAGE_FILE_MACHINE_ARMNT   Machine = 0x1c4
	IMAGE_FILE_MACHINE_IA64    Machine = 0x200
	IMAGE_FILE_MACHINE_AMD64   Machine = 0x8664
	IMAGE_FILE_MACHINE_ARM64   Machine = 0xaa64
	IMAGE_FILE_MACHINE_RISCV64 Machine = 0x5064
)

func (m Machine) String() string {
	switch m {
	case IMAGE_FILE_MACHINE_UNKNOWN:
		return "unknown"
	case IMAGE_FILE_MACHINE_I386:
		return "i386"
	case IMAGE_FILE_MACHINE_ARM:
		return "arm"
	case IMAGE_FILE_MACHINE_ARMNT:
		return "armnt"
	case IMAGE_FILE_MACHINE_IA64:
		return "ia64"
	case IMAGE_FILE_MACHINE_AMD64:
		return "amd64"
	case IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	case IMAGE_FILE_MACHINE_RISCV64:
		return "riscv64"
	default:
		return fmt.Sprintf("%#04x", uint16(m))
	}
}

// Characteristics is the file header flag word
type Characteristics uint16

const (
	IMAGE_FILE_RELOCS_STRIPPED         Characteristics = 0x0001
	IMAGE_FILE_EXECUTABLE_IMAGE        Characteristics = 0x0002
	IMAGE_FILE_LINE_NUMS_STRIPPED      Characteristics = 0x0004
	IMAGE_FILE_LOCAL_SYMS_STRIPPED     Characteristics = 0x0008
	IMAGE_FILE_AGGRESSIVE_WS_TRIM      Characteristics = 0x0010
	IMAGE_FILE_LARGE_ADDRESS_AWARE     Characteristics = 0x0020
	IMAGE_FILE_BYTES_REVERSED_LO       Characteristics = 0x0080
	IMAGE_FILE_32BIT_MACHINE           Characteristics = 0x0100
	IMAGE_FILE_DEBUG_STRIPPED          Characteristics = 0x0200
	IMAGE_FILE_REMOVABLE_RUN_FROM_SWAP Characteristics = 0x0400
	IMAGE_FILE_NET_RUN_FROM_SWAP       Characteristics = 0x0800
	IMAGE_FILE_SYSTEM                  Characteristics = 0x1000
	IMAGE_FILE_DLL                     Characteristics = 0x2000
	IMAGE_FILE_UP_SYSTEM_ONLY          Characteristics = 0x4000
	IMAGE_FILE_BYTES_REVERSED_HI       Characteristics = 0x8000
)

var characteristicNames = []struct {
	flag Characteristics
	name string
}{
	{IMAGE_FILE_RELOCS_STRIPPED, "RELOCS_STRIPPED"},
	{IMAGE_FILE_EXECUTABLE_IMAGE, "EXECUTABLE_IMAGE"},
	{IMAGE_FILE_LINE_NUMS_STRIPPED, "LINE_NUMS_STRIPPED"},
	{IMAGE_FILE_LOCAL_SYMS_STRIPPED, "LOCAL_SYMS_STRIPPED"},
	{IMAGE_FILE_AGGRESSIVE_WS_TRIM, "AGGRESSIVE_WS_TRIM"},
	{IMAGE_FILE_LARGE_ADDRESS_AWARE, "LARGE_ADDRESS_AWARE"},
	{IMAGE_FILE_BYTES_REVERSED_LO, "BYTES_REVERSED_LO"},
	{IMAGE_FILE_32BIT_MACHINE, "32BIT_MACHINE"},
	{IMAGE_FILE_DEBUG_STRIPPED, "DEBUG_STRIPPED"},
	{IMAGE_FILE_REMOVABLE_RUN_FROM_SWAP, "REMOVABLE_RUN_FROM_SWAP"},
	{IMAGE_FILE_NET_RUN_FROM_SWAP, "NET_RUN_FROM_SWAP"},
	{IMAGE_FILE_SYSTEM, "SYSTEM"},
	{IMAGE_FILE_DLL, "DLL"},
	{IMAGE_FILE_UP_SYSTEM_ONLY, "UP_SYSTEM_ONLY"},
	{IMAGE_FILE_BYTES_REVERSED_HI, "BYTES_REVERSED_HI"},
}

func (c Characteristics) Has(f Characteristics) bool { return c&f == f }

// Unknown returns the bits that have no named flag
func (c Characteristics) Unknown() Characteristics {
	known := Characteristics(0)
	for _, n := range characteristicNames {
		known |= n.flag
	}
	return c &^ known
}

func (c Characteristics) String() string {
	var flags []string
	for _, n := range characteristicNames {
		if c.Has(n.flag) {
			flags = append(flags, n.name)
		}
	}
	if u := c.Unknown(); u != 0 {
		flags = append(flags, fmt.Sprintf("%#04x", uint16(u)))
	}
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, "|")
}

// FileHeader is the COFF file header found at the start of an object file
type FileHeader struct {
	Machine              Machine
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      Characteristics
}

// StringTableOffset is the absolute offset of the string table, which starts
// right after the last symbol table record
func (h FileHeader) StringTableOffset() uint64 {
	return uint64(h.PointerToSymbolTable) + uint64(h.NumberOfSymbols)*SymbolSize
}

// Validate checks the header describes an object this package can convert
func (h FileHeader) Validate() error {
	if h.Machine != IMAGE_FILE_MACHINE_AMD64 {
		return fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedMachine, h.Machine, IMAGE_FILE_MACHINE_AMD64)
	}
	if h.SizeOfOptionalHeader != 0 {
		return fmt.Errorf("%w: size %d", ErrUnsupportedOptionalHeader, h.SizeOfOptionalHeader)
	}
	return nil
}

// MarshalBinary encodes the header into its 20 byte on-disk layout
func (h FileHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FileHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], uint16(h.Machine))
	binary.LittleEndian.PutUint16(buf[2:], h.NumberOfSections)
	binary.LittleEndian.PutUint32(buf[4:], h.TimeDateStamp)
	binary.LittleEndian.PutUint32(buf[8:], h.PointerToSymbolTable)
	binary.LittleEndian.PutUint32(buf[12:], h.NumberOfSymbols)
	binary.LittleEndian.PutUint16(buf[16:], h.SizeOfOptionalHeader)
	binary.LittleEndian.PutUint16(buf[18:], uint16(h.Characteristics))
	return buf, nil
}

// UnmarshalBinary decodes a header from the first 20 bytes of data
func (h *FileHeader) UnmarshalBinary(data []byte) error {
	if len(data) < FileHeaderSize {
		return fmt.Errorf("%w: file header needs %d bytes, got %d", ErrTruncated, FileHeaderSize, len(data))
	}
	h.Machine = Machine(binary.LittleEndian.Uint16(data[0:]))
	h.NumberOfSections = binary.LittleEndian.Uint16(data[2:])
	h.TimeDateStamp = binary.LittleEndian.Uint32(data[4:])
	h.PointerToSymbolTable = binary.LittleEndian.Uint32(data[8:])
	h.NumberOfSymbols = binary.LittleEndian.Uint32(data[12:])
	h.SizeOfOptionalHeader = binary.LittleEndian.Uint16(data[16:])
	h.Characteristics = Characteristics(binary.LittleEndian.Uint16(data[18:]))
	return nil
}

// WriteTo writes the encoded header to w
func (h FileHeader) WriteTo(w io.Writer) (int64, error) {
	data, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write file header: %w", err)
	}
	return int64(n), nil
}

func (h FileHeader) String() string {
	var sb strings.Builder
	sb.WriteString("COFF Header:\n")
	sb.WriteString(fmt.Sprintf("  Machine:            %s (%#04x)\n", h.Machine, uint16(h.Machine)))
	sb.WriteString(fmt.Sprintf("  Sections:           %d\n", h.NumberOfSections))
	sb.WriteString(fmt.Sprintf("  TimeDateStamp:      %#x\n", h.TimeDateStamp))
	sb.WriteString(fmt.Sprintf("  SymbolTable:        %#x\n", h.PointerToSymbolTable))
	sb.WriteString(fmt.Sprintf("  Symbols:            %d\n", h.NumberOfSymbols))
	sb.WriteString(fmt.Sprintf("  OptionalHeaderSize: %d\n", h.SizeOfOptionalHeader))
	sb.WriteString(fmt.Sprintf("  Characteristics:    %s\n", h.Characteristics))
	return sb.String()
}

// SectionFlags is the section header characteristics word
type SectionFlags uint32

const (
	IMAGE_SCN_TYPE_NO_PAD            SectionFlags = 0x00000008
	IMAGE_SCN_CNT_CODE               SectionFlags = 0x00000020
	IMAGE_SCN_CNT_INITIALIZED_DATA   SectionFlags = 0x00000040
	IMAGE_SCN_CNT_UNINITIALIZED_DATA SectionFlags = 0x00000080
	IMAGE_SCN_LNK_OTHER              SectionFlags = 0x00000100
	IMAGE_SCN_LNK_INFO               SectionFlags = 0x00000200
	IMAGE_SCN_LNK_REMOVE             SectionFlags = 0x00000800
	IMAGE_SCN_LNK_COMDAT             SectionFlags = 0x00001000
	IMAGE_SCN_GPREL                  SectionFlags = 0x00008000
	IMAGE_SCN_MEM_PURGEABLE          SectionFlags = 0x00020000
	IMAGE_SCN_MEM_16BIT              SectionFlags = 0x00020000
	IMAGE_SCN_MEM_LOCKED             SectionFlags = 0x00040000
	IMAGE_SCN_MEM_PRELOAD            SectionFlags = 0x00080000
	IMAGE_SCN_ALIGN_1BYTES           SectionFlags = 0x00100000
	IMAGE_SCN_ALIGN_2BYTES           SectionFlags = 0x00200000
	IMAGE_SCN_ALIGN_4BYTES           SectionFlags = 0x00300000
	IMAGE_SCN_ALIGN_8BYTES           SectionFlags = 0x00400000
	IMAGE_SCN_ALIGN_16BYTES          SectionFlags = 0x00500000
	IMAGE_SCN_ALIGN_32BYTES          SectionFlags = 0x00600000
	IMAGE_SCN_ALIGN_64BYTES          SectionFlags = 0x00700000
	IMAGE_SCN_ALIGN_128BYTES         SectionFlags = 0x00800000
	IMAGE_SCN_ALIGN_256BYTES         SectionFlags = 0x00900000
	IMAGE_SCN_ALIGN_512BYTES         SectionFlags = 0x00A00000
	IMAGE_SCN_ALIGN_1024BYTES        SectionFlags = 0x00B00000
	IMAGE_SCN_ALIGN_2048BYTES        SectionFlags = 0x00C00000
	IMAGE_SCN_ALIGN_4096BYTES        SectionFlags = 0x00D00000
	IMAGE_SCN_ALIGN_8192BYTES        SectionFlags = 0x00E00000
	IMAGE_SCN_LNK_NRELOC_OVFL        SectionFlags = 0x01000000
	IMAGE_SCN_MEM_DISCARDABLE        SectionFlags = 0x02000000
	IMAGE_SCN_MEM_NOT_CACHED         SectionFlags = 0x04000000
	IMAGE_SCN_MEM_NOT_PAGED          SectionFlags = 0x08000000
	IMAGE_SCN_MEM_SHARED             SectionFlags = 0x10000000
	IMAGE_SCN_MEM_EXECUTE            SectionFlags = 0x20000000
	IMAGE_SCN_MEM_READ               SectionFlags = 0x40000000
	IMAGE_SCN_MEM_WRITE              SectionFlags = 0x80000000

	IMAGE_SCN_ALIGN_MASK SectionFlags = 0x00F00000
)

// alignment is a 4-bit field, not a set of flags, so it is left out of this table
var sectionFlagNames = []struct {
	flag SectionFlags
	name string
}{
	{IMAGE_SCN_TYPE_NO_PAD, "TYPE_NO_PAD"},
	{IMAGE_SCN_CNT_CODE, "CNT_CODE"},
	{IMAGE_SCN_CNT_INITIALIZED_DATA, "CNT_INITIALIZED_DATA"},
	{IMAGE_SCN_CNT_UNINITIALIZED_DATA, "CNT_UNINITIALIZED_DATA"},
	{IMAGE_SCN_LNK_OTHER, "LNK_OTHER"},
	{IMAGE_SCN_LNK_INFO, "LNK_INFO"},
	{IMAGE_SCN_LNK_REMOVE, "LNK_REMOVE"},
	{IMAGE_SCN_LNK_COMDAT, "LNK_COMDAT"},
	{IMAGE_SCN_GPREL, "GPREL"},
	{IMAGE_SCN_MEM_PURGEABLE, "MEM_PURGEABLE"},
	{IMAGE_SCN_MEM_LOCKED, "MEM_LOCKED"},
	{IMAGE_SCN_MEM_PRELOAD, "MEM_PRELOAD"},
	{IMAGE_SCN_LNK_NRELOC_OVFL, "LNK_NRELOC_OVFL"},
	{IMAGE_SCN_MEM_DISCARDABLE, "MEM_DISCARDABLE"},
	{IMAGE_SCN_MEM_NOT_CACHED, "MEM_NOT_CACHED"},
	{IMAGE_SCN_MEM_NOT_PAGED, "MEM_NOT_PAGED"},
	{IMAGE_SCN_MEM_SHARED, "MEM_SHARED"},
	{IMAGE_SCN_MEM_EXECUTE, "MEM_EXECUTE"},
	{IMAGE_SCN_MEM_READ, "MEM_READ"},
	{IMAGE_SCN_MEM_WRITE, "MEM_WRITE"},
}

func (f SectionFlags) Has(flag SectionFlags) bool { return f&flag == flag }

// Alignment returns the section alignment in bytes, or 0 when the field is unset.
// Field values 1 through 14 map to 1<<(value-1).
func (f SectionFlags) Alignment() uint32 {
	v := uint32(f&IMAGE_SCN_ALIGN_MASK) >> 20
	if v == 0 || v > 14 {
		return 0
	}
	return 1 << (v - 1)
}

// Unknown returns the bits that have neither a named flag nor a valid alignment
func (f SectionFlags) Unknown() SectionFlags {
	known := IMAGE_SCN_ALIGN_MASK
	for _, n := range sectionFlagNames {
		known |= n.flag
	}
	u := f &^ known
	if f&IMAGE_SCN_ALIGN_MASK == IMAGE_SCN_ALIGN_MASK {
		u |= IMAGE_SCN_ALIGN_MASK
	}
	return u
}

func (f SectionFlags) String() string {
	var flags []string
	for _, n := range sectionFlagNames {
		if f.Has(n.flag) {
			flags = append(flags, n.name)
		}
	}
	if a := f.Alignment(); a != 0 {
		flags = append(flags, fmt.Sprintf("ALIGN_%dBYTES", a))
	}
	if u := f.Unknown(); u != 0 {
		flags = append(flags, fmt.Sprintf("%#08x", uint32(u)))
	}
	if len(flags) == 0 {
		return "none"
	}
	return strings.Join(flags, "|")
}

// SectionHeader32 is the on-disk section table record
type SectionHeader32 struct {
	Name                 [NameSize]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      SectionFlags
}

// SectionHeader is a decoded section table record
type SectionHeader struct {
	Name                 string
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      SectionFlags
}

// Encode converts a section header back into its on-disk record
func (s SectionHeader) Encode() (SectionHeader32, error) {
	name, err := EncodeName(s.Name)
	if err != nil {
		return SectionHeader32{}, err
	}
	return SectionHeader32{
		Name:                 name,
		VirtualSize:          s.VirtualSize,
		VirtualAddress:       s.VirtualAddress,
		SizeOfRawData:        s.SizeOfRawData,
		PointerToRawData:     s.PointerToRawData,
		PointerToRelocations: s.PointerToRelocations,
		PointerToLineNumbers: s.PointerToLineNumbers,
		NumberOfRelocations:  s.NumberOfRelocations,
		NumberOfLineNumbers:  s.NumberOfLineNumbers,
		Characteristics:      s.Characteristics,
	}, nil
}

// StorageClass is the symbol storage class
type StorageClass uint8

const (
	IMAGE_SYM_CLASS_END_OF_FUNCTION  StorageClass = 0xff
	IMAGE_SYM_CLASS_NULL             StorageClass = 0
	IMAGE_SYM_CLASS_AUTOMATIC        StorageClass = 1
	IMAGE_SYM_CLASS_EXTERNAL         StorageClass = 2
	IMAGE_SYM_CLASS_STATIC           StorageClass = 3
	IMAGE_SYM_CLASS_REGISTER         StorageClass = 4
	IMAGE_SYM_CLASS_EXTERNAL_DEF     StorageClass = 5
	IMAGE_SYM_CLASS_LABEL            StorageClass = 6
	IMAGE_SYM_CLASS_UNDEFINED_LABEL  StorageClass = 7
	IMAGE_SYM_CLASS_MEMBER_OF_STRUCT StorageClass = 8
	IMAGE_SYM_CLASS_ARGUMENT         StorageClass = 9
	IMAGE_SYM_CLASS_STRUCT_TAG       StorageClass = 10
	IMAGE_SYM_CLASS_MEMBER_OF_UNION  StorageClass = 11
	IMAGE_SYM_CLASS_UNION_TAG        StorageClass = 12
	IMAGE_SYM_CLASS_TYPE_DEFINITION  StorageClass = 13
	IMAGE_SYM_CLASS_UNDEFINED_STATIC StorageClass = 14
	IMAGE_SYM_CLASS_ENUM_TAG         StorageClass = 15
	IMAGE_SYM_CLASS_MEMBER_OF_ENUM   StorageClass = 16
	IMAGE_SYM_CLASS_REGISTER_PARAM   StorageClass = 17
	IMAGE_SYM_CLASS_BIT_FIELD        StorageClass = 18
	IMAGE_SYM_CLASS_BLOCK            StorageClass = 100
	IMAGE_SYM_CLASS_FUNCTION         StorageClass = 101
	IMAGE_SYM_CLASS_END_OF_STRUCT    StorageClass = 102
	IMAGE_SYM_CLASS_FILE             StorageClass = 103
	IMAGE_SYM_CLASS_SECTION          StorageClass = 104
	IMAGE_SYM_CLASS_WEAK_EXTERNAL    StorageClass = 105
	IMAGE_SYM_CLASS_CLR_TOKEN        StorageClass = 107
)

var storageClassNames = map[StorageClass]string{
	IMAGE_SYM_CLASS_END_OF_FUNCTION:  "END_OF_FUNCTION",
	IMAGE_SYM_CLASS_NULL:             "NULL",
	IMAGE_SYM_CLASS_AUTOMATIC:        "AUTOMATIC",
	IMAGE_SYM_CLASS_EXTERNAL:         "EXTERNAL",
	IMAGE_SYM_CLASS_STATIC:           "STATIC",
	IMAGE_SYM_CLASS_REGISTER:         "REGISTER",
	IMAGE_SYM_CLASS_EXTERNAL_DEF:     "EXTERNAL_DEF",
	IMAGE_SYM_CLASS_LABEL:            "LABEL",
	IMAGE_SYM_CLASS_UNDEFINED_LABEL:  "UNDEFINED_LABEL",
	IMAGE_SYM_CLASS_MEMBER_OF_STRUCT: "MEMBER_OF_STRUCT",
	IMAGE_SYM_CLASS_ARGUMENT:         "ARGUMENT",
	IMAGE_SYM_CLASS_STRUCT_TAG:       "STRUCT_TAG",
	IMAGE_SYM_CLASS_MEMBER_OF_UNION:  "MEMBER_OF_UNION",
	IMAGE_SYM_CLASS_UNION_TAG:        "UNION_TAG",
	IMAGE_SYM_CLASS_TYPE_DEFINITION:  "TYPE_DEFINITION",
	IMAGE_SYM_CLASS_UNDEFINED_STATIC: "UNDEFINED_STATIC",
	IMAGE_SYM_CLASS_ENUM_TAG:         "ENUM_TAG",
	IMAGE_SYM_CLASS_MEMBER_OF_ENUM:   "MEMBER_OF_ENUM",
	IMAGE_SYM_CLASS_REGISTER_PARAM:   "REGISTER_PARAM",
	IMAGE_SYM_CLASS_BIT_FIELD:        "BIT_FIELD",
	IMAGE_SYM_CLASS_BLOCK:            "BLOCK",
	IMAGE_SYM_CLASS_FUNCTION:         "FUNCTION",
	IMAGE_SYM_CLASS_END_OF_STRUCT:    "END_OF_STRUCT",
	IMAGE_SYM_CLASS_FILE:             "FILE",
	IMAGE_SYM_CLASS_SECTION:          "SECTION",
	IMAGE_SYM_CLASS_WEAK_EXTERNAL:    "WEAK_EXTERNAL",
	IMAGE_SYM_CLASS_CLR_TOKEN:        "CLR_TOKEN",
}

func (c StorageClass) String() string {
	if name, ok := storageClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%#02x", uint8(c))
}

// SectionNumber is a 1-based index into the section table or one of the reserved values
type SectionNumber int16

const (
	IMAGE_SYM_UNDEFINED SectionNumber = 0
	IMAGE_SYM_ABSOLUTE  SectionNumber = -1
	IMAGE_SYM_DEBUG     SectionNumber = -2
)

func (n SectionNumber) String() string {
	switch n {
	case IMAGE_SYM_UNDEFINED:
		return "UNDEF"
	case IMAGE_SYM_ABSOLUTE:
		return "ABS"
	case IMAGE_SYM_DEBUG:
		return "DEBUG"
	default:
		return fmt.Sprintf("%d", int16(n))
	}
}

// SymbolType is the symbol type word: the low nibble is the base type, the next
// nibble is the complex type
type SymbolType uint16

const IMAGE_SYM_DTYPE_FUNCTION = 2

func (t SymbolType) Base() uint8    { return uint8(t & 0xf) }
func (t SymbolType) Complex() uint8 { return uint8((t >> 4) & 0xf) }
func (t SymbolType) IsFunction() bool {
	return t.Complex() == IMAGE_SYM_DTYPE_FUNCTION
}

// Symbol is the on-disk symbol table record
type Symbol struct {
	Name               SymbolName
	Value              uint32
	SectionNumber      SectionNumber
	Type               SymbolType
	StorageClass       StorageClass
	NumberOfAuxSymbols uint8
}

// AuxRecord is an opaque auxiliary symbol record
type AuxRecord [SymbolSize]byte
