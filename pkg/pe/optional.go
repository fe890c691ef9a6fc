package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic32Plus identifies a PE32+ optional header
const Magic32Plus uint16 = 0x20b

const (
	NumDirectoryEntries = 16
	// SizeOfOptionalHeader64 includes the 2 byte magic
	SizeOfOptionalHeader64 = 240
)

// DirectoryEntry indexes OptionalHeader64.DataDirectory
type DirectoryEntry int

const (
	IMAGE_DIRECTORY_ENTRY_EXPORT DirectoryEntry = iota
	IMAGE_DIRECTORY_ENTRY_IMPORT
	IMAGE_DIRECTORY_ENTRY_RESOURCE
	IMAGE_DIRECTORY_ENTRY_EXCEPTION
	IMAGE_DIRECTORY_ENTRY_SECURITY
	IMAGE_DIRECTORY_ENTRY_BASERELOC
	IMAGE_DIRECTORY_ENTRY_DEBUG
	IMAGE_DIRECTORY_ENTRY_ARCHITECTURE
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR
	IMAGE_DIRECTORY_ENTRY_TLS
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT
	IMAGE_DIRECTORY_ENTRY_IAT
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR
	IMAGE_DIRECTORY_ENTRY_RESERVED
)

var directoryNames = [NumDirectoryEntries]string{
	"Export Table",
	"Import Table",
	"Resource Table",
	"Exception Table",
	"Certificate Table",
	"Base Relocation Table",
	"Debug",
	"Architecture",
	"Global Ptr",
	"TLS Table",
	"Load Config Table",
	"Bound Import",
	"IAT",
	"Delay Import Descriptor",
	"CLR Runtime Header",
	"Reserved",
}

func (d DirectoryEntry) String() string {
	if d >= 0 && int(d) < len(directoryNames) {
		return directoryNames[d]
	}
	return fmt.Sprintf("DirectoryEntry(%d)", int(d))
}

const (
	IMAGE_SUBSYSTEM_UNKNOWN     uint16 = 0
	IMAGE_SUBSYSTEM_NATIVE      uint16 = 1
	IMAGE_SUBSYSTEM_WINDOWS_GUI uint16 = 2
	IMAGE_SUBSYSTEM_WINDOWS_CUI uint16 = 3
)

// DataDirectory locates an image feature table
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// OptionalHeader64 is the PE32+ optional header without its leading magic
type OptionalHeader64 struct {
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [NumDirectoryEntries]DataDirectory
}

// WriteTo writes the PE32+ magic followed by the header fields.
// NumberOfRvaAndSizes is always written as 16.
func (o OptionalHeader64) WriteTo(w io.Writer) (int64, error) {
	data, err := o.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write optional header: %w", err)
	}
	return int64(n), nil
}

// MarshalBinary encodes the magic and header
func (o OptionalHeader64) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SizeOfOptionalHeader64)
	o.NumberOfRvaAndSizes = NumDirectoryEntries
	if err := binary.Write(&buf, binary.LittleEndian, Magic32Plus); err != nil {
		return nil, fmt.Errorf("failed to encode optional header magic: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, o); err != nil {
		return nil, fmt.Errorf("failed to encode optional header: %w", err)
	}
	return buf.Bytes(), nil
}
