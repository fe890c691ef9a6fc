package pe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/blacktop/coff2pe/pkg/coff"
)

const (
	DefaultStackReserve uint64 = 1 << 20
	DefaultStackCommit  uint64 = 4 << 10
	DefaultAlignment    uint32 = 8
)

// Config holds the values of the optional header that can be changed
type Config struct {
	StackReserve uint64
	StackCommit  uint64
}

// DefaultConfig returns a 1MiB stack reserve and 4KiB commit
func DefaultConfig() Config {
	return Config{
		StackReserve: DefaultStackReserve,
		StackCommit:  DefaultStackCommit,
	}
}

// Image is a header-only PE32+ image: stub, COFF header and optional header.
// It carries no sections or symbols.
type Image struct {
	Stub           []byte
	FileHeader     coff.FileHeader
	OptionalHeader OptionalHeader64
}

// NewImage builds an empty amd64 console image header
func NewImage(stub []byte, conf Config) (*Image, error) {
	if err := ValidateStub(stub); err != nil {
		return nil, err
	}
	if conf.StackCommit > conf.StackReserve {
		return nil, fmt.Errorf("stack commit %#x is larger than stack reserve %#x", conf.StackCommit, conf.StackReserve)
	}
	return &Image{
		Stub: stub,
		FileHeader: coff.FileHeader{
			Machine:              coff.IMAGE_FILE_MACHINE_AMD64,
			SizeOfOptionalHeader: SizeOfOptionalHeader64,
			Characteristics:      coff.IMAGE_FILE_EXECUTABLE_IMAGE,
		},
		OptionalHeader: OptionalHeader64{
			MajorLinkerVersion:          1,
			MinorLinkerVersion:          1,
			SectionAlignment:            DefaultAlignment,
			FileAlignment:               DefaultAlignment,
			MajorOperatingSystemVersion: 1,
			MinorOperatingSystemVersion: 1,
			MajorImageVersion:           1,
			MinorImageVersion:           1,
			MajorSubsystemVersion:       1,
			MinorSubsystemVersion:       1,
			Subsystem:                   IMAGE_SUBSYSTEM_WINDOWS_CUI,
			SizeOfStackReserve:          conf.StackReserve,
			SizeOfStackCommit:           conf.StackCommit,
			NumberOfRvaAndSizes:         NumDirectoryEntries,
		},
	}, nil
}

// Size returns the number of bytes WriteTo produces
func (i *Image) Size() int {
	return len(i.Stub) + coff.FileHeaderSize + SizeOfOptionalHeader64
}

// WriteTo writes the stub, file header and optional header to w
func (i *Image) WriteTo(w io.Writer) (int64, error) {
	var total int64

	n, err := w.Write(i.Stub)
	total += int64(n)
	if err != nil {
		return total, fmt.Errorf("failed to write MS-DOS stub: %w", err)
	}

	hn, err := i.FileHeader.WriteTo(w)
	total += hn
	if err != nil {
		return total, err
	}

	on, err := i.OptionalHeader.WriteTo(w)
	total += on
	if err != nil {
		return total, err
	}

	return total, nil
}

// Bytes returns the encoded image
func (i *Image) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(i.Size())
	if _, err := i.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
