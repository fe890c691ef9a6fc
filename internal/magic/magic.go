package magic

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/blacktop/coff2pe/pkg/coff"
)

const (
	MagicMZ      = 0x5a4d // MS-DOS/PE image
	MagicArchive = "!<arch>\n"
)

var knownMachines = map[coff.Machine]bool{
	coff.IMAGE_FILE_MACHINE_UNKNOWN: true,
	coff.IMAGE_FILE_MACHINE_I386:    true,
	coff.IMAGE_FILE_MACHINE_ARM:     true,
	coff.IMAGE_FILE_MACHINE_ARMNT:   true,
	coff.IMAGE_FILE_MACHINE_IA64:    true,
	coff.IMAGE_FILE_MACHINE_AMD64:   true,
	coff.IMAGE_FILE_MACHINE_ARM64:   true,
	coff.IMAGE_FILE_MACHINE_RISCV64: true,
}

// IsCOFF reports whether filePath looks like a COFF object, with a hint when
// it is a PE image or an archive instead
func IsCOFF(filePath string) (bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer f.Close()

	var magic [8]byte
	n, err := io.ReadFull(f, magic[:])
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("failed to read magic: %w", err)
	}
	if n < 2 {
		return false, fmt.Errorf("not a coff object")
	}

	switch {
	case binary.LittleEndian.Uint16(magic[:]) == MagicMZ:
		return false, fmt.Errorf("PE image detected (coff2pe reads COFF objects)")
	case n == len(magic) && string(magic[:]) == MagicArchive:
		return false, fmt.Errorf("ar archive detected (extract the objects first)")
	case knownMachines[coff.Machine(binary.LittleEndian.Uint16(magic[:]))]:
		return true, nil
	}

	return false, fmt.Errorf("not a coff object")
}
