package pe

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
)

// MSDOSStub is a DOS header and "cannot be run in DOS mode" program followed by
// the PE signature the DOS header's e_lfanew points at
//
//go:embed msdos-stub.bin
var MSDOSStub []byte

const (
	dosMagic      = 0x5a4d // MZ
	lfanewOffset  = 0x3c
	PESignature   = "PE\x00\x00"
	minStubLength = lfanewOffset + 4
)

var ErrInvalidStub = errors.New("invalid MS-DOS stub")

// ValidateStub checks stub starts with an MZ header whose e_lfanew points at a
// PE signature in the last four bytes
func ValidateStub(stub []byte) error {
	if len(stub) < minStubLength+len(PESignature) {
		return fmt.Errorf("%w: %d bytes is too short", ErrInvalidStub, len(stub))
	}
	if binary.LittleEndian.Uint16(stub) != dosMagic {
		return fmt.Errorf("%w: bad magic %#04x", ErrInvalidStub, binary.LittleEndian.Uint16(stub))
	}
	lfanew := binary.LittleEndian.Uint32(stub[lfanewOffset:])
	if int(lfanew) != len(stub)-len(PESignature) {
		return fmt.Errorf("%w: e_lfanew %#x does not point at the end of the stub (%#x)", ErrInvalidStub, lfanew, len(stub)-len(PESignature))
	}
	if string(stub[lfanew:]) != PESignature {
		return fmt.Errorf("%w: missing PE signature", ErrInvalidStub)
	}
	return nil
}
