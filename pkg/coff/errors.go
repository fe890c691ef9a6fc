package coff

import "errors"

var (
	ErrTruncated                 = errors.New("truncated coff data")
	ErrInvalidText               = errors.New("invalid text")
	ErrInvalidOffset             = errors.New("offset out of range")
	ErrUnsupportedMachine        = errors.New("unsupported machine type")
	ErrUnsupportedOptionalHeader = errors.New("coff object has optional header")
	ErrNameTooLong               = errors.New("name longer than 8 bytes")
	ErrLongName                  = errors.New("symbol name is a string table reference")
)
