package utils

import (
	"fmt"
	"strings"

	"github.com/blacktop/coff2pe/internal/colors"
)

var colorOffset = colors.ItalicFaint().SprintFunc()

func toChar(b byte) byte {
	if b < 32 || b > 126 {
		return '.'
	}
	return b
}

// HexDump returns data formatted like `hexdump -C`, with each line's offset starting at vaddr
func HexDump(data []byte, vaddr uint64) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow((1 + ((len(data) - 1) / 16)) * 79)

	for line := 0; line < len(data); line += 16 {
		end := min(line+16, len(data))
		chunk := data[line:end]

		sb.WriteString(colorOffset(fmt.Sprintf("%08x", vaddr+uint64(line))))
		sb.WriteString("  ")
		for i := 0; i < 16; i++ {
			if i < len(chunk) {
				fmt.Fprintf(&sb, "%02x ", chunk[i])
			} else {
				sb.WriteString("   ")
			}
			if i == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")
		for _, b := range chunk {
			sb.WriteByte(toChar(b))
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}
