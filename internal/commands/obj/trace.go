package obj

import (
	"fmt"
	"io"
	"strings"

	"github.com/blacktop/coff2pe/internal/colors"
	"github.com/blacktop/coff2pe/internal/utils"
	"github.com/blacktop/coff2pe/pkg/coff"
	"github.com/dustin/go-humanize"
)

var (
	colorHeader  = colors.Header().SprintFunc()
	colorSection = colors.Section().SprintFunc()
	colorSymbol  = colors.Symbol().SprintfFunc()
	colorAux     = colors.Aux().SprintFunc()
	colorOffset  = colors.Offset().SprintfFunc()
	colorFlags   = colors.Flags().SprintFunc()
	colorClass   = colors.Class().SprintFunc()
	colorError   = colors.Error().SprintfFunc()
)

const (
	symPrefix = "sym:"
	auxPrefix = "AUX"
	auxIndent = 28
)

// Tracer writes a human readable line for every decoded record
type Tracer struct {
	w       io.Writer
	hexdump bool
}

// NewTracer returns a Tracer writing to w; a nil w discards the trace
func NewTracer(w io.Writer, hexdump bool) *Tracer {
	if w == nil {
		w = io.Discard
	}
	return &Tracer{w: w, hexdump: hexdump}
}

func (t *Tracer) FileHeader(path string, h coff.FileHeader) {
	fmt.Fprintf(t.w, "%s %s\n", colorHeader("COFF"), path)
	for _, line := range strings.Split(strings.TrimSuffix(h.String(), "\n"), "\n")[1:] {
		fmt.Fprintln(t.w, line)
	}
}

func (t *Tracer) Section(i int, s *coff.SectionHeader) {
	fmt.Fprintf(t.w, "%s %-8s vaddr=%#x vsize=%#x raw=%s@%#x relocs=%d@%#x lines=%d@%#x %s\n",
		colorOffset("section[%d]", i+1),
		colorSection(s.Name),
		s.VirtualAddress,
		s.VirtualSize,
		humanize.IBytes(uint64(s.SizeOfRawData)),
		s.PointerToRawData,
		s.NumberOfRelocations,
		s.PointerToRelocations,
		s.NumberOfLineNumbers,
		s.PointerToLineNumbers,
		colorFlags(s.Characteristics),
	)
}

func (t *Tracer) Symbol(f *coff.File, s *coff.Sym) {
	kind := ""
	if s.Entry.Type.IsFunction() {
		kind = " func"
	}
	fmt.Fprintf(t.w, "%s %s value=%#08x sect=%s type=%#04x%s class=%s aux=%d\n",
		symPrefix,
		colorSymbol("%-20s", s.Name),
		s.Entry.Value,
		f.SectionName(s.Entry.SectionNumber),
		uint16(s.Entry.Type),
		kind,
		colorClass(s.Entry.StorageClass),
		s.Entry.NumberOfAuxSymbols,
	)
	for i, aux := range s.Aux {
		t.Aux(s.Offset+uint64(i+1)*coff.SymbolSize, aux)
	}
}

func (t *Tracer) Aux(offset uint64, aux coff.AuxRecord) {
	if t.hexdump {
		fmt.Fprintf(t.w, "%s%s\n", strings.Repeat(" ", auxIndent), colorAux(auxPrefix))
		fmt.Fprint(t.w, utils.HexDump(aux[:], offset))
		return
	}
	fmt.Fprintf(t.w, "%s%s % x\n", strings.Repeat(" ", auxIndent), colorAux(auxPrefix), aux[:])
}

// File traces the sections and symbols of a decoded object
func (t *Tracer) File(f *coff.File) {
	for i, s := range f.Sections {
		t.Section(i, s)
	}
	for _, s := range f.Symbols {
		t.Symbol(f, s)
	}
}
