package obj

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/blacktop/coff2pe/pkg/coff"
	"github.com/dustin/go-humanize"
)

// InfoConfig selects what Info prints. With none of Header, Sections or Symbols set everything is printed.
type InfoConfig struct {
	Header   bool
	Sections bool
	Symbols  bool
	Hex      bool
	JSON     bool
	Color    bool
	Out      io.Writer
}

func (c *InfoConfig) all() bool {
	return !c.Header && !c.Sections && !c.Symbols
}

type headerJSON struct {
	Machine              string `json:"machine"`
	NumberOfSections     uint16 `json:"number_of_sections"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	PointerToSymbolTable uint32 `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32 `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16 `json:"size_of_optional_header"`
	Characteristics      string `json:"characteristics"`
	StringTableOffset    uint64 `json:"string_table_offset"`
	StringTableSize      uint32 `json:"string_table_size,omitempty"`
}

type sectionJSON struct {
	Name                 string `json:"name"`
	VirtualSize          uint32 `json:"virtual_size"`
	VirtualAddress       uint32 `json:"virtual_address"`
	SizeOfRawData        uint32 `json:"size_of_raw_data"`
	PointerToRawData     uint32 `json:"pointer_to_raw_data"`
	PointerToRelocations uint32 `json:"pointer_to_relocations"`
	PointerToLineNumbers uint32 `json:"pointer_to_line_numbers"`
	NumberOfRelocations  uint16 `json:"number_of_relocations"`
	NumberOfLineNumbers  uint16 `json:"number_of_line_numbers"`
	Alignment            uint32 `json:"alignment,omitempty"`
	Characteristics      string `json:"characteristics"`
}

type symbolJSON struct {
	Index         int      `json:"index"`
	Name          string   `json:"name"`
	Value         uint32   `json:"value"`
	Section       string   `json:"section"`
	Type          uint16   `json:"type"`
	StorageClass  string   `json:"storage_class"`
	NumberOfAux   uint8    `json:"number_of_aux_symbols"`
	AuxRecordsHex []string `json:"aux,omitempty"`
}

type fileJSON struct {
	Path     string        `json:"path"`
	Header   *headerJSON   `json:"header,omitempty"`
	Sections []sectionJSON `json:"sections,omitempty"`
	Symbols  []symbolJSON  `json:"symbols,omitempty"`
}

func toJSON(path string, f *coff.File, conf *InfoConfig) fileJSON {
	out := fileJSON{Path: path}
	if conf.all() || conf.Header {
		size, _ := f.StringTableSize()
		out.Header = &headerJSON{
			Machine:              f.Machine.String(),
			NumberOfSections:     f.NumberOfSections,
			TimeDateStamp:        f.TimeDateStamp,
			PointerToSymbolTable: f.PointerToSymbolTable,
			NumberOfSymbols:      f.NumberOfSymbols,
			SizeOfOptionalHeader: f.SizeOfOptionalHeader,
			Characteristics:      f.Characteristics.String(),
			StringTableOffset:    f.StringTableOffset,
			StringTableSize:      size,
		}
	}
	if conf.all() || conf.Sections {
		for _, s := range f.Sections {
			out.Sections = append(out.Sections, sectionJSON{
				Name:                 s.Name,
				VirtualSize:          s.VirtualSize,
				VirtualAddress:       s.VirtualAddress,
				SizeOfRawData:        s.SizeOfRawData,
				PointerToRawData:     s.PointerToRawData,
				PointerToRelocations: s.PointerToRelocations,
				PointerToLineNumbers: s.PointerToLineNumbers,
				NumberOfRelocations:  s.NumberOfRelocations,
				NumberOfLineNumbers:  s.NumberOfLineNumbers,
				Alignment:            s.Characteristics.Alignment(),
				Characteristics:      s.Characteristics.String(),
			})
		}
	}
	if conf.all() || conf.Symbols {
		for _, s := range f.Symbols {
			sj := symbolJSON{
				Index:        s.Index,
				Name:         s.Name,
				Value:        s.Entry.Value,
				Section:      f.SectionName(s.Entry.SectionNumber),
				Type:         uint16(s.Entry.Type),
				StorageClass: s.Entry.StorageClass.String(),
				NumberOfAux:  s.Entry.NumberOfAuxSymbols,
			}
			for _, aux := range s.Aux {
				sj.AuxRecordsHex = append(sj.AuxRecordsHex, fmt.Sprintf("%x", aux[:]))
			}
			out.Symbols = append(out.Symbols, sj)
		}
	}
	return out
}

// Info prints the decoded contents of the object at path
func Info(path string, conf *InfoConfig) error {
	f, err := coff.Open(path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if conf.JSON {
		dat, err := json.MarshalIndent(toJSON(path, f, conf), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		if conf.Color {
			return quick.Highlight(conf.Out, string(dat)+"\n", "json", "terminal256", "nord")
		}
		_, err = fmt.Fprintln(conf.Out, string(dat))
		return err
	}

	if conf.all() || conf.Header {
		fmt.Fprint(conf.Out, f.FileHeader.String())
		fmt.Fprintf(conf.Out, "  StringTable:        %#x", f.StringTableOffset)
		if size, ok := f.StringTableSize(); ok {
			fmt.Fprintf(conf.Out, " (%s)", humanize.IBytes(uint64(size)))
		}
		fmt.Fprintln(conf.Out)
		fmt.Fprintln(conf.Out)
	}

	if (conf.all() || conf.Sections) && len(f.Sections) > 0 {
		fmt.Fprintln(conf.Out, colorHeader("Sections:"))
		w := tabwriter.NewWriter(conf.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  #\tName\tVSize\tVAddr\tRawSize\tRawPtr\tRelocs\tAlign\tFlags")
		for i, s := range f.Sections {
			fmt.Fprintf(w, "  %d\t%s\t%#x\t%#x\t%#x\t%#x\t%d\t%d\t%s\n",
				i+1,
				s.Name,
				s.VirtualSize,
				s.VirtualAddress,
				s.SizeOfRawData,
				s.PointerToRawData,
				s.NumberOfRelocations,
				s.Characteristics.Alignment(),
				s.Characteristics,
			)
		}
		w.Flush()
		fmt.Fprintln(conf.Out)
	}

	if (conf.all() || conf.Symbols) && len(f.Symbols) > 0 {
		fmt.Fprintln(conf.Out, colorHeader("Symbols:"))
		tr := NewTracer(conf.Out, conf.Hex)
		for _, s := range f.Symbols {
			tr.Symbol(f, s)
		}
	}

	return nil
}
