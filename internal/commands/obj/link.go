package obj

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/coff2pe/pkg/coff"
	"github.com/blacktop/coff2pe/pkg/pe"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// LinkConfig configures converting COFF objects into PE images
type LinkConfig struct {
	Output string    // overwritten for every object
	Image  pe.Config // optional header settings
	Stub   []byte    // MS-DOS stub, defaults to pe.MSDOSStub
	Trace  io.Writer // receives the decoded records, nil disables tracing
	Hex    bool      // hexdump auxiliary records

	// KeepGoing logs a failed object and moves on to the next one
	KeepGoing bool
}

// Link converts each object in order, stopping at the first failure unless conf.KeepGoing is set
func Link(paths []string, conf *LinkConfig) error {
	var failed int
	for _, path := range paths {
		if err := LinkObject(path, conf); err != nil {
			err = errors.Wrapf(err, "reading %s", path)
			if !conf.KeepGoing {
				return err
			}
			log.WithError(err).Error("Skipping object")
			failed++
		}
	}
	if failed > 0 {
		return errors.New(colorError("%d of %d objects failed", failed, len(paths)))
	}
	return nil
}

// LinkObject decodes the object at path and writes a header-only PE image to conf.Output
func LinkObject(path string, conf *LinkConfig) error {
	stub := conf.Stub
	if stub == nil {
		stub = pe.MSDOSStub
	}
	tr := NewTracer(conf.Trace, conf.Hex)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"file": path,
		"size": humanize.Bytes(uint64(len(data))),
	}).Debug("Parsing COFF object")

	var hdr coff.FileHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return err
	}
	tr.FileHeader(path, hdr)

	if err := hdr.Validate(); err != nil {
		return err
	}

	img, err := pe.NewImage(stub, conf.Image)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	out, err := img.Bytes()
	if err != nil {
		return err
	}

	f, err := coff.Parse(data)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"sections":  len(f.Sections),
		"symbols":   len(f.Symbols),
		"aux":       f.NumAux(),
		"strtab_at": fmt.Sprintf("%#x", f.StringTableOffset),
	}).Debug("Decoded COFF object")
	tr.File(f)

	if err := os.WriteFile(conf.Output, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", conf.Output, err)
	}
	log.WithFields(log.Fields{
		"file":   conf.Output,
		"size":   humanize.Bytes(uint64(len(out))),
		"object": path,
	}).Info("Created PE image")

	return nil
}
