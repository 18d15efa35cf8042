package indexer

import (
	"context"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/dshills/objindex/internal/fingerprint"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// Object formats recognized by the archive indexer.
const (
	FormatELF   = "elf"
	FormatPE    = "pe"
	FormatMachO = "macho"
	FormatRaw   = "raw"
)

// Section describes one section of an object.
type Section struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
}

// ObjectIndex is the index.json member of an archive.
type ObjectIndex struct {
	Object       string    `json:"object"`
	LogicVersion string    `json:"logic_version"`
	Format       string    `json:"format"`
	Arch         string    `json:"arch,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	Sections     []Section `json:"sections,omitempty"`
	SymbolCount  int       `json:"symbol_count"`
	Imports      []string  `json:"imports,omitempty"`

	symbols []string
}

// ArchiveIndexer indexes objects with the standard library's object file
// readers.
type ArchiveIndexer struct {
	fingerprint fingerprint.Func
	logger      *logging.Logger
}

// NewArchiveIndexer creates an ArchiveIndexer. fp must be bound to
// ArchiveLogicVersion.
func NewArchiveIndexer(fp fingerprint.Func, logger *logging.Logger) *ArchiveIndexer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ArchiveIndexer{fingerprint: fp, logger: logger}
}

// IndexObject writes the archive for job.
func (a *ArchiveIndexer) IndexObject(ctx context.Context, job types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Fingerprint before reading: if the object changes underneath us the
	// archive is stale on the next run rather than silently current.
	fp, err := a.fingerprint(job.ObjectPath)
	if err != nil {
		return fmt.Errorf("failed to fingerprint object: %w", err)
	}

	idx, err := Inspect(job.ObjectPath)
	if err != nil {
		return fmt.Errorf("failed to inspect object: %w", err)
	}
	idx.Object = filepath.Base(job.ObjectPath)
	idx.LogicVersion = ArchiveLogicVersion

	if err := ctx.Err(); err != nil {
		return err
	}

	err = writeArchive(job.IndexedPath, fp, func(zw *zip.Writer) error {
		w, err := zw.Create("index.json")
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(idx); err != nil {
			return fmt.Errorf("failed to encode index: %w", err)
		}

		if len(idx.symbols) == 0 {
			return nil
		}
		w, err = zw.Create("symbols.txt")
		if err != nil {
			return err
		}
		for _, s := range idx.symbols {
			if _, err := io.WriteString(w, s+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Debug(ctx, "indexed object",
		zap.String("object", job.ObjectPath),
		zap.String("format", idx.Format),
		zap.Int("sections", len(idx.Sections)),
		zap.Int("symbols", idx.SymbolCount))
	return nil
}

// Inspect reads the object at path. Files no reader recognizes are
// reported as FormatRaw.
func Inspect(path string) (*ObjectIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var idx *ObjectIndex
	if ef, err := elf.NewFile(f); err == nil {
		idx, err = inspectELF(ef)
		if err != nil {
			return nil, err
		}
	} else if pf, err := pe.NewFile(f); err == nil {
		idx, err = inspectPE(pf)
		if err != nil {
			return nil, err
		}
	} else if mf, err := macho.NewFile(f); err == nil {
		idx, err = inspectMachO(mf)
		if err != nil {
			return nil, err
		}
	} else {
		idx = &ObjectIndex{Format: FormatRaw}
	}

	idx.SizeBytes = info.Size()
	idx.SymbolCount = len(idx.symbols)
	return idx, nil
}

func inspectELF(f *elf.File) (*ObjectIndex, error) {
	idx := &ObjectIndex{Format: FormatELF, Arch: f.Machine.String()}
	for _, s := range f.Sections {
		if s.Name == "" {
			continue
		}
		idx.Sections = append(idx.Sections, Section{Name: s.Name, Addr: s.Addr, Size: s.Size})
	}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read symbols: %w", err)
	}
	dyn, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read dynamic symbols: %w", err)
	}
	for _, s := range append(syms, dyn...) {
		if s.Name != "" {
			idx.symbols = append(idx.symbols, s.Name)
		}
	}

	// Statically linked objects have no dynamic section.
	idx.Imports, _ = f.ImportedLibraries()
	return idx, nil
}

func inspectPE(f *pe.File) (*ObjectIndex, error) {
	idx := &ObjectIndex{Format: FormatPE, Arch: fmt.Sprintf("0x%04x", f.FileHeader.Machine)}
	for _, s := range f.Sections {
		idx.Sections = append(idx.Sections, Section{
			Name: s.Name,
			Addr: uint64(s.VirtualAddress),
			Size: uint64(s.Size),
		})
	}
	for _, s := range f.Symbols {
		if s.Name != "" {
			idx.symbols = append(idx.symbols, s.Name)
		}
	}
	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("failed to read imports: %w", err)
	}
	idx.Imports = libs
	return idx, nil
}

func inspectMachO(f *macho.File) (*ObjectIndex, error) {
	idx := &ObjectIndex{Format: FormatMachO, Arch: f.Cpu.String()}
	for _, s := range f.Sections {
		idx.Sections = append(idx.Sections, Section{
			Name: s.Seg + "." + s.Name,
			Addr: s.Addr,
			Size: s.Size,
		})
	}
	if f.Symtab != nil {
		for _, s := range f.Symtab.Syms {
			if s.Name != "" {
				idx.symbols = append(idx.symbols, s.Name)
			}
		}
	}
	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("failed to read imports: %w", err)
	}
	idx.Imports = libs
	return idx, nil
}
