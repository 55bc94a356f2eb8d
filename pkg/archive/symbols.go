package archive

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"fmt"
	"io"
	"strings"
)

// LibraryRef is one soname a binary either exports (when it's the SONAME of
// the binary itself) or imports (when it appears in the binary's dynamic
// needed/import-directory list), tagged with the ABI that produced it so
// two binaries for different architectures never collide under the same
// LibraryID (see pkgdata.NewLibraryID).
type LibraryRef struct {
	Format  string // "elf" or "pe"
	Machine string
	Soname  string
}

// ExtractLibraryInfo reads a single binary file's header and reports both
// what it provides (its own SONAME, for shared libraries) and what it
// requires (the sonames/DLL names it's linked against), the way the
// original's processDllsReferencedByImportLibs and the ELF-side
// addDepsAndProvidesFromContainedFile walk a package's binaries.
// fallbackName is used as a PE binary's provided name, since peExportName
// never resolves one from the export directory; callers pass the archive
// entry's own file name
// so the provided soname still resolves to something other than empty.
//
// It needs random access (ReaderAt) because both debug/elf and debug/pe
// seek around the file rather than streaming it, so callers first buffer
// an archive entry's bytes before calling this.
func ExtractLibraryInfo(r io.ReaderAt, size int64, fallbackName string) (provides []LibraryRef, requires []LibraryRef, err error) {
	if elfFile, elfErr := elf.NewFile(r); elfErr == nil {
		defer elfFile.Close()
		return extractELF(elfFile)
	}
	if peFile, peErr := pe.NewFile(r); peErr == nil {
		defer peFile.Close()
		return extractPE(peFile, fallbackName)
	}
	return nil, nil, fmt.Errorf("archive: not a recognized ELF or PE binary")
}

func extractELF(f *elf.File) (provides, requires []LibraryRef, err error) {
	machine := elfMachineTag(f.Machine)
	if soname, err := f.DynString(elf.DT_SONAME); err == nil && len(soname) > 0 {
		provides = append(provides, LibraryRef{Format: "elf", Machine: machine, Soname: soname[0]})
	}
	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		// DT_NEEDED absent (e.g. statically linked) isn't a failure; it just
		// means this binary requires nothing.
		return provides, requires, nil
	}
	for _, soname := range needed {
		requires = append(requires, LibraryRef{Format: "elf", Machine: machine, Soname: soname})
	}
	return provides, requires, nil
}

func elfMachineTag(m elf.Machine) string {
	switch m {
	case elf.EM_X86_64:
		return "x86_64"
	case elf.EM_386:
		return "i386"
	case elf.EM_AARCH64:
		return "aarch64"
	case elf.EM_ARM:
		return "arm"
	default:
		return m.String()
	}
}

func extractPE(f *pe.File, fallbackName string) (provides, requires []LibraryRef, err error) {
	machine := peMachineTag(f.Machine)
	exportDLLName := peExportName(f)
	if exportDLLName == "" {
		exportDLLName = fallbackName
	}
	if exportDLLName != "" {
		provides = append(provides, LibraryRef{Format: "pe", Machine: machine, Soname: exportDLLName})
	}
	symbols, err := f.ImportedSymbols()
	if err != nil {
		return provides, requires, nil
	}
	seen := make(map[string]struct{})
	for _, symbol := range symbols {
		// ImportedSymbols reports each import-directory entry as "function:dll".
		name := symbol[strings.LastIndexByte(symbol, ':')+1:]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		requires = append(requires, LibraryRef{Format: "pe", Machine: machine, Soname: name})
	}
	return provides, requires, nil
}

func peMachineTag(m uint16) string {
	switch m {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x86_64"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "i386"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "aarch64"
	default:
		return "unknown"
	}
}

// peExportName always returns "": it checks for an .edata section of at
// least 16 bytes but does not resolve the export directory's Name RVA, so
// extractPE always falls back to the fallbackName its caller supplied.
func peExportName(f *pe.File) string {
	section := f.Section(".edata")
	if section == nil {
		return ""
	}
	data, err := section.Data()
	if err != nil || len(data) < 16 {
		return ""
	}
	// The export directory's Name RVA sits at offset 12; resolving it fully
	// requires RVA-to-offset translation across all sections, which is more
	// machinery than this best-effort lookup needs.
	_ = bytes.NewReader(data)
	return ""
}
