package archive

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"testing"
)

func TestExtractLibraryInfoRejectsUnrecognizedFormat(t *testing.T) {
	r := bytes.NewReader([]byte("not a binary"))
	_, _, err := ExtractLibraryInfo(r, int64(r.Len()), "")
	if err == nil {
		t.Fatal("expected an error for a buffer that is neither ELF nor PE")
	}
}

func TestExtractELFStaticallyLinkedHasNoRequires(t *testing.T) {
	f := &elf.File{FileHeader: elf.FileHeader{Machine: elf.EM_X86_64}}
	provides, requires, err := extractELF(f)
	if err != nil {
		t.Fatalf("extractELF: %v", err)
	}
	if len(provides) != 0 || len(requires) != 0 {
		t.Fatalf("expected no provides/requires without a dynamic section, got %v / %v", provides, requires)
	}
}

func TestElfMachineTag(t *testing.T) {
	cases := []struct {
		m    elf.Machine
		want string
	}{
		{elf.EM_X86_64, "x86_64"},
		{elf.EM_386, "i386"},
		{elf.EM_AARCH64, "aarch64"},
		{elf.EM_ARM, "arm"},
	}
	for _, c := range cases {
		if got := elfMachineTag(c.m); got != c.want {
			t.Errorf("elfMachineTag(%v) = %q, want %q", c.m, got, c.want)
		}
	}
}

func TestPeMachineTag(t *testing.T) {
	cases := []struct {
		m    uint16
		want string
	}{
		{pe.IMAGE_FILE_MACHINE_AMD64, "x86_64"},
		{pe.IMAGE_FILE_MACHINE_I386, "i386"},
		{pe.IMAGE_FILE_MACHINE_ARM64, "aarch64"},
		{0x9999, "unknown"},
	}
	for _, c := range cases {
		if got := peMachineTag(c.m); got != c.want {
			t.Errorf("peMachineTag(%#x) = %q, want %q", c.m, got, c.want)
		}
	}
}

func TestPeExportNameWithoutEdataSection(t *testing.T) {
	f := &pe.File{FileHeader: pe.FileHeader{Machine: pe.IMAGE_FILE_MACHINE_AMD64}}
	if got := peExportName(f); got != "" {
		t.Errorf("peExportName() = %q, want empty string when no .edata section is present", got)
	}
}

func TestExtractPEFallsBackToImportedLibraries(t *testing.T) {
	f := &pe.File{FileHeader: pe.FileHeader{Machine: pe.IMAGE_FILE_MACHINE_AMD64}}
	provides, requires, err := extractPE(f, "")
	if err != nil {
		t.Fatalf("extractPE: %v", err)
	}
	if len(provides) != 0 {
		t.Errorf("expected no provides without an export directory, got %v", provides)
	}
	if requires != nil {
		t.Errorf("expected no requires for a file with no import directory, got %v", requires)
	}
}

func TestExtractPEFallsBackToFileNameWhenNoExportDirectory(t *testing.T) {
	f := &pe.File{FileHeader: pe.FileHeader{Machine: pe.IMAGE_FILE_MACHINE_AMD64}}
	provides, _, err := extractPE(f, "foo.dll")
	if err != nil {
		t.Fatalf("extractPE: %v", err)
	}
	if len(provides) != 1 || provides[0].Soname != "foo.dll" {
		t.Fatalf("provides = %v, want a single entry falling back to the file name", provides)
	}
}
