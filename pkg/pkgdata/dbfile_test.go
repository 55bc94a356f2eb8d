package pkgdata

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"
)

func buildTestDatabaseTarball(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0644}); err != nil {
			t.Fatalf("writing header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing content for %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

func TestParseDatabaseTarball(t *testing.T) {
	desc := "%NAME%\nbash\n%VERSION%\n5.2-1\n%DESC%\nthe bourne again shell\n%ARCH%\nx86_64\n%DEPENDS%\nglibc\n%LICENSE%\nGPL3\n"
	data := buildTestDatabaseTarball(t, map[string]string{"bash-5.2-1/desc": desc})

	packages, err := ParseDatabaseTarball(bytes.NewReader(data), "core")
	if err != nil {
		t.Fatalf("ParseDatabaseTarball: %v", err)
	}
	pkg, ok := packages["bash"]
	if !ok {
		t.Fatal("expected to find parsed package 'bash'")
	}
	if pkg.Version.String() != "5.2-1" {
		t.Errorf("Version = %q, want %q", pkg.Version.String(), "5.2-1")
	}
	if pkg.Origin != OriginDatabaseFile {
		t.Errorf("Origin = %v, want OriginDatabaseFile", pkg.Origin)
	}
	if pkg.PackageInfo == nil || pkg.PackageInfo.Arch != "x86_64" {
		t.Fatalf("expected PackageInfo.Arch to be x86_64, got %+v", pkg.PackageInfo)
	}
	if len(pkg.Deps) != 1 || pkg.Deps[0].Name != "glibc" {
		t.Fatalf("expected a single glibc dependency, got %v", pkg.Deps)
	}
}

func TestParseDatabaseTarballMergesStandaloneDependsFile(t *testing.T) {
	desc := "%NAME%\nzlib\n%VERSION%\n1.3-1\n%ARCH%\nx86_64\n"
	depends := "%DEPENDS%\nglibc\n"
	data := buildTestDatabaseTarball(t, map[string]string{
		"zlib-1.3-1/desc":    desc,
		"zlib-1.3-1/depends": depends,
	})

	packages, err := ParseDatabaseTarball(bytes.NewReader(data), "core")
	if err != nil {
		t.Fatalf("ParseDatabaseTarball: %v", err)
	}
	pkg, ok := packages["zlib"]
	if !ok {
		t.Fatal("expected to find parsed package 'zlib'")
	}
	if len(pkg.Deps) != 1 || pkg.Deps[0].Name != "glibc" {
		t.Fatalf("expected the standalone depends file to be merged in, got %v", pkg.Deps)
	}
}
