package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func buildTestTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0644, Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("writing header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing content for %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return buf.Bytes()
}

func TestWalkPlainTar(t *testing.T) {
	data := buildTestTar(t, map[string]string{".PKGINFO": "pkgname = bash\n", "usr/bin/bash": "ELF..."})

	var names []string
	err := Walk(bytes.NewReader(data), "bash-5.2-1-x86_64.pkg.tar", func(e Entry) error {
		names = append(names, e.Header.Name)
		_, err := io.ReadAll(e.Reader)
		return err
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %v", names)
	}
}

func TestWalkGzip(t *testing.T) {
	raw := buildTestTar(t, map[string]string{".PKGINFO": "pkgname = zlib\n"})
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	var names []string
	err := Walk(bytes.NewReader(buf.Bytes()), "zlib-1.3-1-x86_64.pkg.tar.gz", func(e Entry) error {
		names = append(names, e.Header.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(names) != 1 || names[0] != ".PKGINFO" {
		t.Fatalf("unexpected entries: %v", names)
	}
}

func TestWalkZstd(t *testing.T) {
	raw := buildTestTar(t, map[string]string{".PKGINFO": "pkgname = glibc\n"})
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	var names []string
	err = Walk(bytes.NewReader(buf.Bytes()), "glibc-2.38-1-x86_64.pkg.tar.zst", func(e Entry) error {
		names = append(names, e.Header.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("unexpected entries: %v", names)
	}
}

func TestWalkSkipsDotPrefixedMetadataExceptTopLevelPkginfo(t *testing.T) {
	data := buildTestTar(t, map[string]string{
		".PKGINFO":  "pkgname = bash\n",
		".INSTALL":  "post_install() { :; }\n",
		"usr/share/doc/bash/README": "docs",
	})

	var names []string
	err := Walk(bytes.NewReader(data), "bash.pkg.tar", func(e Entry) error {
		names = append(names, e.Header.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, n := range names {
		if n == ".INSTALL" {
			t.Error("expected dot-prefixed .INSTALL entry to be skipped")
		}
	}
	if len(names) != 2 {
		t.Fatalf("expected .PKGINFO and the doc file to survive, got %v", names)
	}
}

func TestIsPkgInfoFileOrBinary(t *testing.T) {
	cases := []struct {
		name string
		typ  byte
		want bool
	}{
		{".PKGINFO", tar.TypeReg, true},
		{"usr/bin/bash", tar.TypeReg, true},
		{"usr/lib/libfoo.so.1", tar.TypeReg, true},
		{"usr/share/doc/bash/README", tar.TypeReg, false},
		{"usr/bin/", tar.TypeDir, false},
	}
	for _, c := range cases {
		got := IsPkgInfoFileOrBinary(&tar.Header{Name: c.name, Typeflag: c.typ})
		if got != c.want {
			t.Errorf("IsPkgInfoFileOrBinary(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
