// Package archive walks a binary package's tar contents — regardless of
// whether it's compressed with zstd, xz or gzip — handing each regular
// file's header and bytes to a callback so higher layers (PKGINFO parsing,
// ELF/PE symbol extraction) never have to deal with the compression format
// themselves.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Entry is one file encountered while walking a package archive.
type Entry struct {
	Header *tar.Header
	Reader io.Reader
}

// WalkFunc is called once per archive entry; returning an error aborts the
// walk and is propagated out of Walk.
type WalkFunc func(Entry) error

// Walk decompresses r according to the format implied by fileName's
// extension (.pkg.tar.zst, .pkg.tar.xz, .pkg.tar.gz or an already-plain
// .tar) and invokes fn for every entry, skipping dot-prefixed top-level
// metadata entries the way pacman's own tooling does.
func Walk(r io.Reader, fileName string, fn WalkFunc) error {
	decompressed, closer, err := decompressor(r, fileName)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", fileName, err)
	}
	if closer != nil {
		defer closer()
	}

	tarReader := tar.NewReader(decompressed)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("archive: reading tar entry of %s: %w", fileName, err)
		}
		if strings.HasPrefix(header.Name, ".") && header.Name != ".PKGINFO" {
			continue
		}
		if err := fn(Entry{Header: header, Reader: tarReader}); err != nil {
			return err
		}
	}
	return nil
}

func decompressor(r io.Reader, fileName string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(fileName, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd init: %w", err)
		}
		return dec, dec.Close, nil
	case strings.HasSuffix(fileName, ".xz"):
		dec, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz init: %w", err)
		}
		return dec, nil, nil
	case strings.HasSuffix(fileName, ".gz"), strings.HasSuffix(fileName, ".tar.gz"):
		dec, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip init: %w", err)
		}
		return dec, func() { dec.Close() }, nil
	default:
		return r, nil, nil
	}
}

// IsPkgInfoFileOrBinary reports whether an archive entry is either the
// package's .PKGINFO metadata file or a binary worth scanning for library
// symbols, matching the original's filter over walkThroughArchive results:
// only ELF/PE-shaped regular files and the metadata file are relevant, so
// everything else (docs, configs, scripts) is skipped up front.
func IsPkgInfoFileOrBinary(header *tar.Header) bool {
	if header.Typeflag != tar.TypeReg {
		return false
	}
	if header.Name == ".PKGINFO" {
		return true
	}
	return isLikelyBinaryPath(header.Name)
}

func isLikelyBinaryPath(name string) bool {
	switch {
	case strings.Contains(name, "/bin/"), strings.Contains(name, "/sbin/"),
		strings.Contains(name, "/lib/"), strings.Contains(name, "/lib64/"),
		strings.HasSuffix(name, ".so"), strings.Contains(name, ".so."),
		strings.HasSuffix(name, ".dll"), strings.HasSuffix(name, ".exe"):
		return true
	default:
		return false
	}
}
