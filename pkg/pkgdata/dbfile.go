package pkgdata

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ParseDatabaseTarball parses a .db.tar.gz (or equivalently named .files.tar.gz)
// database tarball, returning one Package per "desc" entry found. A
// standalone "depends" entry is merged into the package its directory names,
// whether it comes before or after that package's "desc" entry. "files"
// entries (as a .files tarball carries) are not parsed; the returned
// Packages carry no file lists.
func ParseDatabaseTarball(r io.Reader, dbName string) (map[string]*Package, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, &Error{Op: "ParseDatabaseTarball", Database: dbName, Err: fmt.Errorf("creating gzip reader: %w", err)}
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	packages := make(map[string]*Package)
	// depends entries are merged once every desc entry has been read.
	type pendingDepends struct {
		dir  string
		data []byte
	}
	var pending []pendingDepends

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Op: "ParseDatabaseTarball", Database: dbName, Err: fmt.Errorf("reading tar entry: %w", err)}
		}

		switch {
		case strings.HasSuffix(header.Name, "/desc"):
			pkg, err := parseDescEntry(tarReader)
			if err != nil {
				continue
			}
			pkg.Origin = OriginDatabaseFile
			packages[pkg.Name] = pkg
		case strings.HasSuffix(header.Name, "/depends"):
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, &Error{Op: "ParseDatabaseTarball", Database: dbName, Err: fmt.Errorf("reading depends entry: %w", err)}
			}
			pending = append(pending, pendingDepends{dir: strings.TrimSuffix(header.Name, "/depends"), data: data})
		}
	}
	for _, p := range pending {
		parseDependsEntry(bytes.NewReader(p.data), p.dir, packages)
	}

	return packages, nil
}

// parseDescEntry parses one package's "desc" block, in the same %HEADER%
// scanner style as the sync database's desc files.
func parseDescEntry(r io.Reader) (*Package, error) {
	scanner := bufio.NewScanner(r)
	pkg := NewPackage("")
	info := &PackageInfo{}
	var currentHeader string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			currentHeader = line
			continue
		}

		switch currentHeader {
		case "%NAME%":
			pkg.Name = line
		case "%VERSION%":
			if v, err := ParseVersion(line); err == nil {
				pkg.Version = v
			}
		case "%DESC%":
			pkg.Description = line
		case "%URL%":
			pkg.UpstreamURL = line
		case "%ARCH%":
			info.Arch = line
		case "%BUILDDATE%":
			if val, err := strconv.ParseInt(line, 10, 64); err == nil {
				info.BuildDate = time.Unix(val, 0).UTC()
			}
		case "%PACKAGER%":
			info.Packager = line
		case "%CSIZE%":
			if val, err := strconv.ParseInt(line, 10, 64); err == nil {
				info.Size = val
			}
		case "%FILENAME%":
			info.FileName = line
		case "%LICENSE%":
			pkg.Licenses = append(pkg.Licenses, line)
		case "%GROUPS%":
			pkg.Groups = append(pkg.Groups, line)
		case "%DEPENDS%":
			pkg.Deps = append(pkg.Deps, ParseDependency(line))
		case "%OPTDEPENDS%":
			pkg.OptDeps = append(pkg.OptDeps, ParseDependency(line))
		case "%MAKEDEPENDS%":
			if pkg.SourceInfo == nil {
				pkg.SourceInfo = &SourceInfo{}
			}
			pkg.SourceInfo.MakeDeps = append(pkg.SourceInfo.MakeDeps, ParseDependency(line))
		case "%CHECKDEPENDS%":
			if pkg.SourceInfo == nil {
				pkg.SourceInfo = &SourceInfo{}
			}
			pkg.SourceInfo.CheckDeps = append(pkg.SourceInfo.CheckDeps, ParseDependency(line))
		case "%CONFLICTS%":
			pkg.Conflicts = append(pkg.Conflicts, ParseDependency(line))
		case "%PROVIDES%":
			pkg.Provides = append(pkg.Provides, ParseDependency(line))
		case "%REPLACES%":
			pkg.Replaces = append(pkg.Replaces, ParseDependency(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pkg.Name == "" {
		return nil, fmt.Errorf("desc entry had no %%NAME%%")
	}
	pkg.PackageInfo = info
	return pkg, nil
}

// parseDependsEntry merges a standalone "depends" sub-file (as carried by
// .files tarballs in some layouts) into the already-parsed package for dir.
func parseDependsEntry(r io.Reader, dir string, packages map[string]*Package) {
	name := dir
	if idx := strings.LastIndex(dir, "-"); idx != -1 {
		// dir is "<name>-<version>-<rel>"; desc already gave us the real name
		// keyed in `packages`, so look it up by stripping trailing segments.
		for candidateName := range packages {
			if strings.HasPrefix(dir, candidateName+"-") {
				name = candidateName
				break
			}
		}
	}
	pkg, ok := packages[name]
	if !ok {
		return
	}
	scanner := bufio.NewScanner(r)
	var currentHeader string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			currentHeader = line
			continue
		}
		if currentHeader == "%DEPENDS%" {
			pkg.Deps = append(pkg.Deps, ParseDependency(line))
		}
	}
}
