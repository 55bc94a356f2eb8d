package pkgdata

import (
	"fmt"
	"time"
)

// PackageOrigin records where a Package's information was last populated
// from, used to decide what's safe to merge forward across refreshes.
type PackageOrigin int

const (
	OriginUnknown PackageOrigin = iota
	// OriginPackageFileName: only the file name was parsed (e.g. while
	// scanning a local package cache directory for candidates).
	OriginPackageFileName
	// OriginDatabaseFile: populated from a .db tarball's desc/depends/files.
	OriginDatabaseFile
	// OriginPackageContents: populated by walking the binary archive itself
	// (PKGINFO + ELF/PE symbol extraction); the only origin for which
	// LibProvides/LibDepends may be non-empty.
	OriginPackageContents
)

// PackageInfo holds fields that only a binary package (not a source-only
// entry) carries.
type PackageInfo struct {
	Arch      string
	BuildDate time.Time
	Packager  string
	FileName  string
	Size      int64
}

// SourceInfo holds fields specific to source packages (PKGBUILD-derived
// metadata): the architectures it can build for and its build-time-only
// dependency sets.
type SourceInfo struct {
	Archs      []string
	MakeDeps   []Dependency
	CheckDeps  []Dependency
}

// InstallInfo holds fields only meaningful for a package actually present
// in a local install (not used by this server's core, kept for parity with
// the upstream data model that Database entries can round-trip through).
type InstallInfo struct {
	InstalledSize int64
}

// Package is one entry of a repository database: a name, a version, its
// declared dependency/library relationships, and (depending on Origin) the
// deeper binary-level symbol information scraped from its contents.
type Package struct {
	Name         string
	Version      Version
	Description  string
	UpstreamURL  string
	Licenses     []string
	Groups       []string
	Deps         []Dependency
	OptDeps      []Dependency
	Conflicts    []Dependency
	Provides     []Dependency
	Replaces     []Dependency
	LibProvides  map[LibraryID]struct{}
	LibDepends   map[LibraryID]struct{}
	PackageInfo  *PackageInfo
	SourceInfo   *SourceInfo
	InstallInfo  *InstallInfo
	Origin       PackageOrigin
	Timestamp    time.Time
}

// NewPackage returns an empty Package with its library sets initialized.
func NewPackage(name string) *Package {
	return &Package{
		Name:        name,
		LibProvides: make(map[LibraryID]struct{}),
		LibDepends:  make(map[LibraryID]struct{}),
	}
}

// Validate checks the invariants spec.md §3 places on a Package.
func (p *Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("package: name must not be empty")
	}
	if p.Origin != OriginPackageContents && (len(p.LibProvides) > 0 || len(p.LibDepends) > 0) {
		return fmt.Errorf("package %s: libprovides/libdepends populated but origin is not PackageContents", p.Name)
	}
	return nil
}

// ComputeFileName reconstructs the binary package's expected file name from
// name/version/arch when PackageInfo.FileName is unset, following pacman's
// "<name>-<version>-<arch>.pkg.tar.<ext>" convention. The extension is
// always reported as zst since that's the format repo-add/makepkg default
// to on a rolling distribution; callers that need the real on-disk
// extension should prefer PackageInfo.FileName when present.
func (p *Package) ComputeFileName() string {
	if p.PackageInfo != nil && p.PackageInfo.FileName != "" {
		return p.PackageInfo.FileName
	}
	arch := "any"
	if p.PackageInfo != nil && p.PackageInfo.Arch != "" {
		arch = p.PackageInfo.Arch
	}
	return fmt.Sprintf("%s-%s-%s.pkg.tar.zst", p.Name, p.Version.String(), arch)
}

// AddDepsAndProvidesFromOtherPackage merges dependency/library information
// scraped from package contents (other) into p, implementing the Package
// merge rule of spec.md §3: libprovides/libdepends and source-level
// make/check deps are carried forward from other only when p's version and
// build date still match what other was parsed from. Returns false if the
// versions/build dates no longer match (the caller should then discard
// other's contribution rather than apply it).
func (p *Package) AddDepsAndProvidesFromOtherPackage(other *Package) bool {
	if !p.Version.Equal(other.Version) {
		return false
	}
	if p.PackageInfo != nil && other.PackageInfo != nil && !p.PackageInfo.BuildDate.Equal(other.PackageInfo.BuildDate) {
		return false
	}
	for lib := range other.LibProvides {
		p.LibProvides[lib] = struct{}{}
	}
	for lib := range other.LibDepends {
		p.LibDepends[lib] = struct{}{}
	}
	if other.Origin == OriginPackageContents {
		p.Origin = OriginPackageContents
	}
	if other.SourceInfo != nil {
		if p.SourceInfo == nil {
			p.SourceInfo = &SourceInfo{}
		}
		if len(other.SourceInfo.MakeDeps) > 0 {
			p.SourceInfo.MakeDeps = other.SourceInfo.MakeDeps
		}
		if len(other.SourceInfo.CheckDeps) > 0 {
			p.SourceInfo.CheckDeps = other.SourceInfo.CheckDeps
		}
	}
	return true
}

// Equal reports whether p and other carry the same content, for
// Database.UpdatePackage's same-content skip optimisation: when the
// incoming package is Equal to what's already indexed, UpdatePackage (and
// any attached storage write behind it) does nothing. ForceUpdatePackage
// bypasses this check.
func (p *Package) Equal(other *Package) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	if p.Name != other.Name || !p.Version.Equal(other.Version) || p.Description != other.Description {
		return false
	}
	if p.Origin != other.Origin || !p.Timestamp.Equal(other.Timestamp) {
		return false
	}
	if len(p.Deps) != len(other.Deps) || len(p.LibProvides) != len(other.LibProvides) || len(p.LibDepends) != len(other.LibDepends) {
		return false
	}
	for i, d := range p.Deps {
		if d != other.Deps[i] {
			return false
		}
	}
	for lib := range p.LibProvides {
		if _, ok := other.LibProvides[lib]; !ok {
			return false
		}
	}
	for lib := range p.LibDepends {
		if _, ok := other.LibDepends[lib]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy of p suitable for storing independently
// in the cache/storage layer without aliasing its slices/maps with the
// caller's copy.
func (p *Package) Clone() *Package {
	c := *p
	c.Deps = append([]Dependency(nil), p.Deps...)
	c.OptDeps = append([]Dependency(nil), p.OptDeps...)
	c.Conflicts = append([]Dependency(nil), p.Conflicts...)
	c.Provides = append([]Dependency(nil), p.Provides...)
	c.Replaces = append([]Dependency(nil), p.Replaces...)
	c.Licenses = append([]string(nil), p.Licenses...)
	c.Groups = append([]string(nil), p.Groups...)
	c.LibProvides = make(map[LibraryID]struct{}, len(p.LibProvides))
	for k := range p.LibProvides {
		c.LibProvides[k] = struct{}{}
	}
	c.LibDepends = make(map[LibraryID]struct{}, len(p.LibDepends))
	for k := range p.LibDepends {
		c.LibDepends[k] = struct{}{}
	}
	if p.PackageInfo != nil {
		info := *p.PackageInfo
		c.PackageInfo = &info
	}
	if p.SourceInfo != nil {
		info := *p.SourceInfo
		info.Archs = append([]string(nil), p.SourceInfo.Archs...)
		info.MakeDeps = append([]Dependency(nil), p.SourceInfo.MakeDeps...)
		info.CheckDeps = append([]Dependency(nil), p.SourceInfo.CheckDeps...)
		c.SourceInfo = &info
	}
	if p.InstallInfo != nil {
		info := *p.InstallInfo
		c.InstallInfo = &info
	}
	return &c
}
