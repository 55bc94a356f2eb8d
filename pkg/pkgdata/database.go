package pkgdata

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/repoforge/repomgr/pkg/storage"
)

// DatabaseUsage is a bit set describing which operations a Database
// participates in, mirroring the original's sync/search/install/upgrade
// flags so a database can be, e.g., search-only without being eligible as
// a sync target.
type DatabaseUsage int

const (
	UsageNone    DatabaseUsage = 0
	UsageSync    DatabaseUsage = 1 << 0
	UsageSearch  DatabaseUsage = 1 << 1
	UsageInstall DatabaseUsage = 1 << 2
	UsageUpgrade DatabaseUsage = 1 << 3
	UsageAll     = UsageSync | UsageSearch | UsageInstall | UsageUpgrade
)

// PackageUpdate records one upgrade candidate found by Database.CheckForUpdates.
type PackageUpdate struct {
	OldVersion Version
	NewVersion Version
	Package    *Package
}

// PackageUpdates groups CheckForUpdates results the way the original's
// PackageUpdates struct does: straightforward version bumps, packages that
// exist locally but not in any sync database (orphans), and version
// downgrades (only reported when explicitly requested).
type PackageUpdates struct {
	VersionUpdates []PackageUpdate
	Downgrades     []PackageUpdate
	Orphans        []*Package
}

// UnresolvedDependencies is the result of Database.DetectUnresolvedPackages:
// the set of dependency names and library IDs that no package in the
// database (after whatever hypothetical add/remove was simulated) provides.
type UnresolvedDependencies struct {
	Deps map[string][]*Package
	Libs map[LibraryID][]*Package
}

func newUnresolvedDependencies() *UnresolvedDependencies {
	return &UnresolvedDependencies{
		Deps: make(map[string][]*Package),
		Libs: make(map[LibraryID][]*Package),
	}
}

// PackageLocation is the result of Database.LocatePackage: where a
// package's binary archive was found on disk, plus the canonical target a
// single level of symlink resolved to, if the archive path is itself a
// symlink (the "storage location" the original locate_package resolves to,
// e.g. when the package pool dedupes identical files via symlinks).
type PackageLocation struct {
	PathWithinRepo  string
	StorageLocation string
	Exists          bool
	Err             error
}

// Database is one repository database: its packages, plus four inverted
// indices kept in sync with the package set (providedDeps, requiredDeps,
// providedLibs, requiredLibs) so lookups by dependency/library name are
// O(1) instead of a full package scan.
type Database struct {
	Name      string
	Path      string
	FilesPath string
	Mirrors   []string
	Arch      string
	Usage     DatabaseUsage

	SignatureLevel SignatureLevel

	Packages map[string]*Package

	// ProvidedDeps/RequiredDeps/ProvidedLibs/RequiredLibs are the four
	// inverted indices: name/LibraryID -> packages contributing it.
	ProvidedDeps DependencySet
	RequiredDeps DependencySet
	ProvidedLibs map[LibraryID][]*Package
	RequiredLibs map[LibraryID][]*Package

	LocalPkgDir string
	LocalDbDir  string
	LastUpdate  time.Time

	SyncFromMirror bool
	ToBeDiscarded  bool

	// storageCache is the durable backing store for Packages, attached via
	// AttachStorage once the server has opened its storage Environment.
	// Left nil in tests that only exercise the in-memory index.
	storageCache *storage.StorageCache[Package]
	storageIDs   map[string]storage.StorageID
}

// AttachStorage wires cache as db's durable package store: from this point
// on, UpdatePackage/ForceUpdatePackage persist through to it as well as
// updating the in-memory index.
func (db *Database) AttachStorage(cache *storage.StorageCache[Package]) {
	db.storageCache = cache
}

// LoadPackagesFromStorage repopulates db's in-memory package set (and
// indices) from whatever AttachStorage's cache already holds on disk, the
// way a restart must recover state without re-running a full reload. A nil
// or empty cache is not an error; it just leaves db empty, the normal state
// on a server's very first run.
func (db *Database) LoadPackagesFromStorage() error {
	if db.storageCache == nil {
		return nil
	}
	values, err := db.storageCache.LoadAll()
	if err != nil {
		return fmt.Errorf("loading packages for database %q from storage: %w", db.Name, err)
	}
	packages := make(map[string]*Package, len(values))
	for _, pkg := range values {
		packages[pkg.Name] = pkg
	}
	db.ReplacePackages(packages)
	return nil
}

// SignatureLevel records the signature-checking policy configured for a
// database. Verification itself is out of scope; this is carried purely
// as recorded policy (see DESIGN.md's open-question decision).
type SignatureLevel int

const (
	SignatureDefault SignatureLevel = iota
	SignatureNever
	SignatureOptional
	SignatureRequired
)

// NewDatabase returns an empty Database with its indices initialized.
func NewDatabase(name string) *Database {
	return &Database{
		Name:         name,
		Packages:     make(map[string]*Package),
		ProvidedDeps: make(DependencySet),
		RequiredDeps: make(DependencySet),
		ProvidedLibs: make(map[LibraryID][]*Package),
		RequiredLibs: make(map[LibraryID][]*Package),
	}
}

// DeducePathsFromLocalDirs fills in Path/FilesPath from LocalDbDir when
// they weren't explicitly configured, following the "<dbdir>/<name>.db"
// and "<dbdir>/<name>.files" convention.
func (db *Database) DeducePathsFromLocalDirs() {
	if db.LocalDbDir == "" {
		return
	}
	if db.Path == "" {
		db.Path = fmt.Sprintf("%s/%s.db", db.LocalDbDir, db.Name)
	}
	if db.FilesPath == "" {
		db.FilesPath = fmt.Sprintf("%s/%s.files", db.LocalDbDir, db.Name)
	}
}

// ClearPackages empties the package set and every inverted index.
func (db *Database) ClearPackages() {
	db.Packages = make(map[string]*Package)
	db.ProvidedDeps = make(DependencySet)
	db.RequiredDeps = make(DependencySet)
	db.ProvidedLibs = make(map[LibraryID][]*Package)
	db.RequiredLibs = make(map[LibraryID][]*Package)
}

// addPackageDependencies registers pkg's deps/provides/libs into the four
// inverted indices.
func (db *Database) addPackageDependencies(pkg *Package) {
	for _, dep := range pkg.Deps {
		db.RequiredDeps.Add(dep.Name, pkg)
	}
	for _, dep := range pkg.Provides {
		db.ProvidedDeps.Add(dep.Name, pkg)
	}
	db.ProvidedDeps.Add(pkg.Name, pkg)
	for lib := range pkg.LibDepends {
		db.RequiredLibs[lib] = appendUnique(db.RequiredLibs[lib], pkg)
	}
	for lib := range pkg.LibProvides {
		db.ProvidedLibs[lib] = appendUnique(db.ProvidedLibs[lib], pkg)
	}
}

// removePackageDependencies undoes addPackageDependencies for pkg.
func (db *Database) removePackageDependencies(pkg *Package) {
	for _, dep := range pkg.Deps {
		db.RequiredDeps.Remove(dep.Name, pkg)
	}
	for _, dep := range pkg.Provides {
		db.ProvidedDeps.Remove(dep.Name, pkg)
	}
	db.ProvidedDeps.Remove(pkg.Name, pkg)
	for lib := range pkg.LibDepends {
		db.RequiredLibs[lib] = removePkg(db.RequiredLibs[lib], pkg)
		if len(db.RequiredLibs[lib]) == 0 {
			delete(db.RequiredLibs, lib)
		}
	}
	for lib := range pkg.LibProvides {
		db.ProvidedLibs[lib] = removePkg(db.ProvidedLibs[lib], pkg)
		if len(db.ProvidedLibs[lib]) == 0 {
			delete(db.ProvidedLibs, lib)
		}
	}
}

func appendUnique(list []*Package, pkg *Package) []*Package {
	for _, existing := range list {
		if existing == pkg {
			return list
		}
	}
	return append(list, pkg)
}

func removePkg(list []*Package, pkg *Package) []*Package {
	for i, existing := range list {
		if existing == pkg {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// UpdatePackage inserts pkg, replacing any existing entry of the same name
// (updating the inverted indices accordingly). Equivalent to the original's
// updatePackage: when an existing entry is Equal to pkg, the update (and any
// attached storage write) is skipped entirely.
func (db *Database) UpdatePackage(pkg *Package) {
	db.updatePackage(pkg, false)
}

// ForceUpdatePackage is like UpdatePackage but bypasses the same-content
// skip optimisation, always replacing the existing entry and always writing
// through to attached storage even when pkg.Equal(old) — used by callers
// that must bump the Timestamp or force a reload to take effect.
func (db *Database) ForceUpdatePackage(pkg *Package) {
	db.updatePackage(pkg, true)
}

// updatePackage is the shared implementation behind UpdatePackage and
// ForceUpdatePackage. The in-memory skip (old.Equal(pkg)) and the storage
// layer's byte-identical skip inside StorageCache.Store are two independent
// checks at two different levels; force bypasses both.
func (db *Database) updatePackage(pkg *Package, force bool) {
	old, existed := db.Packages[pkg.Name]
	if existed && !force && old.Equal(pkg) {
		return
	}

	if existed {
		db.removePackageDependencies(old)
	}
	db.Packages[pkg.Name] = pkg
	db.addPackageDependencies(pkg)

	if db.storageCache == nil {
		return
	}
	id, _, _, err := db.storageCache.Store(db.storageIDs[pkg.Name], pkg, force, func(newValue, old *Package) {
		newValue.AddDepsAndProvidesFromOtherPackage(old)
	})
	if err != nil {
		// Storage is a durability layer on top of the in-memory index, not
		// its source of truth while the process is live; a write failure
		// here doesn't unwind the in-memory update already applied above.
		return
	}
	if db.storageIDs == nil {
		db.storageIDs = make(map[string]storage.StorageID)
	}
	db.storageIDs[pkg.Name] = id
}

// RemovePackage removes the package with the given name, returning it (or
// nil if it wasn't present).
func (db *Database) RemovePackage(name string) *Package {
	pkg, ok := db.Packages[name]
	if !ok {
		return nil
	}
	db.removePackageDependencies(pkg)
	delete(db.Packages, name)
	return pkg
}

// ReplacePackages atomically swaps the entire package set for newPackages,
// rebuilding all inverted indices from scratch.
func (db *Database) ReplacePackages(newPackages map[string]*Package) {
	db.ClearPackages()
	for name, pkg := range newPackages {
		db.Packages[name] = pkg
		db.addPackageDependencies(pkg)
	}
}

// FindPackage returns the package with the given exact name, or nil.
func (db *Database) FindPackage(name string) *Package {
	return db.Packages[name]
}

// FindPackages returns every package that either is named name or provides
// a dependency named name.
func (db *Database) FindPackages(name string) []*Package {
	seen := make(map[*Package]struct{})
	var out []*Package
	if pkg, ok := db.Packages[name]; ok {
		seen[pkg] = struct{}{}
		out = append(out, pkg)
	}
	if detail, ok := db.ProvidedDeps[name]; ok {
		for _, pkg := range detail.RelevantPackages {
			if _, dup := seen[pkg]; !dup {
				seen[pkg] = struct{}{}
				out = append(out, pkg)
			}
		}
	}
	return out
}

// FindPackagesProvidingLibrary returns every package providing lib.
func (db *Database) FindPackagesProvidingLibrary(lib LibraryID) []*Package {
	return db.ProvidedLibs[lib]
}

// ForEachPackage calls fn for every package in a stable, name-sorted order
// so iteration results (e.g. for list endpoints) are deterministic.
func (db *Database) ForEachPackage(fn func(*Package) bool) {
	names := make([]string, 0, len(db.Packages))
	for name := range db.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !fn(db.Packages[name]) {
			return
		}
	}
}

// IsFileRelevant reports whether a file name found in a .files tarball
// entry should be parsed as package metadata: only "desc", "files" and
// "depends" leaf names matter, matching the original's filter on the archive
// walk.
func (db *Database) IsFileRelevant(entryName string) bool {
	return hasSuffix(entryName, "/desc") || hasSuffix(entryName, "/files") || hasSuffix(entryName, "/depends")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// CheckForUpdates compares db (treated as the locally-installed set) against
// sync, reporting version bumps, downgrades (only if includeDowngrades) and
// orphans (locally-installed packages sync no longer carries at all).
func (db *Database) CheckForUpdates(sync *Database, includeDowngrades bool) PackageUpdates {
	var updates PackageUpdates
	db.ForEachPackage(func(local *Package) bool {
		remote := sync.FindPackage(local.Name)
		if remote == nil {
			updates.Orphans = append(updates.Orphans, local)
			return true
		}
		cmp := remote.Version.Compare(local.Version)
		switch {
		case cmp > 0:
			updates.VersionUpdates = append(updates.VersionUpdates, PackageUpdate{
				OldVersion: local.Version, NewVersion: remote.Version, Package: remote,
			})
		case cmp < 0 && includeDowngrades:
			updates.Downgrades = append(updates.Downgrades, PackageUpdate{
				OldVersion: local.Version, NewVersion: remote.Version, Package: remote,
			})
		}
		return true
	})
	return updates
}

// DetectUnresolvedPackages walks every package currently in db and reports
// any Deps/LibDepends entry that nothing in db satisfies. proposedNew and
// proposedRemoved simulate a hypothetical change before checking (see
// DESIGN.md's open-question decision on their application order: removals
// apply before additions).
func (db *Database) DetectUnresolvedPackages(proposedNew []*Package, proposedRemoved []string) *UnresolvedDependencies {
	sim := NewDatabase(db.Name)
	db.ForEachPackage(func(pkg *Package) bool {
		sim.UpdatePackage(pkg.Clone())
		return true
	})
	for _, name := range proposedRemoved {
		sim.RemovePackage(name)
	}
	for _, pkg := range proposedNew {
		sim.UpdatePackage(pkg.Clone())
	}

	result := newUnresolvedDependencies()
	sim.ForEachPackage(func(pkg *Package) bool {
		for _, dep := range pkg.Deps {
			if !sim.dependencySatisfied(dep) {
				result.Deps[dep.Name] = append(result.Deps[dep.Name], pkg)
			}
		}
		for lib := range pkg.LibDepends {
			if len(sim.ProvidedLibs[lib]) == 0 {
				result.Libs[lib] = append(result.Libs[lib], pkg)
			}
		}
		return true
	})
	return result
}

func (db *Database) dependencySatisfied(dep Dependency) bool {
	for _, candidate := range db.FindPackages(dep.Name) {
		if dep.Matches(candidate.Version) {
			return true
		}
	}
	return false
}

// LocatePackage resolves where pkg's binary archive should live on disk,
// trying LocalPkgDir first and falling back to the shared package cache
// dirs a caller supplies (local package dir -> cache dir -> cache dir +
// arch). No mirror is consulted.
// readSymlink, if non-nil, is consulted once the first existing candidate
// is found; it should report the symlink's immediate target (unresolved
// further) and false if the path isn't a symlink at all.
func (db *Database) LocatePackage(pkg *Package, cacheDirs []string, fileExists func(string) bool, readSymlink func(string) (string, bool)) PackageLocation {
	fileName := pkg.ComputeFileName()
	candidates := []string{}
	if db.LocalPkgDir != "" {
		candidates = append(candidates, db.LocalPkgDir+"/"+fileName)
	}
	for _, dir := range cacheDirs {
		candidates = append(candidates, dir+"/"+fileName)
		if pkg.PackageInfo != nil && pkg.PackageInfo.Arch != "" {
			candidates = append(candidates, dir+"/"+pkg.PackageInfo.Arch+"/"+fileName)
		}
	}
	for _, path := range candidates {
		if fileExists(path) {
			loc := PackageLocation{PathWithinRepo: path, Exists: true}
			if readSymlink != nil {
				if target, ok := readSymlink(path); ok {
					loc.StorageLocation = resolveSymlinkTarget(path, target)
				}
			}
			return loc
		}
	}
	if len(candidates) == 0 {
		return PackageLocation{Exists: false, Err: fmt.Errorf("locate package %s: no candidate paths configured", pkg.Name)}
	}
	return PackageLocation{PathWithinRepo: candidates[0], Exists: false}
}

// resolveSymlinkTarget joins a relative symlink target against the
// directory its link lives in, leaving an absolute target untouched.
func resolveSymlinkTarget(linkPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	dir := linkPath
	if idx := strings.LastIndexByte(linkPath, '/'); idx != -1 {
		dir = linkPath[:idx]
	} else {
		dir = "."
	}
	return dir + "/" + target
}

// FilesPathFromRegularPath derives a database's sibling .files path from
// its .db path, e.g. "core.db" -> "core.files".
func FilesPathFromRegularPath(dbPath string) string {
	if len(dbPath) >= 3 && dbPath[len(dbPath)-3:] == ".db" {
		return dbPath[:len(dbPath)-3] + ".files"
	}
	return dbPath + ".files"
}
