package pkgdata

import (
	"fmt"
	"sort"
	"strings"
)

// DatabaseStatistics is a read-only snapshot of one Database's vital
// statistics, returned as part of Status.
type DatabaseStatistics struct {
	Name           string
	PackageCount   int
	Arch           string
	LastUpdate     string
	LocalPkgDir    string
	MainMirror     string
	SyncFromMirror bool
}

// Status is the aggregate read-only snapshot of a Config's databases and
// global settings, served by status/info endpoints.
type Status struct {
	DatabaseStats     []DatabaseStatistics
	Architectures     []string
	PacmanDatabasePath string
	PackageCacheDirs  []string
}

// PackageSearchResult pairs a found Package with the Database it came
// from, the way the original's PackageSearchResult does (there it can also
// carry a DatabaseInfo placeholder for a not-yet-loaded db; this port
// always carries a live *Database since this server owns every database it
// reports on).
type PackageSearchResult struct {
	Database *Database
	Package  *Package
}

// Config is the top-level in-memory graph: every Database this server
// knows about, plus the global settings that apply across all of them
// (supported architectures, pacman config path, shared package cache
// dirs, default signature policy).
type Config struct {
	Databases      []*Database
	Aur            *Database
	Architectures  []string
	PacmanDatabasePath string
	PackageCacheDirs   []string
	SignatureLevel     SignatureLevel
}

// NewConfig returns an empty Config with its "aur" scratch database
// already present, the way the original's Config default-constructs a
// standalone aur member alongside its databases vector.
func NewConfig() *Config {
	return &Config{Aur: NewDatabase("aur")}
}

// ComputeStatus builds a Status snapshot of the current config.
func (c *Config) ComputeStatus() Status {
	stats := make([]DatabaseStatistics, 0, len(c.Databases))
	for _, db := range c.Databases {
		mirror := ""
		if len(db.Mirrors) > 0 {
			mirror = db.Mirrors[0]
		}
		stats = append(stats, DatabaseStatistics{
			Name:           db.Name,
			PackageCount:   len(db.Packages),
			Arch:           db.Arch,
			LastUpdate:     db.LastUpdate.UTC().Format("2006-01-02T15:04:05Z"),
			LocalPkgDir:    db.LocalPkgDir,
			MainMirror:     mirror,
			SyncFromMirror: db.SyncFromMirror,
		})
	}
	return Status{
		DatabaseStats:      stats,
		Architectures:      c.Architectures,
		PacmanDatabasePath: c.PacmanDatabasePath,
		PackageCacheDirs:   c.PackageCacheDirs,
	}
}

// ParseDatabaseDenotation splits "name@arch" into its name and architecture
// parts; the architecture part is empty when not present.
func ParseDatabaseDenotation(denotation string) (name, arch string) {
	if idx := strings.IndexByte(denotation, '@'); idx != -1 {
		return denotation[:idx], denotation[idx+1:]
	}
	return denotation, ""
}

// ParsePackageDenotation splits "db@arch/pkgname" into its three parts.
func ParsePackageDenotation(denotation string) (dbName, dbArch, pkgName string) {
	rest := denotation
	if idx := strings.IndexByte(rest, '/'); idx != -1 {
		dbName, dbArch = ParseDatabaseDenotation(rest[:idx])
		pkgName = rest[idx+1:]
		return
	}
	return "", "", rest
}

// FindDatabase returns the database with the given name and (if non-empty)
// architecture. The "aur" scratch database is matched by name alone,
// regardless of arch, since it isn't tied to any one architecture.
func (c *Config) FindDatabase(name, arch string) *Database {
	if c.Aur != nil && name == c.Aur.Name {
		return c.Aur
	}
	for _, db := range c.Databases {
		if db.Name == name && (arch == "" || db.Arch == arch) {
			return db
		}
	}
	return nil
}

// FindDatabaseFromDenotation resolves a "name@arch" denotation to a Database.
func (c *Config) FindDatabaseFromDenotation(denotation string) *Database {
	name, arch := ParseDatabaseDenotation(denotation)
	return c.FindDatabase(name, arch)
}

// FindOrCreateDatabase returns the database with the given name/arch,
// creating and registering an empty one if none exists yet. "aur" is
// matched (and never duplicated into Databases) regardless of arch, the
// same way FindDatabase special-cases it.
func (c *Config) FindOrCreateDatabase(name, arch string) *Database {
	if db := c.FindDatabase(name, arch); db != nil {
		return db
	}
	db := NewDatabase(name)
	db.Arch = arch
	c.Databases = append(c.Databases, db)
	return db
}

// FindPackages resolves a "db@arch/pkgname" denotation to every matching
// package across this config's databases.
func (c *Config) FindPackages(denotation string) []PackageSearchResult {
	dbName, dbArch, pkgName := ParsePackageDenotation(denotation)
	var out []PackageSearchResult
	for _, db := range c.Databases {
		if dbName != "" && db.Name != dbName {
			continue
		}
		if dbArch != "" && db.Arch != dbArch {
			continue
		}
		for _, pkg := range db.FindPackages(pkgName) {
			out = append(out, PackageSearchResult{Database: db, Package: pkg})
		}
	}
	return out
}

// FindPackage returns the first package across all databases that
// satisfies dep, or a zero-value result if none does.
func (c *Config) FindPackage(dep Dependency) (PackageSearchResult, bool) {
	for _, db := range c.Databases {
		for _, pkg := range db.FindPackages(dep.Name) {
			if dep.Matches(pkg.Version) {
				return PackageSearchResult{Database: db, Package: pkg}, true
			}
		}
	}
	return PackageSearchResult{}, false
}

// FindPackagesProvidingLibrary searches every database for packages
// providing lib.
func (c *Config) FindPackagesProvidingLibrary(lib LibraryID) []PackageSearchResult {
	var out []PackageSearchResult
	for _, db := range c.Databases {
		for _, pkg := range db.FindPackagesProvidingLibrary(lib) {
			out = append(out, PackageSearchResult{Database: db, Package: pkg})
		}
	}
	return out
}

// ForEachPackage visits every package across every database in a stable,
// database-name-then-package-name order.
func (c *Config) ForEachPackage(fn func(db *Database, pkg *Package) bool) {
	dbs := append([]*Database(nil), c.Databases...)
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Name < dbs[j].Name })
	for _, db := range dbs {
		cont := true
		db.ForEachPackage(func(pkg *Package) bool {
			if !fn(db, pkg) {
				cont = false
				return false
			}
			return true
		})
		if !cont {
			return
		}
	}
}

// MarkAllDatabasesToBeDiscarded flags every database for discarding, ahead
// of a full reload where only databases re-populated by the reload should
// survive (see DiscardDatabases).
func (c *Config) MarkAllDatabasesToBeDiscarded() {
	for _, db := range c.Databases {
		db.ToBeDiscarded = true
	}
}

// DiscardDatabases removes every database still flagged ToBeDiscarded,
// i.e. every one a reload didn't touch.
func (c *Config) DiscardDatabases() {
	kept := c.Databases[:0]
	for _, db := range c.Databases {
		if !db.ToBeDiscarded {
			kept = append(kept, db)
		}
	}
	c.Databases = kept
}

// ComputeDatabasesRequiringDatabase returns every other database with at
// least one package requiring a dependency that a package of target
// provides, i.e. the direct reverse-dependents of target in the
// config-level database graph.
func (c *Config) ComputeDatabasesRequiringDatabase(target *Database) []*Database {
	var out []*Database
	for _, db := range c.Databases {
		if databaseRequiresAnyPackage(db, target) {
			out = append(out, db)
		}
	}
	return out
}

func databaseRequiresAnyPackage(db, target *Database) bool {
	if db == target {
		return false
	}
	for depName := range db.RequiredDeps {
		if len(target.FindPackages(depName)) > 0 {
			return true
		}
	}
	return false
}

// ComputeDatabaseDependencyOrder topologically sorts the databases that
// target (transitively, via package-level deps) requires, returning them
// ordered so that a database always appears after every database it
// depends on. Returns an error describing the cycle if one exists.
func (c *Config) ComputeDatabaseDependencyOrder(target *Database) ([]*Database, error) {
	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var order []*Database
	var visit func(db *Database) error
	visit = func(db *Database) error {
		switch visited[db.Name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("cycle detected in database dependency graph at %q", db.Name)
		}
		visited[db.Name] = 1
		for _, depDBName := range c.directDatabaseDeps(db) {
			depDB := c.FindDatabase(depDBName, db.Arch)
			if depDB == nil {
				continue
			}
			if err := visit(depDB); err != nil {
				return err
			}
		}
		visited[db.Name] = 2
		order = append(order, db)
		return nil
	}
	if err := visit(target); err != nil {
		return nil, err
	}
	return order, nil
}

// directDatabaseDeps returns the names of every database providing a
// dependency that at least one package in db requires.
func (c *Config) directDatabaseDeps(db *Database) []string {
	seen := make(map[string]struct{})
	var names []string
	db.ForEachPackage(func(pkg *Package) bool {
		for _, dep := range pkg.Deps {
			for _, other := range c.Databases {
				if other == db {
					continue
				}
				if len(other.FindPackages(dep.Name)) == 0 {
					continue
				}
				if _, ok := seen[other.Name]; !ok {
					seen[other.Name] = struct{}{}
					names = append(names, other.Name)
				}
			}
		}
		return true
	})
	return names
}

// PullDependentPackages walks the runtime dependency closure of deps across
// relevantDbs, accumulating resolved packages into runtimeDependencies and
// any name that couldn't be resolved anywhere into missingDependencies.
func (c *Config) PullDependentPackages(deps []Dependency, relevantDbs map[*Database]struct{}, runtimeDependencies map[*Package]struct{}, missingDependencies DependencySet) {
	var pull func(dep Dependency)
	pull = func(dep Dependency) {
		var resolved *Package
		var resolvedDB *Database
		for db := range relevantDbs {
			for _, candidate := range db.FindPackages(dep.Name) {
				if dep.Matches(candidate.Version) {
					resolved = candidate
					resolvedDB = db
					break
				}
			}
			if resolved != nil {
				break
			}
		}
		if resolved == nil {
			if _, already := missingDependencies[dep.Name]; !already {
				missingDependencies.Add(dep.Name, nil)
			}
			return
		}
		if _, already := runtimeDependencies[resolved]; already {
			return
		}
		runtimeDependencies[resolved] = struct{}{}
		_ = resolvedDB
		for _, child := range resolved.Deps {
			pull(child)
		}
	}
	for _, dep := range deps {
		pull(dep)
	}
}

// PullDependentPackagesOfPackage is the single-package overload: it pulls
// the dependency closure of pkg itself.
func (c *Config) PullDependentPackagesOfPackage(pkg *Package, relevantDbs map[*Database]struct{}, runtimeDependencies map[*Package]struct{}, missingDependencies DependencySet) {
	c.PullDependentPackages(pkg.Deps, relevantDbs, runtimeDependencies, missingDependencies)
}
