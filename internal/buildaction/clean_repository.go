package buildaction

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// CleanRepository scans a source database's package directory (plus its
// sibling "any" and "src" architecture directories) for files that no
// longer belong there: files that aren't package archives at all get
// flagged for deletion, and package archives the database no longer
// references get flagged for archiving into a sibling archive/ directory.
// The Src directory is skipped by the scan (scanDirectory) — split packages
// legitimately share one src archive across several binary packages, so
// flagging it as "unreferenced" from any single arch dir's perspective
// would produce false positives.
type CleanRepository struct {
	rt     *Runtime
	action *Action

	DryRun bool
}

// NewCleanRepository returns a CleanRepository action over
// action.SourceDBs[0].
func NewCleanRepository(rt *Runtime, action *Action) *CleanRepository {
	return &CleanRepository{rt: rt, action: action}
}

type cleanupItem struct {
	path    string
	archive bool
}

func (c *CleanRepository) Run(ctx context.Context) error {
	if err := c.action.Start(); err != nil {
		return err
	}

	sourceDB := firstDenotation(c.action.SourceDBs)
	unlock := c.rt.LockConfigRead()
	db := c.rt.Config.FindDatabaseFromDenotation(sourceDB)
	unlock()
	if db == nil {
		err := fmt.Errorf("source database %q not found", sourceDB)
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}
	if db.LocalPkgDir == "" {
		err := fmt.Errorf("database %q has no local package directory configured", db.Name)
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}

	archDir := filepath.Clean(db.LocalPkgDir)
	root := filepath.Dir(archDir)

	siblingDirs, err := c.discoverSiblingDirs(root, filepath.Base(archDir))
	if err != nil {
		c.action.ReportError(err.Error())
	}

	var items []cleanupItem
	for _, dir := range append([]string{archDir}, siblingDirs...) {
		dirItems, err := c.scanDirectory(dir, db)
		if err != nil {
			c.action.AppendOutput(fmt.Sprintf("warning: %v", err))
			continue
		}
		items = append(items, dirItems...)
	}

	if c.DryRun {
		for _, item := range items {
			verb := "would delete"
			if item.archive {
				verb = "would archive"
			}
			c.action.AppendOutput(fmt.Sprintf("%s %s", verb, item.path))
		}
		c.action.Conclude()
		return nil
	}

	for _, item := range items {
		if err := c.execute(item); err != nil {
			c.action.ReportError(fmt.Sprintf("cleaning %s: %v", item.path, err))
		}
	}

	c.action.Conclude()
	return nil
}

// discoverSiblingDirs finds every other architecture-specific directory
// next to the primary one (e.g. "x86_64" alongside "any" and "src"). It
// lists every sibling directory without inspecting its contents;
// scanDirectory is what requires exactly one *.db file in each so it can be
// loaded as an ad-hoc Database for the unreferenced-file check.
func (c *CleanRepository) discoverSiblingDirs(root, primaryArchDirName string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == primaryArchDirName {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	return dirs, nil
}

// scanDirectory loads dir's single *.db file as an ad-hoc database (erroring
// if zero or more than one is found) and returns every file that's either
// not a package archive (delete) or a package archive the database no
// longer lists (archive). The Src directory is skipped entirely.
func (c *CleanRepository) scanDirectory(dir string, primary *pkgdata.Database) ([]cleanupItem, error) {
	if strings.EqualFold(filepath.Base(dir), "src") {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var dbFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
			dbFiles = append(dbFiles, filepath.Join(dir, entry.Name()))
		}
	}

	var db *pkgdata.Database
	switch {
	case dir == primary.LocalPkgDir || filepath.Clean(dir) == filepath.Clean(primary.LocalPkgDir):
		db = primary
	case len(dbFiles) == 0:
		return nil, fmt.Errorf("%s: no database file found", dir)
	case len(dbFiles) > 1:
		return nil, fmt.Errorf("%s: more than one database file found", dir)
	default:
		db, err = loadAdHocDatabase(dbFiles[0])
		if err != nil {
			return nil, err
		}
	}

	var items []cleanupItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".db") || strings.HasSuffix(name, ".db.tar.gz") ||
			strings.HasSuffix(name, ".files") || strings.HasSuffix(name, ".files.tar.gz") ||
			strings.HasSuffix(name, ".sig") {
			continue
		}
		path := filepath.Join(dir, name)
		if !isPackageArchiveName(name) {
			items = append(items, cleanupItem{path: path, archive: false})
			continue
		}
		if !referencedByAnyPackage(db, name) {
			items = append(items, cleanupItem{path: path, archive: true})
		}
	}
	return items, nil
}

func isPackageArchiveName(name string) bool {
	return strings.Contains(name, ".pkg.tar.")
}

func referencedByAnyPackage(db *pkgdata.Database, fileName string) bool {
	found := false
	db.ForEachPackage(func(pkg *pkgdata.Package) bool {
		if pkg.ComputeFileName() == fileName {
			found = true
			return false
		}
		return true
	})
	return found
}

func loadAdHocDatabase(dbFilePath string) (*pkgdata.Database, error) {
	f, err := os.Open(dbFilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(dbFilePath), ".db")
	name = strings.TrimSuffix(name, ".db.tar.gz")

	// Only gzip-compressed db files are accepted; an uncompressed tarball is
	// rejected with an error, since ParseDatabaseTarball reads gzip only.
	var packages map[string]*pkgdata.Package
	if gz, err := gzip.NewReader(f); err == nil {
		gz.Close()
		f.Seek(0, 0)
		packages, err = pkgdata.ParseDatabaseTarball(f, name)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("%s: not a valid gzip-compressed database", dbFilePath)
	}

	db := pkgdata.NewDatabase(name)
	db.ReplacePackages(packages)
	return db, nil
}

func (c *CleanRepository) execute(item cleanupItem) error {
	if !item.archive {
		return os.Remove(item.path)
	}
	archiveDir := filepath.Join(filepath.Dir(item.path), "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return err
	}
	return os.Rename(item.path, filepath.Join(archiveDir, filepath.Base(item.path)))
}
