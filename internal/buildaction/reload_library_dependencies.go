package buildaction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repoforge/repomgr/pkg/archive"
	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// packageToReload is one destination-database package selected during
// phase 1, carrying everything the later phases need without holding onto
// the config lock.
type packageToReload struct {
	pkg         *pkgdata.Package
	db          *pkgdata.Database
	archivePath string
	downloaded  bool
}

// ReloadLibraryDependencies re-parses the library-level provides/requires
// of every package a destination database's runtime dependency closure
// reaches, picking up sonames a plain database-file sync can't see because
// they only exist inside the binary package's contents. It runs in four
// phases: select candidates under a config read-lock, download any
// archives missing from the local cache, parse ELF/PE symbols from each
// archive's contents in parallel, then apply the results under a config
// write-lock.
type ReloadLibraryDependencies struct {
	rt     *Runtime
	action *Action

	ForceReload      bool
	SkipDependencies bool
	Mirror           string
	CacheDirs        []string
	HTTPClient       *http.Client
}

// NewReloadLibraryDependencies returns a ReloadLibraryDependencies action
// targeting action.DestDBs (every configured database, if empty).
func NewReloadLibraryDependencies(rt *Runtime, action *Action) *ReloadLibraryDependencies {
	return &ReloadLibraryDependencies{
		rt:         rt,
		action:     action,
		HTTPClient: http.DefaultClient,
	}
}

// Run drives the action through all four phases.
func (r *ReloadLibraryDependencies) Run(ctx context.Context) error {
	if err := r.action.Start(); err != nil {
		return err
	}

	candidates, err := r.selectCandidates()
	if err != nil {
		r.action.ReportError(err.Error())
		r.action.Conclude()
		return err
	}

	r.downloadMissing(ctx, candidates)

	r.loadPackageInfoFromContents(ctx, candidates)

	r.apply(candidates)

	r.action.Conclude()
	return nil
}

// selectCandidates is phase 1: resolve the action's destination databases
// (every configured database, when DestDBs is empty), compute each one's
// dependency closure (unless SkipDependencies), pull every package those
// databases' packages actually require at runtime, and locate each one's
// binary archive on disk — skipping packages whose Timestamp is already at
// least as new as the archive's own mtime (the same one apply sets after a
// successful parse), unless ForceReload.
func (r *ReloadLibraryDependencies) selectCandidates() ([]*packageToReload, error) {
	unlock := r.rt.LockConfigRead()
	defer unlock()

	destDBs, err := r.resolveDestDBs()
	if err != nil {
		return nil, err
	}

	seen := make(map[*pkgdata.Package]struct{})
	var candidates []*packageToReload
	for _, destDB := range destDBs {
		for _, c := range r.selectCandidatesForDestDB(destDB) {
			if _, dup := seen[c.pkg]; dup {
				continue
			}
			seen[c.pkg] = struct{}{}
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// resolveDestDBs resolves action.DestDBs to concrete databases, or returns
// every configured database when the set is empty, per spec.md's reload
// edge case for an empty destination-DB set.
func (r *ReloadLibraryDependencies) resolveDestDBs() ([]*pkgdata.Database, error) {
	if len(r.action.DestDBs) == 0 {
		return append([]*pkgdata.Database(nil), r.rt.Config.Databases...), nil
	}
	dbs := make([]*pkgdata.Database, 0, len(r.action.DestDBs))
	for _, denotation := range r.action.DestDBs {
		db := r.rt.Config.FindDatabaseFromDenotation(denotation)
		if db == nil {
			return nil, fmt.Errorf("destination database %q not found", denotation)
		}
		dbs = append(dbs, db)
	}
	return dbs, nil
}

func (r *ReloadLibraryDependencies) selectCandidatesForDestDB(destDB *pkgdata.Database) []*packageToReload {
	relevantDBs := map[*pkgdata.Database]struct{}{destDB: {}}
	if !r.SkipDependencies {
		order, err := r.rt.Config.ComputeDatabaseDependencyOrder(destDB)
		if err != nil {
			r.action.AppendOutput(fmt.Sprintf("warning: could not compute database dependency order: %v", err))
		} else {
			for _, db := range order {
				relevantDBs[db] = struct{}{}
			}
		}
	}

	runtimeDeps := make(map[*pkgdata.Package]struct{})
	missing := make(pkgdata.DependencySet)
	destDB.ForEachPackage(func(pkg *pkgdata.Package) bool {
		runtimeDeps[pkg] = struct{}{}
		r.rt.Config.PullDependentPackagesOfPackage(pkg, relevantDBs, runtimeDeps, missing)
		return true
	})
	for name := range missing {
		r.action.AppendOutput(fmt.Sprintf("note: dependency %q could not be resolved while selecting packages to reload", name))
	}

	var candidates []*packageToReload
	for pkg := range runtimeDeps {
		db := ownerDatabase(relevantDBs, pkg)
		if db == nil {
			continue
		}
		location := db.LocatePackage(pkg, r.CacheDirs, fileExists, readSymlinkOneLevel)
		if !r.ForceReload && pkg.Origin == pkgdata.OriginPackageContents {
			if archiveMtime, err := modTime(location.PathWithinRepo); err == nil && !pkg.Timestamp.Before(archiveMtime) {
				r.action.AppendOutput(fmt.Sprintf("skipped %s: already parsed from contents as of %s", pkg.Name, pkg.Timestamp.UTC().Format("2006-01-02T15:04:05Z")))
				continue
			}
		}
		candidates = append(candidates, &packageToReload{pkg: pkg, db: db, archivePath: location.PathWithinRepo})
	}
	return candidates
}

func ownerDatabase(dbs map[*pkgdata.Database]struct{}, pkg *pkgdata.Package) *pkgdata.Database {
	for db := range dbs {
		if db.FindPackage(pkg.Name) == pkg {
			return db
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readSymlinkOneLevel reports the immediate target of path if it is a
// symlink, without following further levels itself (pkgdata.LocatePackage
// resolves at most one level, matching the original's locate_package).
func readSymlinkOneLevel(path string) (string, bool) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return "", false
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", false
	}
	return target, true
}

// modTime returns path's modification time, the way selectCandidates
// decides whether a package's stored Timestamp is stale relative to the
// archive it was last parsed from.
func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// downloadMissing is phase 2: fetch any candidate archive not already on
// disk from the mirror, outside any lock since it's pure I/O.
func (r *ReloadLibraryDependencies) downloadMissing(ctx context.Context, candidates []*packageToReload) {
	if r.Mirror == "" {
		return
	}
	for _, c := range candidates {
		if fileExists(c.archivePath) {
			c.downloaded = true
			continue
		}
		url := fmt.Sprintf("%s/%s/%s", r.Mirror, c.db.Name, c.pkg.ComputeFileName())
		if err := r.downloadFile(ctx, url, c.archivePath); err != nil {
			r.action.ReportError(fmt.Sprintf("downloading %s: %v", c.pkg.Name, err))
			continue
		}
		c.downloaded = true
	}
}

func (r *ReloadLibraryDependencies) downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror returned status %s", resp.Status)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

// loadPackageInfoFromContents is phase 3: walk every downloaded archive's
// contents in parallel across a pool of runtime.NumCPU() workers, extracting
// the PKGINFO metadata and every ELF/PE symbol it provides/requires. A single
// archive's failure is recorded as an error but never aborts the others.
func (r *ReloadLibraryDependencies) loadPackageInfoFromContents(ctx context.Context, candidates []*packageToReload) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	for _, c := range candidates {
		c := c
		if !c.downloaded && !fileExists(c.archivePath) {
			continue
		}
		g.Go(func() error {
			if err := r.parseOneArchive(c); err != nil {
				mu.Lock()
				r.action.ReportError(fmt.Sprintf("parsing %s: %v", c.pkg.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *ReloadLibraryDependencies) parseOneArchive(c *packageToReload) error {
	f, err := os.Open(c.archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	parsed := pkgdata.NewPackage(c.pkg.Name)
	parsed.Version = c.pkg.Version
	parsed.Origin = pkgdata.OriginPackageContents
	parsed.PackageInfo = &pkgdata.PackageInfo{}
	if c.pkg.PackageInfo != nil {
		*parsed.PackageInfo = *c.pkg.PackageInfo
	}

	err = archive.Walk(f, c.archivePath, func(entry archive.Entry) error {
		if !archive.IsPkgInfoFileOrBinary(entry.Header) {
			return nil
		}
		data, err := io.ReadAll(entry.Reader)
		if err != nil {
			return err
		}
		if entry.Header.Name == ".PKGINFO" {
			info, err := archive.ParsePkgInfo(bytes.NewReader(data))
			if err == nil && info.BuildDate.Unix() != 0 {
				parsed.PackageInfo.BuildDate = info.BuildDate
			}
			return nil
		}
		provides, requires, err := archive.ExtractLibraryInfo(bytes.NewReader(data), int64(len(data)), filepath.Base(entry.Header.Name))
		if err != nil {
			// Not every binary-looking path is actually an ELF/PE file
			// (scripts with an executable bit, static archives, ...); that's
			// expected and not itself a reload failure.
			return nil
		}
		for _, lib := range provides {
			parsed.LibProvides[pkgdata.NewLibraryID(lib.Format, lib.Machine, lib.Soname)] = struct{}{}
		}
		for _, lib := range requires {
			parsed.LibDepends[pkgdata.NewLibraryID(lib.Format, lib.Machine, lib.Soname)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.pkg = parsed
	return nil
}

// apply is phase 4: merge each candidate's freshly parsed library info back
// onto the live package under a config write-lock, rejecting a candidate
// silently (matching the original's behaviour) if the live package's
// version has since moved on from what was parsed.
func (r *ReloadLibraryDependencies) apply(candidates []*packageToReload) {
	unlock := r.rt.LockConfigWrite()
	defer unlock()

	for _, c := range candidates {
		if c.pkg.Origin != pkgdata.OriginPackageContents {
			continue
		}
		live := c.db.FindPackage(c.pkg.Name)
		if live == nil {
			continue
		}
		if !live.AddDepsAndProvidesFromOtherPackage(c.pkg) {
			continue
		}
		if archiveMtime, err := modTime(c.archivePath); err == nil {
			live.Timestamp = archiveMtime
		}
		c.db.UpdatePackage(live)
	}
}
