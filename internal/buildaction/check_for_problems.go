package buildaction

import (
	"context"
	"fmt"
	"os"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// RepositoryProblem is one structural finding CheckForProblems recorded
// against a single database, optionally attributed to one package within
// it — the Go analogue of the original's RepositoryProblem.
type RepositoryProblem struct {
	Description string
	Package     string
}

// RepoProblems is CheckForProblems' result_data payload: every finding,
// grouped by the database it was found in. Finding problems is the
// successful outcome of an audit, not a failure, so these never go through
// Action.ReportError the way CheckForProblems.Run used to.
type RepoProblems struct {
	ByDatabase map[string][]RepositoryProblem
}

// CheckForProblems audits one or more destination databases for structural
// problems: their configured paths existing on disk, every package's
// binary archive still being locatable, and any unresolved
// dependency/library requirement left over from DetectUnresolvedPackages.
type CheckForProblems struct {
	rt     *Runtime
	action *Action

	CacheDirs []string
}

// NewCheckForProblems returns a CheckForProblems action over
// action.DestDBs.
func NewCheckForProblems(rt *Runtime, action *Action) *CheckForProblems {
	return &CheckForProblems{rt: rt, action: action}
}

func (c *CheckForProblems) Run(ctx context.Context) error {
	if err := c.action.Start(); err != nil {
		return err
	}

	unlock := c.rt.LockConfigRead()
	defer unlock()

	dbs, err := c.resolveDestDBs()
	if err != nil {
		c.action.ReportError(err.Error())
		c.action.Conclude()
		return err
	}

	result := &RepoProblems{ByDatabase: make(map[string][]RepositoryProblem, len(dbs))}
	for _, db := range dbs {
		result.ByDatabase[db.Name] = c.checkDatabase(db)
	}

	c.action.SetResultData(result)
	c.action.Conclude()
	return nil
}

// resolveDestDBs resolves action.DestDBs to concrete databases, requiring
// at least one — CheckForProblems has nothing to audit against an empty
// set, unlike ReloadLibraryDependencies' "empty means all" rule.
func (c *CheckForProblems) resolveDestDBs() ([]*pkgdata.Database, error) {
	if len(c.action.DestDBs) == 0 {
		return nil, fmt.Errorf("check-for-problems requires at least one destination database")
	}
	dbs := make([]*pkgdata.Database, 0, len(c.action.DestDBs))
	for _, denotation := range c.action.DestDBs {
		db := c.rt.Config.FindDatabaseFromDenotation(denotation)
		if db == nil {
			return nil, fmt.Errorf("destination database %q not found", denotation)
		}
		dbs = append(dbs, db)
	}
	return dbs, nil
}

// checkDatabase runs every structural check against one database, the way
// repomanagement.cpp's CheckForProblems::run walks one db->packages loop
// per destination database before moving to the next.
func (c *CheckForProblems) checkDatabase(db *pkgdata.Database) []RepositoryProblem {
	var problems []RepositoryProblem

	if db.Path == "" {
		problems = append(problems, RepositoryProblem{Description: "no database file configured"})
	} else if _, err := os.Stat(db.Path); err != nil {
		problems = append(problems, RepositoryProblem{Description: fmt.Sprintf("database file %s: %v", db.Path, err)})
	}

	filesPath := db.FilesPath
	if filesPath == "" && db.Path != "" {
		filesPath = pkgdata.FilesPathFromRegularPath(db.Path)
	}
	if filesPath == "" {
		problems = append(problems, RepositoryProblem{Description: "no files database configured"})
	} else if _, err := os.Stat(filesPath); err != nil {
		problems = append(problems, RepositoryProblem{Description: fmt.Sprintf("files database %s: %v", filesPath, err)})
	}

	if db.LocalPkgDir == "" {
		return append(problems, c.unresolvedProblems(db)...)
	}
	if _, err := os.Stat(db.LocalPkgDir); err != nil {
		problems = append(problems, RepositoryProblem{Description: fmt.Sprintf("local package directory %s: %v", db.LocalPkgDir, err)})
	}

	db.ForEachPackage(func(pkg *pkgdata.Package) bool {
		location := db.LocatePackage(pkg, c.CacheDirs, fileExists, readSymlinkOneLevel)
		if !location.Exists {
			problems = append(problems, RepositoryProblem{
				Description: fmt.Sprintf("binary archive not found (expected near %s)", location.PathWithinRepo),
				Package:     pkg.Name,
			})
		}
		return true
	})

	return append(problems, c.unresolvedProblems(db)...)
}

func (c *CheckForProblems) unresolvedProblems(db *pkgdata.Database) []RepositoryProblem {
	var problems []RepositoryProblem
	unresolved := db.DetectUnresolvedPackages(nil, nil)
	for name, pkgs := range unresolved.Deps {
		for _, pkg := range pkgs {
			problems = append(problems, RepositoryProblem{
				Description: fmt.Sprintf("requires unresolved dependency %s", name),
				Package:     pkg.Name,
			})
		}
	}
	for lib, pkgs := range unresolved.Libs {
		for _, pkg := range pkgs {
			problems = append(problems, RepositoryProblem{
				Description: fmt.Sprintf("requires unresolved library %s", string(lib)),
				Package:     pkg.Name,
			})
		}
	}
	return problems
}
