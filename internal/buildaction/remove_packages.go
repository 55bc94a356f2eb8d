package buildaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// RemovePackages deletes packages from a source database by invoking
// repo-remove and, on success, archiving the now-unreferenced package files
// instead of deleting them outright (they "might still be used elsewhere",
// per the comment this carries forward from repomanagement.cpp).
type RemovePackages struct {
	rt     *Runtime
	action *Action

	RepoRemoveExe string
}

// NewRemovePackages returns a RemovePackages action over
// action.SourceDBs[0] removing action.PackageNames.
func NewRemovePackages(rt *Runtime, action *Action) *RemovePackages {
	return &RemovePackages{rt: rt, action: action}
}

// Run executes repo-remove and, if it succeeds, moves the removed
// packages' files into a sibling archive/ directory.
func (r *RemovePackages) Run(ctx context.Context) error {
	if err := r.action.Start(); err != nil {
		return err
	}

	exe := r.RepoRemoveExe
	if exe == "" {
		found, err := FindExecutable("repo-remove")
		if err != nil {
			r.action.ReportError(err.Error())
			r.action.Conclude()
			return err
		}
		exe = found
	}

	sourceDB := firstDenotation(r.action.SourceDBs)
	unlockRead := r.rt.LockConfigRead()
	db := r.rt.Config.FindDatabaseFromDenotation(sourceDB)
	unlockRead()
	if db == nil {
		r.action.ReportError(fmt.Sprintf("source database %q not found", sourceDB))
		r.action.Conclude()
		return fmt.Errorf("source database %q not found", sourceDB)
	}

	args := append([]string{db.Path}, r.action.PackageNames...)
	logPath := filepath.Join(r.action.Directory, "repo-remove.log")

	var exitCode int
	var runErr error
	runErr = RunProcess(ctx, r.action, exe, r.action.Directory, logPath, args, nil, func(result ProcessResult) {
		exitCode = result.ExitCode
		if result.Err != nil {
			runErr = result.Err
		}
	})
	if runErr != nil {
		r.action.ReportError(runErr.Error())
		r.action.Conclude()
		return runErr
	}
	if exitCode != 0 {
		r.action.ReportError(fmt.Sprintf("repo-remove exited with code %d", exitCode))
		r.action.Conclude()
		return nil
	}

	r.movePackagesToArchive(db)

	unlockWrite := r.rt.LockConfigWrite()
	for _, name := range r.action.PackageNames {
		db.RemovePackage(name)
	}
	unlockWrite()

	r.action.Conclude()
	return nil
}

// movePackagesToArchive renames each removed package's on-disk file (and
// its storage-location marker, if any) into db's sibling archive/
// directory, tolerating per-package filesystem errors without aborting the
// whole action — a failure to archive one package's leftover file doesn't
// invalidate the repo-remove that already succeeded.
func (r *RemovePackages) movePackagesToArchive(db *pkgdata.Database) {
	archiveDir := filepath.Join(filepath.Dir(db.Path), "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		r.action.AppendOutput(fmt.Sprintf("warning: could not create archive directory: %v", err))
		return
	}
	for _, name := range r.action.PackageNames {
		pkg := db.FindPackage(name)
		if pkg == nil {
			continue
		}
		location := db.LocatePackage(pkg, nil, fileExists, readSymlinkOneLevel)
		fileName := pkg.ComputeFileName()
		src := filepath.Join(db.LocalPkgDir, fileName)
		dst := filepath.Join(archiveDir, fileName)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			r.action.AppendOutput(fmt.Sprintf("warning: could not archive %s: %v", fileName, err))
		}
		if location.StorageLocation != "" {
			storageDst := filepath.Join(archiveDir, filepath.Base(location.StorageLocation))
			if err := os.Rename(location.StorageLocation, storageDst); err != nil && !os.IsNotExist(err) {
				r.action.AppendOutput(fmt.Sprintf("warning: could not archive storage location of %s: %v", fileName, err))
			}
		}
	}
}
