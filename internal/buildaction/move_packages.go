package buildaction

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

// MovePackages copies packages from a source database's package directory
// into a destination database's, then launches repo-add against the
// destination and repo-remove against the source concurrently, concluding
// only once both have reported — the Go analogue of the original's
// MultiSession<void> completion barrier. Source files are deleted only if
// repo-remove actually succeeded; if either side fails, every package is
// considered failed to move, since a partial move would leave the package
// present in both or neither database's file listing.
type MovePackages struct {
	rt     *Runtime
	action *Action

	RepoAddExe    string
	RepoRemoveExe string
}

// NewMovePackages returns a MovePackages action moving action.PackageNames
// from action.SourceDBs[0] to action.DestDBs[0].
func NewMovePackages(rt *Runtime, action *Action) *MovePackages {
	return &MovePackages{rt: rt, action: action}
}

func (m *MovePackages) Run(ctx context.Context) error {
	if err := m.action.Start(); err != nil {
		return err
	}

	unlockRead := m.rt.LockConfigRead()
	srcDB := m.rt.Config.FindDatabaseFromDenotation(firstDenotation(m.action.SourceDBs))
	destDB := m.rt.Config.FindDatabaseFromDenotation(firstDenotation(m.action.DestDBs))
	unlockRead()
	if srcDB == nil || destDB == nil {
		err := fmt.Errorf("source or destination database not found")
		m.action.ReportError(err.Error())
		m.action.Conclude()
		return err
	}

	if err := m.copyFiles(srcDB, destDB); err != nil {
		m.action.ReportError(err.Error())
		m.action.Conclude()
		return err
	}

	addExe := m.RepoAddExe
	if addExe == "" {
		found, err := FindExecutable("repo-add")
		if err != nil {
			m.action.ReportError(err.Error())
			m.action.Conclude()
			return err
		}
		addExe = found
	}
	removeExe := m.RepoRemoveExe
	if removeExe == "" {
		found, err := FindExecutable("repo-remove")
		if err != nil {
			m.action.ReportError(err.Error())
			m.action.Conclude()
			return err
		}
		removeExe = found
	}

	var addExitCode, removeExitCode int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		args := append([]string{destDB.Path}, m.packageFileNames(srcDB)...)
		return RunProcess(gctx, m.action, addExe, m.action.Directory, filepath.Join(m.action.Directory, "repo-add.log"), args, nil, func(result ProcessResult) {
			addExitCode = result.ExitCode
		})
	})
	g.Go(func() error {
		args := append([]string{srcDB.Path}, m.action.PackageNames...)
		return RunProcess(gctx, m.action, removeExe, m.action.Directory, filepath.Join(m.action.Directory, "repo-remove.log"), args, nil, func(result ProcessResult) {
			removeExitCode = result.ExitCode
		})
	})
	if err := g.Wait(); err != nil {
		m.action.ReportError(err.Error())
		m.action.Conclude()
		return err
	}

	addOK := addExitCode == 0
	removeOK := removeExitCode == 0
	if !addOK {
		m.action.ReportError(fmt.Sprintf("repo-add exited with code %d", addExitCode))
	}
	if !removeOK {
		m.action.ReportError(fmt.Sprintf("repo-remove exited with code %d", removeExitCode))
	}

	if addOK && removeOK {
		movedFiles := m.packageFileNames(srcDB)
		unlockWrite := m.rt.LockConfigWrite()
		for _, name := range m.action.PackageNames {
			if pkg := srcDB.RemovePackage(name); pkg != nil {
				destDB.UpdatePackage(pkg)
			}
		}
		unlockWrite()
		for _, fileName := range movedFiles {
			os.Remove(filepath.Join(srcDB.LocalPkgDir, fileName))
		}
	}

	m.action.Conclude()
	return nil
}

func (m *MovePackages) packageFileNames(srcDB *pkgdata.Database) []string {
	names := make([]string, 0, len(m.action.PackageNames))
	for _, name := range m.action.PackageNames {
		if pkg := srcDB.FindPackage(name); pkg != nil {
			names = append(names, pkg.ComputeFileName())
		}
	}
	return names
}

// copyFiles copies each named package's archive from srcDB's local package
// directory into destDB's, plus its symlinked storage location if any,
// rejecting absolute symlink targets the way the original refuses to copy
// a symlink that could point outside the intended tree.
func (m *MovePackages) copyFiles(srcDB, destDB *pkgdata.Database) error {
	for _, name := range m.action.PackageNames {
		pkg := srcDB.FindPackage(name)
		if pkg == nil {
			continue
		}
		fileName := pkg.ComputeFileName()
		srcPath := filepath.Join(srcDB.LocalPkgDir, fileName)
		if target, ok := readSymlinkOneLevel(srcPath); ok && filepath.IsAbs(target) {
			return fmt.Errorf("refusing to move %s: symlink target %q is absolute", fileName, target)
		}
		destPath := filepath.Join(destDB.LocalPkgDir, fileName)
		if err := copyFile(srcPath, destPath); err != nil {
			return fmt.Errorf("copying %s: %w", fileName, err)
		}

		location := srcDB.LocatePackage(pkg, nil, fileExists, readSymlinkOneLevel)
		if location.StorageLocation != "" {
			storageDest := filepath.Join(destDB.LocalPkgDir, filepath.Base(location.StorageLocation))
			if err := copyFile(location.StorageLocation, storageDest); err != nil {
				return fmt.Errorf("copying storage location of %s: %w", fileName, err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
