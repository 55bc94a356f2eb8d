package buildaction

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

func TestMovePackagesToArchiveRelocatesFile(t *testing.T) {
	repoDir := t.TempDir()
	pkgDir := filepath.Join(repoDir, "pkgs")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	db := pkgdata.NewDatabase("core")
	db.Path = filepath.Join(repoDir, "core.db.tar.gz")
	db.LocalPkgDir = pkgDir

	pkg := newTestPackageForFileLocation(t, "bash", "5.2-1")
	db.UpdatePackage(pkg)

	fileName := pkg.ComputeFileName()
	if err := os.WriteFile(filepath.Join(pkgDir, fileName), []byte("archive contents"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	action := NewAction(1, "remove-packages")
	action.PackageNames = []string{"bash"}
	r := &RemovePackages{action: action}
	r.movePackagesToArchive(db)

	archived := filepath.Join(repoDir, "archive", fileName)
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("expected archived file at %s, got error: %v", archived, err)
	}
	if _, err := os.Stat(filepath.Join(pkgDir, fileName)); !os.IsNotExist(err) {
		t.Error("expected the original file to have been moved out of the package dir")
	}
}

func TestMovePackagesToArchiveRelocatesSymlinkedStorageLocation(t *testing.T) {
	repoDir := t.TempDir()
	pkgDir := filepath.Join(repoDir, "pkgs")
	poolDir := filepath.Join(repoDir, "pool")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.MkdirAll(poolDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	db := pkgdata.NewDatabase("core")
	db.Path = filepath.Join(repoDir, "core.db.tar.gz")
	db.LocalPkgDir = pkgDir

	pkg := newTestPackageForFileLocation(t, "bash", "5.2-1")
	db.UpdatePackage(pkg)

	fileName := pkg.ComputeFileName()
	storagePath := filepath.Join(poolDir, fileName)
	if err := os.WriteFile(storagePath, []byte("pooled contents"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink(storagePath, filepath.Join(pkgDir, fileName)); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	action := NewAction(1, "remove-packages")
	action.PackageNames = []string{"bash"}
	r := &RemovePackages{action: action}
	r.movePackagesToArchive(db)

	if _, err := os.Lstat(filepath.Join(pkgDir, fileName)); !os.IsNotExist(err) {
		t.Error("expected the symlink to have been moved out of the package dir")
	}
	if _, err := os.Stat(filepath.Join(repoDir, "archive", fileName)); err != nil {
		t.Fatalf("expected the symlink relocated into archive/: %v", err)
	}
	if _, err := os.Stat(storagePath); !os.IsNotExist(err) {
		t.Error("expected the pooled storage location to have been moved into archive/ too")
	}
	if _, err := os.Stat(filepath.Join(repoDir, "archive", filepath.Base(storagePath))); err != nil {
		t.Fatalf("expected pooled file archived under its own name: %v", err)
	}
}

func TestMovePackagesToArchiveToleratesMissingFile(t *testing.T) {
	repoDir := t.TempDir()
	db := pkgdata.NewDatabase("core")
	db.Path = filepath.Join(repoDir, "core.db.tar.gz")
	db.LocalPkgDir = filepath.Join(repoDir, "pkgs")

	pkg := newTestPackageForFileLocation(t, "ghost", "1.0-1")
	db.UpdatePackage(pkg)

	action := NewAction(1, "remove-packages")
	action.PackageNames = []string{"ghost"}
	r := &RemovePackages{action: action}
	r.movePackagesToArchive(db) // must not panic even though the file never existed
}

func TestRemovePackagesRunFailsForUnknownDatabase(t *testing.T) {
	rt := NewRuntime(pkgdata.NewConfig())
	action := NewAction(1, "remove-packages")
	action.SourceDBs = []string{"does-not-exist@x86_64"}
	action.Enqueue()

	r := NewRemovePackages(rt, action)
	r.RepoRemoveExe = "/bin/true" // bypass the PATH lookup so the database-not-found path is what fails
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail for an unregistered source database")
	}
	if action.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", action.Result())
	}
}
