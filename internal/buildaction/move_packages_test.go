package buildaction

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repoforge/repomgr/pkg/pkgdata"
)

func TestCopyFileCopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("copied content = %q, want %q", got, "payload")
	}
}

func TestMovePackagesCopyFilesRejectsAbsoluteSymlink(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	pkg := newTestPackageForFileLocation(t, "bash", "5.2-1")
	srcDB := pkgdata.NewDatabase("core")
	srcDB.LocalPkgDir = srcDir
	srcDB.UpdatePackage(pkg)
	destDB := pkgdata.NewDatabase("testing")
	destDB.LocalPkgDir = destDir

	linkPath := filepath.Join(srcDir, pkg.ComputeFileName())
	if err := os.Symlink("/etc/passwd", linkPath); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	m := &MovePackages{action: &Action{PackageNames: []string{"bash"}}}
	if err := m.copyFiles(srcDB, destDB); err == nil {
		t.Fatal("expected copyFiles to reject an absolute symlink target")
	}
}

func TestMovePackagesCopyFilesCopiesSymlinkedStorageLocation(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	poolDir := t.TempDir()

	pkg := newTestPackageForFileLocation(t, "bash", "5.2-1")
	srcDB := pkgdata.NewDatabase("core")
	srcDB.LocalPkgDir = srcDir
	srcDB.UpdatePackage(pkg)
	destDB := pkgdata.NewDatabase("testing")
	destDB.LocalPkgDir = destDir

	fileName := pkg.ComputeFileName()
	storagePath := filepath.Join(poolDir, fileName)
	if err := os.WriteFile(storagePath, []byte("pooled contents"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	linkPath := filepath.Join(srcDir, fileName)
	target, err := filepath.Rel(srcDir, storagePath)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	m := &MovePackages{action: &Action{PackageNames: []string{"bash"}}}
	if err := m.copyFiles(srcDB, destDB); err != nil {
		t.Fatalf("copyFiles: %v", err)
	}

	if _, err := os.Stat(filepath.Join(destDir, fileName)); err != nil {
		t.Fatalf("expected the symlink copied into destDir: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(destDir, filepath.Base(storagePath)))
	if err != nil {
		t.Fatalf("expected the pooled storage location copied alongside it: %v", err)
	}
	if string(got) != "pooled contents" {
		t.Errorf("copied storage-location content = %q, want %q", got, "pooled contents")
	}
}

func TestMovePackagesRunFailsForUnknownDatabases(t *testing.T) {
	rt := NewRuntime(pkgdata.NewConfig())
	action := NewAction(1, "move-packages")
	action.SourceDBs = []string{"core@x86_64"}
	action.DestDBs = []string{"testing@x86_64"}
	action.Enqueue()

	m := NewMovePackages(rt, action)
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail when neither database is registered")
	}
	if action.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", action.Result())
	}
}

func TestMovePackagesRunFailsWhenRepoToolsAreMissing(t *testing.T) {
	cfg := pkgdata.NewConfig()
	srcDB := cfg.FindOrCreateDatabase("core", "x86_64")
	srcDB.LocalPkgDir = t.TempDir()
	destDB := cfg.FindOrCreateDatabase("testing", "x86_64")
	destDB.LocalPkgDir = t.TempDir()

	rt := NewRuntime(cfg)
	action := NewAction(1, "move-packages")
	action.SourceDBs = []string{"core@x86_64"}
	action.DestDBs = []string{"testing@x86_64"}
	action.Directory = t.TempDir()
	action.Enqueue()

	m := NewMovePackages(rt, action)
	m.RepoAddExe = filepath.Join(t.TempDir(), "does-not-exist-repo-add")
	m.RepoRemoveExe = filepath.Join(t.TempDir(), "does-not-exist-repo-remove")

	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail when repo-add/repo-remove cannot be executed")
	}
	if action.Result() != ResultFailure {
		t.Fatalf("Result() = %v, want ResultFailure", action.Result())
	}
}
