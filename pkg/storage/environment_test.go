package storage

import (
	"path/filepath"
	"testing"
)

func openTestEnvironment(t *testing.T) *Environment {
	t.Helper()
	dir := t.TempDir()
	env, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestEnsureAndDropDatabaseBuckets(t *testing.T) {
	env := openTestEnvironment(t)

	if err := env.EnsureDatabaseBuckets("core"); err != nil {
		t.Fatalf("EnsureDatabaseBuckets: %v", err)
	}

	if err := env.Update("core", func(tx *Txn) error {
		return tx.PutByName(bucketPackages, "bash", []byte("payload"))
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := env.DropDatabaseBuckets("core"); err != nil {
		t.Fatalf("DropDatabaseBuckets: %v", err)
	}

	err := env.View("core", func(tx *Txn) error {
		_, _, err := tx.GetByName(bucketPackages, "bash")
		return err
	})
	if err == nil {
		t.Error("expected reading from a dropped bucket to fail")
	}
}
