// Package storage implements the cached, persistent key-value layer that
// backs every Database's package set: a bbolt-backed Environment holding
// five named buckets per database, fronted by a generic LRU cache so hot
// lookups avoid a disk round trip.
package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// bucket suffixes, one set per database name, matching the five indices
// spec.md §4.1 requires: the package itself plus its four inverted
// dependency/library indices.
const (
	bucketPackages    = "_packages"
	bucketProvides    = "_provides"
	bucketRequires    = "_requires"
	bucketLibProvides = "_libprovides"
	bucketLibRequires = "_librequires"
)

// PackagesBucket is the bucket suffix holding each database's Package
// entries, exported so pkgdata can build a StorageCache[Package] against it
// without this package importing pkgdata's data model.
const PackagesBucket = bucketPackages

var allBucketSuffixes = []string{bucketPackages, bucketProvides, bucketRequires, bucketLibProvides, bucketLibRequires}

// Environment wraps a single bbolt database file shared across every
// repository database this server manages; each repository database gets
// its own set of five buckets inside it rather than a separate file,
// matching the original's single LMDB environment opened with MDB_NOSUBDIR.
type Environment struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string) (*Environment, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening environment at %q: %w", path, err)
	}
	return &Environment{db: db}, nil
}

// Close releases the underlying bbolt file.
func (e *Environment) Close() error {
	return e.db.Close()
}

// EnsureDatabaseBuckets creates the five buckets for databaseName if they
// don't already exist, so a fresh Database can be stored into straight
// away.
func (e *Environment) EnsureDatabaseBuckets(databaseName string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		for _, suffix := range allBucketSuffixes {
			if _, err := tx.CreateBucketIfNotExists(bucketName(databaseName, suffix)); err != nil {
				return fmt.Errorf("storage: creating bucket %s%s: %w", databaseName, suffix, err)
			}
		}
		return nil
	})
}

// DropDatabaseBuckets removes every bucket belonging to databaseName, used
// when a database is discarded entirely (Config.DiscardDatabases).
func (e *Environment) DropDatabaseBuckets(databaseName string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		for _, suffix := range allBucketSuffixes {
			name := bucketName(databaseName, suffix)
			if tx.Bucket(name) == nil {
				continue
			}
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("storage: dropping bucket %s%s: %w", databaseName, suffix, err)
			}
		}
		return nil
	})
}

func bucketName(databaseName, suffix string) []byte {
	return []byte(databaseName + suffix)
}
