package storage

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// StorageID is the auto-incrementing 64-bit identifier bbolt hands out for
// each stored record via a bucket's NextSequence, mirroring the original's
// LMDB auto-increment secondary index.
type StorageID uint64

// Txn wraps a single bbolt transaction (read-only or read-write) scoped to
// one database's five buckets, the unit of work StorageCache joins when it
// needs to read through to storage or flush a write back.
type Txn struct {
	tx           *bolt.Tx
	databaseName string
}

// View runs fn inside a read-only transaction against databaseName's buckets.
func (e *Environment) View(databaseName string, fn func(*Txn) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, databaseName: databaseName})
	})
}

// Update runs fn inside a read-write transaction against databaseName's buckets.
func (e *Environment) Update(databaseName string, fn func(*Txn) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx, databaseName: databaseName})
	})
}

func (t *Txn) bucket(suffix string) (*bolt.Bucket, error) {
	b := t.tx.Bucket(bucketName(t.databaseName, suffix))
	if b == nil {
		return nil, fmt.Errorf("storage: bucket %s%s not found (call EnsureDatabaseBuckets first)", t.databaseName, suffix)
	}
	return b, nil
}

// GetByID reads the raw value stored under id in the given bucket.
func (t *Txn) GetByID(suffix string, id StorageID) ([]byte, bool, error) {
	b, err := t.bucket(suffix)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(encodeStorageID(id))
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// GetByName reads the raw value stored under a name key rather than a
// StorageID; StorageCache writes every value under its name as well as its
// id and reads the name-keyed copy back through this.
func (t *Txn) GetByName(suffix, name string) ([]byte, bool, error) {
	b, err := t.bucket(suffix)
	if err != nil {
		return nil, false, err
	}
	v := b.Get([]byte(name))
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// PutByID writes value under id in the given bucket.
func (t *Txn) PutByID(suffix string, id StorageID, value []byte) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.Put(encodeStorageID(id), value)
}

// PutByName writes value under a name key in the given bucket.
func (t *Txn) PutByName(suffix, name string, value []byte) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.Put([]byte(name), value)
}

// DeleteByID removes the record stored under id.
func (t *Txn) DeleteByID(suffix string, id StorageID) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.Delete(encodeStorageID(id))
}

// DeleteByName removes the record stored under name.
func (t *Txn) DeleteByName(suffix, name string) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.Delete([]byte(name))
}

// DeleteRaw removes whatever is stored under the exact raw key, regardless
// of whether it's a StorageID- or name-encoded key. Used by StorageCache.Clear,
// whose buckets hold both kinds of key side by side (Store writes the same
// value under both its id and its name).
func (t *Txn) DeleteRaw(suffix string, key []byte) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

// NextID allocates the next auto-increment StorageID for the _packages bucket.
func (t *Txn) NextID() (StorageID, error) {
	b, err := t.bucket(bucketPackages)
	if err != nil {
		return 0, err
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("storage: allocating next id: %w", err)
	}
	return StorageID(seq), nil
}

// ForEach walks every key/value pair in the named bucket in bbolt's
// byte-order key iteration order.
func (t *Txn) ForEach(suffix string, fn func(key, value []byte) error) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.ForEach(fn)
}

// ForEachID walks only the StorageID-keyed entries in the named bucket,
// skipping the name-keyed copies Store also writes alongside them. A key
// counts as a StorageID only when it is 8 bytes long with a zero high byte
// (NextSequence ids stay far below 2^56), so an 8-byte name is skipped too.
// Used to resolve a record's StorageID from its decoded value when the
// caller only has its name.
func (t *Txn) ForEachID(suffix string, fn func(id StorageID, value []byte) error) error {
	b, err := t.bucket(suffix)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		if len(k) != 8 || k[0] != 0 {
			return nil
		}
		return fn(decodeStorageID(k), v)
	})
}

func encodeStorageID(id StorageID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeStorageID(b []byte) StorageID {
	return StorageID(binary.BigEndian.Uint64(b))
}
