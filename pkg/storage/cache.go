package storage

import (
	"bytes"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Codec describes how a StorageCache turns a T into bytes and back, and how
// it derives the secondary name key a T is also reachable by (e.g. a
// package's name). Callers supply one Codec per bucket kind; pkgdata's
// Package satisfies this via small adapter functions rather than storage
// importing pkgdata directly, keeping this package dependency-free of the
// data model it caches.
type Codec[T any] struct {
	Encode func(*T) ([]byte, error)
	Decode func([]byte) (*T, error)
	Name   func(*T) string
}

// Entry is what StorageCache.Retrieve hands back: the cached value together
// with the StorageID it's filed under, since callers frequently need both
// (e.g. to issue a follow-up DeleteByID).
type Entry[T any] struct {
	ID    StorageID
	Value *T
}

// StorageCache fronts one bucket of an Environment with an LRU of recently
// used entries, avoiding a disk round trip for hot lookups while keeping
// bbolt as the durable source of truth. It mirrors the original's
// StorageCache<T>: retrieve reads cache-then-storage, store writes through
// to storage and refreshes the cache, merging forward onto whatever was
// already cached for the same name the way storage.cpp's
// addDepsAndProvidesFromOtherPackage call does.
type StorageCache[T any] struct {
	env          *Environment
	databaseName string
	suffix       string
	codec        Codec[T]

	mu       sync.Mutex
	byID     *lru.Cache[StorageID, *Entry[T]]
	byName   map[string]StorageID
}

// NewStorageCache returns a cache fronting databaseName's suffix bucket
// (one of the bucket* constants), holding up to capacity entries.
func NewStorageCache[T any](env *Environment, databaseName, suffix string, capacity int, codec Codec[T]) (*StorageCache[T], error) {
	byID, err := lru.New[StorageID, *Entry[T]](capacity)
	if err != nil {
		return nil, err
	}
	return &StorageCache[T]{
		env:          env,
		databaseName: databaseName,
		suffix:       suffix,
		codec:        codec,
		byID:         byID,
		byName:       make(map[string]StorageID),
	}, nil
}

// RetrieveByID returns the entry stored under id, checking the LRU first
// and falling back to a read-only bbolt transaction on a miss.
func (c *StorageCache[T]) RetrieveByID(id StorageID) (*Entry[T], bool, error) {
	c.mu.Lock()
	if entry, ok := c.byID.Get(id); ok {
		c.mu.Unlock()
		return entry, true, nil
	}
	c.mu.Unlock()

	var entry *Entry[T]
	err := c.env.View(c.databaseName, func(tx *Txn) error {
		raw, ok, err := tx.GetByID(c.suffix, id)
		if err != nil || !ok {
			return err
		}
		value, err := c.codec.Decode(raw)
		if err != nil {
			return err
		}
		entry = &Entry[T]{ID: id, Value: value}
		return nil
	})
	if err != nil || entry == nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.byID.Add(id, entry)
	c.byName[c.codec.Name(entry.Value)] = id
	c.mu.Unlock()
	return entry, true, nil
}

// RetrieveByName returns the entry whose Codec.Name(value) equals name.
func (c *StorageCache[T]) RetrieveByName(name string) (*Entry[T], bool, error) {
	c.mu.Lock()
	id, known := c.byName[name]
	c.mu.Unlock()
	if known {
		return c.RetrieveByID(id)
	}

	var entry *Entry[T]
	err := c.env.View(c.databaseName, func(tx *Txn) error {
		raw, ok, err := tx.GetByName(c.suffix, name)
		if err != nil || !ok {
			return err
		}
		value, err := c.codec.Decode(raw)
		if err != nil {
			return err
		}
		id, _, err := findIDByName(tx, c.suffix, name, c.codec)
		if err != nil {
			return err
		}
		entry = &Entry[T]{ID: id, Value: value}
		return nil
	})
	if err != nil || entry == nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Store is an atomic read-modify-write: if an entry with the same name
// already exists, is byte-identical to value, and force is false, it
// returns that entry with updated=false and performs no write at all.
// Otherwise it merges value's inherited fields forward from the old entry
// via merge (the way storage.cpp unconditionally calls
// addDepsAndProvidesFromOtherPackage whenever an old entry is found),
// writes value through to bbolt under id (or a freshly allocated one when
// id == 0), refreshes the cache, and returns updated=true. id == 0 on an
// update-in-place is resolved to the old entry's id when one was found.
func (c *StorageCache[T]) Store(id StorageID, value *T, force bool, merge func(newValue, old *T)) (StorageID, *Entry[T], bool, error) {
	name := c.codec.Name(value)

	old, found, err := c.RetrieveByName(name)
	if err != nil {
		return 0, nil, false, err
	}

	newRaw, err := c.codec.Encode(value)
	if err != nil {
		return 0, nil, false, err
	}

	if found {
		if id == 0 {
			id = old.ID
		}
		if !force {
			oldRaw, err := c.codec.Encode(old.Value)
			if err != nil {
				return 0, nil, false, err
			}
			if bytes.Equal(newRaw, oldRaw) {
				return old.ID, old, false, nil
			}
		}
		if merge != nil {
			merge(value, old.Value)
			if newRaw, err = c.codec.Encode(value); err != nil {
				return 0, nil, false, err
			}
		}
	}

	err = c.env.Update(c.databaseName, func(tx *Txn) error {
		if id == 0 {
			allocated, err := tx.NextID()
			if err != nil {
				return err
			}
			id = allocated
		}
		if err := tx.PutByID(c.suffix, id, newRaw); err != nil {
			return err
		}
		return tx.PutByName(c.suffix, name, newRaw)
	})
	if err != nil {
		return 0, nil, false, err
	}

	entry := &Entry[T]{ID: id, Value: value}
	c.mu.Lock()
	c.byID.Add(id, entry)
	c.byName[name] = id
	c.mu.Unlock()
	return id, old, true, nil
}

// LoadAll decodes every distinct value currently in the cache's bucket,
// deduplicating on Codec.Name since each stored value is filed under both
// its StorageID key and its name key. Used to repopulate a caller's
// in-memory index from storage at startup, without needing to know any IDs
// up front.
func (c *StorageCache[T]) LoadAll() ([]*T, error) {
	seen := make(map[string]*T)
	err := c.env.View(c.databaseName, func(tx *Txn) error {
		return tx.ForEach(c.suffix, func(k, v []byte) error {
			value, err := c.codec.Decode(v)
			if err != nil {
				return err
			}
			seen[c.codec.Name(value)] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	values := make([]*T, 0, len(seen))
	for _, value := range seen {
		values = append(values, value)
	}
	return values, nil
}

// StoreInTxn is Store's variant for callers already holding a write
// transaction they want this write to join (e.g. a build action applying
// several related changes atomically).
func (c *StorageCache[T]) StoreInTxn(tx *Txn, id StorageID, value *T) (StorageID, error) {
	name := c.codec.Name(value)
	if id == 0 {
		allocated, err := tx.NextID()
		if err != nil {
			return 0, err
		}
		id = allocated
	}
	raw, err := c.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	if err := tx.PutByID(c.suffix, id, raw); err != nil {
		return 0, err
	}
	if err := tx.PutByName(c.suffix, name, raw); err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.byID.Add(id, &Entry[T]{ID: id, Value: value})
	c.byName[name] = id
	c.mu.Unlock()
	return id, nil
}

// Invalidate removes name from the in-memory cache and deletes its record
// from storage under an RW transaction, returning whether a record existed
// — the way storage.cpp's invalidate finds the entry by name, erases it
// from the in-memory index, then deletes it from the backing LMDB table
// inside its own write transaction. The bucket holds the same encoded
// value under two keys (id and name); if the StorageID isn't already known
// from the cache, findIDByName resolves it from the bucket itself so both
// copies are removed rather than leaving the id-keyed one dangling.
func (c *StorageCache[T]) Invalidate(name string) (bool, error) {
	c.mu.Lock()
	id, known := c.byName[name]
	if known {
		c.byID.Remove(id)
	}
	delete(c.byName, name)
	c.mu.Unlock()

	existed := false
	err := c.env.Update(c.databaseName, func(tx *Txn) error {
		if !known {
			var err error
			id, known, err = findIDByName(tx, c.suffix, name, c.codec)
			if err != nil {
				return err
			}
		}
		if known {
			if err := tx.DeleteByID(c.suffix, id); err != nil {
				return err
			}
		}
		_, ok, err := tx.GetByName(c.suffix, name)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		existed = true
		return tx.DeleteByName(c.suffix, name)
	})
	return existed, err
}

// findIDByName scans suffix's id-keyed entries for the one whose decoded
// value has codec.Name(value) == name, since the bucket has no secondary
// index from name back to StorageID outside this cache's own in-memory map.
func findIDByName[T any](tx *Txn, suffix, name string, codec Codec[T]) (StorageID, bool, error) {
	var id StorageID
	var found bool
	err := tx.ForEachID(suffix, func(candidate StorageID, raw []byte) error {
		if found {
			return nil
		}
		value, err := codec.Decode(raw)
		if err != nil {
			return err
		}
		if codec.Name(value) == name {
			id, found = candidate, true
		}
		return nil
	})
	return id, found, err
}

// Clear empties both the in-memory cache and the underlying bucket. The
// bucket holds each value under two keys (its StorageID and its name), so
// this deletes by raw key rather than assuming every key decodes as a
// StorageID.
func (c *StorageCache[T]) Clear() error {
	c.ClearCacheOnly()
	return c.env.Update(c.databaseName, func(tx *Txn) error {
		var keys [][]byte
		if err := tx.ForEach(c.suffix, func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := tx.DeleteRaw(c.suffix, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearCacheOnly empties the in-memory LRU without touching bbolt, used
// when a database is being reloaded from scratch and the disk contents are
// about to be replaced wholesale anyway.
func (c *StorageCache[T]) ClearCacheOnly() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID.Purge()
	c.byName = make(map[string]StorageID)
}
