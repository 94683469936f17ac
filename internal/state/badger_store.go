package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func encodeState(st VersionState) ([]byte, error) { return json.Marshal(st) }
func decodeState(val []byte) (VersionState, error) {
	var st VersionState
	if err := json.Unmarshal(val, &st); err != nil {
		return VersionState{}, err
	}
	return st, nil
}

func (b *BadgerStore) Apply(identityKey string, contentDigest string, recordUID string, now int64) (Decision, VersionState, error) {
	var dec Decision = Unchanged
	var out VersionState
	err := b.db.Update(func(txn *badger.Txn) error {
		var cur VersionState
		exists := false
		item, err := txn.Get([]byte(identityKey))
		if err == nil {
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}
			cur, e = decodeState(v)
			if e != nil {
				return e
			}
			exists = true
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		dec, out = merge(cur, exists, contentDigest, recordUID, now)
		if dec == Unchanged {
			return nil
		}
		bytes, e := encodeState(out)
		if e != nil {
			return e
		}
		return txn.Set([]byte(identityKey), bytes)
	})
	if err != nil {
		return Unchanged, VersionState{}, err
	}
	return dec, out, nil
}

func (b *BadgerStore) Get(identityKey string) (VersionState, bool) {
	var st VersionState
	err := b.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get([]byte(identityKey))
		if e != nil {
			return e
		}
		v, e := item.ValueCopy(nil)
		if e != nil {
			return e
		}
		var dErr error
		st, dErr = decodeState(v)
		return dErr
	})
	if err != nil {
		return VersionState{}, false
	}
	return st, true
}

func (b *BadgerStore) Range(fn func(key string, st VersionState) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			st, err := decodeState(v)
			if err != nil {
				return err
			}
			if err := fn(string(k), st); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAll replaces all keys with the provided snapshot.
func (b *BadgerStore) LoadAll(all map[string]VersionState) {
	_ = b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keysToDelete [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			keysToDelete = append(keysToDelete, k)
		}
		it.Close()
		for _, k := range keysToDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for k, st := range all {
			bytes, err := encodeState(st)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(k), bytes); err != nil {
				return err
			}
		}
		return nil
	})
}
