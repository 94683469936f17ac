package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store using PebbleDB. State survives across runs,
// which is what makes delta loads possible between scheduler invocations.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodePebbleState(st VersionState) ([]byte, error) { return json.Marshal(st) }
func decodePebbleState(val []byte) (VersionState, error) {
	var st VersionState
	if err := json.Unmarshal(val, &st); err != nil {
		return VersionState{}, err
	}
	return st, nil
}

func (p *PebbleStore) Apply(identityKey string, contentDigest string, recordUID string, now int64) (Decision, VersionState, error) {
	k := []byte(identityKey)
	var cur VersionState
	exists := false
	v, closer, err := p.db.Get(k)
	if err == nil {
		cur, err = decodePebbleState(v)
		_ = closer.Close()
		if err != nil {
			return Unchanged, VersionState{}, err
		}
		exists = true
	} else if err != pebble.ErrNotFound {
		return Unchanged, VersionState{}, err
	}
	dec, next := merge(cur, exists, contentDigest, recordUID, now)
	if dec == Unchanged {
		return dec, next, nil
	}
	bytes, err := encodePebbleState(next)
	if err != nil {
		return Unchanged, VersionState{}, err
	}
	if err := p.db.Set(k, bytes, pebble.NoSync); err != nil {
		return Unchanged, VersionState{}, err
	}
	return dec, next, nil
}

func (p *PebbleStore) Get(identityKey string) (VersionState, bool) {
	v, closer, err := p.db.Get([]byte(identityKey))
	if err != nil {
		return VersionState{}, false
	}
	defer closer.Close()
	st, e := decodePebbleState(v)
	if e != nil {
		return VersionState{}, false
	}
	return st, true
}

func (p *PebbleStore) Range(fn func(key string, st VersionState) error) error {
	it, _ := p.db.NewIter(nil)
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		st, err := decodePebbleState(v)
		if err != nil {
			return err
		}
		if err := fn(string(k), st); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll replaces all keys with the provided snapshot.
func (p *PebbleStore) LoadAll(all map[string]VersionState) {
	var toDelete [][]byte
	it, _ := p.db.NewIter(nil)
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		toDelete = append(toDelete, k)
	}
	it.Close()
	if len(toDelete) > 0 {
		wb := p.db.NewBatch()
		for _, k := range toDelete {
			_ = wb.Delete(k, nil)
		}
		_ = wb.Commit(pebble.NoSync)
		_ = wb.Close()
	}
	if len(all) > 0 {
		wb := p.db.NewBatch()
		for k, st := range all {
			bytes, err := encodePebbleState(st)
			if err != nil {
				continue
			}
			_ = wb.Set([]byte(k), bytes, nil)
		}
		_ = wb.Commit(pebble.NoSync)
		_ = wb.Close()
	}
}
