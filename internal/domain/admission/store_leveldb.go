package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const levelKeyPrefix = "admission_"

// LevelDBStore is an embedded Store keeping one JSON document per record.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens, creating if needed, the database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// Ping fails once the database has been closed.
func (s *LevelDBStore) Ping(_ context.Context) error {
	_, err := s.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

func (s *LevelDBStore) Upsert(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode admission %s: %w", rec.ID, err)
	}
	if err := s.db.Put([]byte(levelKeyPrefix+rec.ID), data, nil); err != nil {
		return fmt.Errorf("upsert admission %s: %w", rec.ID, err)
	}
	return nil
}

func (s *LevelDBStore) Get(_ context.Context, id string) (*Record, error) {
	data, err := s.db.Get([]byte(levelKeyPrefix+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admission %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode admission %s: %w", id, err)
	}
	return &rec, nil
}

// List scans every record; the keyspace is ordered by ID, not by time.
func (s *LevelDBStore) List(_ context.Context, limit, offset int) ([]*Record, int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(levelKeyPrefix)), nil)
	defer iter.Release()

	var all []*Record
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, 0, fmt.Errorf("decode admission %s: %w", iter.Key(), err)
		}
		all = append(all, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	sortNewestFirst(all)
	return page(all, limit, offset), len(all), nil
}
