package store

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

const scheduleBucket = "schedules"

// BoltStore keeps records as JSON values keyed by task ID.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the schedule database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(scheduleBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Save stores or replaces a record.
func (s *BoltStore) Save(_ context.Context, r *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(scheduleBucket))
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.TaskID), data)
	})
}

// Delete removes a record. Deleting an unknown task is not an error.
func (s *BoltStore) Delete(_ context.Context, taskID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(scheduleBucket)).Delete([]byte(taskID))
	})
}

// Get retrieves a record by task ID.
func (s *BoltStore) Get(_ context.Context, taskID string) (*Record, error) {
	var r *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(scheduleBucket)).Get([]byte(taskID))
		if data == nil {
			return nil
		}
		r = &Record{}
		return json.Unmarshal(data, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Due scans the bucket for records due at now.
func (s *BoltStore) Due(_ context.Context, now time.Time) ([]*Record, error) {
	var due []*Record
	err := s.each(func(r *Record) {
		if isDue(r, now) {
			due = append(due, r)
		}
	})
	slices.SortFunc(due, func(a, b *Record) int { return a.NextDueAt.Compare(b.NextDueAt) })
	return due, err
}

// All returns every stored record in task ID order.
func (s *BoltStore) All(_ context.Context) ([]*Record, error) {
	var all []*Record
	err := s.each(func(r *Record) { all = append(all, r) })
	return all, err
}

// Count returns the number of keys in the bucket.
func (s *BoltStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(scheduleBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// each decodes every record, skipping entries that no longer parse.
func (s *BoltStore) each(fn func(*Record)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(scheduleBucket)).ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return nil // Skip invalid entries
			}
			fn(&r)
			return nil
		})
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
