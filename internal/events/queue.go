// Package events queues due occurrences locally until a publisher has
// delivered them. Events survive restarts and are removed only after a
// successful delivery.
package events

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const pendingBucket = "pending_due_events"

// DueEvent records that a task's occurrence came due. ID is stable across
// redelivery so consumers can deduplicate; Seq orders the local queue.
type DueEvent struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	TaskID    string    `json:"task_id"`
	DueAt     time.Time `json:"due_at"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewDueEvent builds an event with a fresh ID.
func NewDueEvent(taskID string, dueAt, emittedAt time.Time) *DueEvent {
	return &DueEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		DueAt:     dueAt,
		EmittedAt: emittedAt,
	}
}

// Queue provides persistent storage for undelivered events.
type Queue struct {
	db *bolt.DB
}

// OpenQueue opens or creates the queue database.
func OpenQueue(dbPath string) (*Queue, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Queue{db: db}, nil
}

// Enqueue appends events in one transaction, assigning Seq.
func (q *Queue) Enqueue(evs ...*DueEvent) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		for _, e := range evs {
			seq, _ := b.NextSequence()
			e.Seq = seq

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dequeue returns up to limit events, oldest first, without removing them.
func (q *Queue) Dequeue(limit int) ([]*DueEvent, error) {
	var evs []*DueEvent

	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(pendingBucket)).Cursor()
		for k, v := c.First(); k != nil && len(evs) < limit; k, v = c.Next() {
			var e DueEvent
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			evs = append(evs, &e)
		}
		return nil
	})

	return evs, err
}

// Remove deletes delivered events by Seq.
func (q *Queue) Remove(seqs []uint64) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		for _, seq := range seqs {
			if err := b.Delete(itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of undelivered events.
func (q *Queue) Count() (int, error) {
	var count int
	err := q.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(pendingBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
