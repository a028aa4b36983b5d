// Package stats implements the driver's lifetime operational counters
// (frames sent/received, callbacks, out-of-frame bytes, bad checksums,
// read aborts, ACK waits, retries, broadcast read/write counts), backed
// by bbolt so they survive a process restart the way the original
// driver's in-memory-only counters never could.
package stats

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCounters = []byte("counters")

// Counter names, matching the original driver's m_* statistics fields.
const (
	SentCount            = "sentCnt"
	ReceivedCount        = "receivedCnt"
	CallbackCount        = "callbacks"
	OOFCount             = "oofCnt"
	BadChecksumCount     = "badChecksum"
	ReadAbortCount       = "readAborts"
	ACKWaitingCount      = "ackWaiting"
	RetryCount           = "retries"
	BroadcastReadCount   = "broadcastReadCnt"
	BroadcastWriteCount  = "broadcastWriteCnt"
)

// Store is a durable counter set. Safe for concurrent use (bbolt
// transactions serialize writes internally).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the stats database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCounters)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Incr adds delta to the named counter and returns its new value.
func (s *Store) Incr(name string, delta uint64) (uint64, error) {
	var result uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		cur := uint64(0)
		if v := b.Get([]byte(name)); v != nil {
			cur = binary.BigEndian.Uint64(v)
		}
		cur += delta
		result = cur
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, cur)
		return b.Put([]byte(name), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("stats: incr %s: %w", name, err)
	}
	return result, nil
}

// Get reads the named counter's current value, 0 if never incremented.
func (s *Store) Get(name string) (uint64, error) {
	var result uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if v := b.Get([]byte(name)); v != nil {
			result = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("stats: get %s: %w", name, err)
	}
	return result, nil
}

// Snapshot is a point-in-time copy of every named counter, the
// equivalent of the original driver's GetDriverStatistics call.
type Snapshot map[string]uint64

// All returns a Snapshot of every counter currently stored.
func (s *Store) All() (Snapshot, error) {
	out := make(Snapshot)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("stats: snapshot: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }
