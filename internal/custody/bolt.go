package custody

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// bucketEvidence holds one nested bucket per identifier; keys inside are
// big-endian version numbers so a cursor walks versions in order.
var bucketEvidence = []byte("evidence")

// BoltStore persists evidence chains in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at dbPath. The parent directory
// is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("custody: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("custody: open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvidence)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("custody: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func seqKey(seq int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(seq))
	return k
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("custody: decode entry: %w", err)
	}
	return &e, nil
}

// Append implements Store. bbolt allows a single writer, which serialises
// appends.
func (s *BoltStore) Append(_ context.Context, sub Submission) (*Entry, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chain, err := tx.Bucket(bucketEvidence).CreateBucketIfNotExists([]byte(sub.EvidenceID))
		if err != nil {
			return fmt.Errorf("custody: create chain bucket: %w", err)
		}

		var prev *Entry
		if _, v := chain.Cursor().Last(); v != nil {
			if prev, err = decodeEntry(v); err != nil {
				return err
			}
		}

		entry = newEntry(sub, prev)
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("custody: encode entry: %w", err)
		}
		return chain.Put(seqKey(entry.Seq), data)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Latest implements Store.
func (s *BoltStore) Latest(_ context.Context, evidenceID string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		chain := tx.Bucket(bucketEvidence).Bucket([]byte(evidenceID))
		if chain == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
		}
		_, v := chain.Cursor().Last()
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
		}
		var err error
		entry, err = decodeEntry(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// History implements Store.
func (s *BoltStore) History(_ context.Context, evidenceID string) ([]*Entry, error) {
	var out []*Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		chain := tx.Bucket(bucketEvidence).Bucket([]byte(evidenceID))
		if chain == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
		}
		return chain.ForEach(func(_, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, evidenceID)
	}
	return out, nil
}

// All implements Store. Nested bucket names iterate in byte order, which is
// identifier order.
func (s *BoltStore) All(_ context.Context) ([]*Entry, error) {
	out := []*Entry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketEvidence)
		return root.ForEachBucket(func(name []byte) error {
			_, v := root.Bucket(name).Cursor().Last()
			if v == nil {
				return nil
			}
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Verify implements Store.
func (s *BoltStore) Verify(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketEvidence)
		return root.ForEachBucket(func(name []byte) error {
			var v chainVerifier
			return root.Bucket(name).ForEach(func(_, data []byte) error {
				e, err := decodeEntry(data)
				if err != nil {
					return err
				}
				return v.next(e)
			})
		})
	})
}

// Stats implements Store.
func (s *BoltStore) Stats(_ context.Context) (Stats, error) {
	var st Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketEvidence)
		return root.ForEachBucket(func(name []byte) error {
			st.Identifiers++
			st.Versions += root.Bucket(name).Stats().KeyN
			return nil
		})
	})
	return st, err
}
