package emitter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/kartta/pkg/resource"
)

var bucketEnvelopes = []byte("envelopes")

// BoltEmitter persists envelopes to a bbolt file keyed by document ID.
type BoltEmitter struct {
	db *bbolt.DB
}

// NewBoltEmitter opens (or creates) the database at path.
func NewBoltEmitter(path string) (*BoltEmitter, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEnvelopes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltEmitter{db: db}, nil
}

// Emit stores env under its document ID.
func (e *BoltEmitter) Emit(_ context.Context, env resource.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEnvelopes).Put([]byte(env.Contents.DocumentID()), data)
	})
}

// Get returns the raw envelope stored under documentID.
func (e *BoltEmitter) Get(documentID string) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketEnvelopes).Get([]byte(documentID)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Count returns the number of stored envelopes.
func (e *BoltEmitter) Count() (int, error) {
	var n int
	err := e.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEnvelopes).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database.
func (e *BoltEmitter) Close() error {
	return e.db.Close()
}
