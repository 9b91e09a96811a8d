package store

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var documentsBucket = []byte("documents")

// Bolt stores snapshots in a single-file bbolt database, for deployments
// without Postgres.
type Bolt struct {
	db *bolt.DB
}

func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Load(_ context.Context, id string) (json.RawMessage, error) {
	var snapshot json.RawMessage
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(documentsBucket).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		snapshot = make(json.RawMessage, len(v))
		copy(snapshot, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (b *Bolt) Save(_ context.Context, id string, snapshot json.RawMessage) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).Put([]byte(id), snapshot)
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	return nil
}

func (b *Bolt) List(_ context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return ids, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
