/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var logsBucket = []byte("logs")

// BoltStore keeps logs in a single bbolt file, keyed by name.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(logsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(ctx context.Context, now time.Time, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return saveUnique(now, func(name string) error {
		return s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(logsBucket)
			if b.Get([]byte(name)) != nil {
				return ErrExists
			}
			return b.Put([]byte(name), body)
		})
	})
}

func (s *BoltStore) Load(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(logsBucket).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		// values are only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(logsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *BoltStore) Close() error { return s.db.Close() }
