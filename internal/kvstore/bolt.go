package kvstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("client")

// BoltStore is a KV backed by a single bbolt file.
type BoltStore struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	quota int64
	used  int64
}

// OpenBolt opens (or creates) the bbolt file at path. quota <= 0 disables the
// byte quota.
func OpenBolt(path string, quota int64) (*BoltStore, error) {
	// Fail early if the parent directory is missing instead of surfacing a
	// less helpful error from bbolt.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	s := &BoltStore{db: db, quota: quota}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			s.used += int64(len(k) + len(v))
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the file. Further calls return ErrUnavailable.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Used returns the bytes currently accounted against the quota.
func (s *BoltStore) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Get implements KV.
func (s *BoltStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", false, ErrUnavailable
	}
	var (
		out   string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out, found = string(v), true
		}
		return nil
	})
	return out, found, err
}

// Set implements KV.
func (s *BoltStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrUnavailable
	}
	var delta int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return errors.New("kvstore: bucket missing")
		}
		delta = entrySize(key, value)
		if old := b.Get([]byte(key)); old != nil {
			delta -= int64(len(key) + len(old))
		}
		if s.quota > 0 && delta > 0 && s.used+delta > s.quota {
			return ErrQuotaExceeded
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return err
	}
	s.used += delta
	return nil
}

// Delete implements KV.
func (s *BoltStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrUnavailable
	}
	var freed int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if old := b.Get([]byte(key)); old != nil {
			freed = int64(len(key) + len(old))
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	s.used -= freed
	return nil
}

// Scan implements KV. fn runs after the read transaction has ended, so it
// may write to the store.
func (s *BoltStore) Scan(prefix string, fn func(key, value string) error) error {
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return ErrUnavailable
	}
	type kv struct{ k, v string }
	var items []kv
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			items = append(items, kv{string(k), string(v)})
		}
		return nil
	})
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := fn(it.k, it.v); err != nil {
			return err
		}
	}
	return nil
}
