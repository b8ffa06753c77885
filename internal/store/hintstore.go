package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketHints      = []byte("hints")
	bucketDismissals = []byte("dismissed_errors")
	keyLastActive    = []byte("last_active_session")
)

// HintStore persists the small bits of local state worth keeping across
// runs: the last-active session key and dismissed error signatures.
// Everything else is rebuildable from the remote source.
type HintStore struct {
	db *bolt.DB
}

func OpenHintStore(path string) (*HintStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("hint db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHints); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDismissals)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &HintStore{db: db}, nil
}

func (h *HintStore) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *HintStore) SaveLastActive(sessionKey string) error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketHints)
		if sessionKey == "" {
			return bucket.Delete(keyLastActive)
		}
		return bucket.Put(keyLastActive, []byte(sessionKey))
	})
}

func (h *HintStore) LastActive() (string, error) {
	if h == nil || h.db == nil {
		return "", nil
	}
	var key string
	err := h.db.View(func(tx *bolt.Tx) error {
		key = string(tx.Bucket(bucketHints).Get(keyLastActive))
		return nil
	})
	return key, err
}

func (h *HintStore) SaveDismissal(sessionKey, signature string) error {
	if h == nil || h.db == nil || sessionKey == "" {
		return nil
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDismissals)
		if signature == "" {
			return bucket.Delete([]byte(sessionKey))
		}
		return bucket.Put([]byte(sessionKey), []byte(signature))
	})
}

func (h *HintStore) Dismissals() (map[string]string, error) {
	out := make(map[string]string)
	if h == nil || h.db == nil {
		return out, nil
	}
	err := h.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDismissals).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}
