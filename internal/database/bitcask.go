// Package database wraps a bitcask key-value store holding the tool's local
// state: saved upload sessions, the publish journal and the suggestion
// cache. Values are gzip-compressed on disk.
package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

var gzipMagicBytes = []byte{0x1f, 0x8b}

// Key prefixes partition the store by concern.
const (
	sessionPrefix    = "session:"
	journalPrefix    = "journal:"
	suggestionPrefix = "suggestions:"
)

// DB wraps the bitcask instance with compression and domain helpers.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
}

// Open initializes and returns a DB instance, creating the parent directory
// when needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Debugf("Database opened at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database.
func (d *DB) Close() error {
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves a value, decompressing it when stored gzipped.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}
	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair.
func (d *DB) Put(key []byte, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressed)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs with decompressed values. A value
// that cannot be read or decompressed is skipped, not fatal.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: error getting value for key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: error decompressing value for key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

// --- Session helpers ---

// SaveSession persists the form state under the session name so an upload
// can be resumed after a restart.
func (d *DB) SaveSession(name string, form *models.FormData) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	data, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("error marshalling session %s: %w", name, err)
	}
	return d.Put([]byte(sessionPrefix+name), data)
}

// LoadSession restores a saved session's form state.
func (d *DB) LoadSession(name string) (*models.FormData, error) {
	data, err := d.Get([]byte(sessionPrefix + name))
	if err != nil {
		return nil, err
	}
	var form models.FormData
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("error unmarshalling session %s: %w", name, err)
	}
	return &form, nil
}

// DeleteSession removes a saved session. Deleting an unknown session is not
// an error.
func (d *DB) DeleteSession(name string) error {
	err := d.Delete([]byte(sessionPrefix + name))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListSessions returns the names of all saved sessions.
func (d *DB) ListSessions() ([]string, error) {
	var names []string
	err := d.Fold(func(key, _ []byte) error {
		k := string(key)
		if strings.HasPrefix(k, sessionPrefix) {
			names = append(names, strings.TrimPrefix(k, sessionPrefix))
		}
		return nil
	})
	return names, err
}

// --- Publish journal ---

// JournalEntry records one executed action for auditing and resume.
type JournalEntry struct {
	Session   string              `json:"session"`
	Kind      models.ActionKind   `json:"kind"`
	Key       string              `json:"key"`
	Status    models.ActionStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// AppendJournal records the final status of one executed action. Entries are
// keyed per action, so re-running a session overwrites the previous outcome.
func (d *DB) AppendJournal(entry JournalEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling journal entry: %w", err)
	}
	key := fmt.Sprintf("%s%s:%s:%s", journalPrefix, entry.Session, entry.Kind, entry.Key)
	return d.Put([]byte(key), data)
}

// Journal returns the recorded outcomes for a session.
func (d *DB) Journal(session string) ([]JournalEntry, error) {
	prefix := journalPrefix + session + ":"
	var entries []JournalEntry
	err := d.Fold(func(key, value []byte) error {
		if !strings.HasPrefix(string(key), prefix) {
			return nil
		}
		var entry JournalEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping unreadable journal entry %s", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// ClearJournal drops all journal entries for a session.
func (d *DB) ClearJournal(session string) error {
	prefix := journalPrefix + session + ":"
	var keys [][]byte
	err := d.Fold(func(key, _ []byte) error {
		if strings.HasPrefix(string(key), prefix) {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// --- Suggestion cache ---

// cachedSuggestions wraps a cached payload with its storage time for TTL
// checks on read.
type cachedSuggestions struct {
	StoredAt time.Time       `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// PutCached stores a suggestion payload under a cache key.
func (d *DB) PutCached(cacheKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling cache payload for %s: %w", cacheKey, err)
	}
	wrapped, err := json.Marshal(cachedSuggestions{StoredAt: time.Now().UTC(), Payload: raw})
	if err != nil {
		return fmt.Errorf("error marshalling cache envelope for %s: %w", cacheKey, err)
	}
	return d.Put([]byte(suggestionPrefix+cacheKey), wrapped)
}

// GetCached loads a cached payload when it is younger than ttl. Expired
// entries are deleted and reported as ErrNotFound.
func (d *DB) GetCached(cacheKey string, ttl time.Duration, out any) error {
	key := []byte(suggestionPrefix + cacheKey)
	data, err := d.Get(key)
	if err != nil {
		return err
	}
	var wrapped cachedSuggestions
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("error unmarshalling cache envelope for %s: %w", cacheKey, err)
	}
	if ttl > 0 && time.Since(wrapped.StoredAt) > ttl {
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warnf("Failed to evict expired cache entry %s", cacheKey)
		}
		return ErrNotFound
	}
	return json.Unmarshal(wrapped.Payload, out)
}

// ClearCache drops every cached suggestion payload.
func (d *DB) ClearCache() (int, error) {
	var keys [][]byte
	err := d.Fold(func(key, _ []byte) error {
		if strings.HasPrefix(string(key), suggestionPrefix) {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	return len(keys), nil
}

// --- Compression helpers ---

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data")
		return value, nil
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data")
		return value, nil
	}
	return decompressed, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err = gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	if err = gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
