// Package metadata persists the remote attributes of every synchronized
// entity so the local tree can be mapped back to remote documents
// offline. Records are keyed by (name, kind).
package metadata

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for a missing database directory.
	storeDirPerm = fs.FileMode(0o755)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the default time to wait for the bolt file lock.
	storeOpenTimeout = 5 * time.Second
)

// filesBucket maps a root-relative page path to the hash of the content
// last written or uploaded for it.
var filesBucket = []byte("files")

// Entity is anything the store can snapshot.
type Entity interface {
	Name() string
	Kind() journal.Kind
	json.Marshaler
}

// Record is one stored snapshot. Data is the entity's remote document JSON.
type Record struct {
	Kind      journal.Kind    `json:"kind"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	WrittenAt time.Time       `json:"written_at"`
}

// Store is a bbolt-backed metadata store. It holds no open handle:
// every call opens the database, does one transaction and closes it,
// so separate processes can share the file. Reads take a shared lock.
type Store struct {
	path    string
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithOpenTimeout sets how long a call waits for the database lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New returns a Store backed by the bolt file at path. The file is
// created on the first write.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, timeout: storeOpenTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), storeDirPerm); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	db, err := bolt.Open(s.path, storeFilePerm, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return fmt.Errorf("opening metadata db: %w", err)
	}
	defer db.Close()

	return db.Update(fn)
}

// view runs fn in a read-only transaction. A database file that has
// not been created yet reads as empty and fn is not run.
func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	db, err := bolt.Open(s.path, storeFilePerm, &bolt.Options{Timeout: s.timeout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("opening metadata db: %w", err)
	}
	defer db.Close()

	return db.View(fn)
}

// Put snapshots entity under (name, kind), replacing any earlier record.
func (s *Store) Put(entity Entity) error {
	data, err := entity.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", entity.Kind(), entity.Name(), err)
	}

	rec := Record{
		Kind:      entity.Kind(),
		Name:      entity.Name(),
		Data:      data,
		WrittenAt: s.now().UTC(),
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s %q: %w", rec.Kind, rec.Name, err)
	}

	err = s.update(func(tx *bolt.Tx) error {
		kb, err := tx.CreateBucketIfNotExists([]byte(rec.Kind))
		if err != nil {
			return err
		}

		key := []byte(rec.Name)
		if kb.Bucket(key) != nil {
			if err := kb.DeleteBucket(key); err != nil {
				return err
			}
		}

		nb, err := kb.CreateBucket(key)
		if err != nil {
			return err
		}

		seq, err := nb.NextSequence()
		if err != nil {
			return err
		}

		return nb.Put(seqKey(seq), value)
	})
	if err != nil {
		return fmt.Errorf("storing %s %q: %w", rec.Kind, rec.Name, err)
	}

	return nil
}

// Get returns the record stored under (name, kind). It fails with
// ErrRecordNotFound when there is none and ErrAmbiguousRecord when the
// key holds more than one record.
func (s *Store) Get(name string, kind journal.Kind) (Record, error) {
	var (
		rec   Record
		count int
	)

	err := s.view(func(tx *bolt.Tx) error {
		kb := tx.Bucket([]byte(kind))
		if kb == nil {
			return nil
		}

		nb := kb.Bucket([]byte(name))
		if nb == nil {
			return nil
		}

		return nb.ForEach(func(_, v []byte) error {
			count++
			if count > 1 {
				return nil
			}

			return json.Unmarshal(v, &rec)
		})
	})
	if err != nil {
		return Record{}, fmt.Errorf("reading %s %q: %w", kind, name, err)
	}

	switch {
	case count == 0:
		return Record{}, fmt.Errorf("%s %q: %w", kind, name, syncerr.ErrRecordNotFound)
	case count > 1:
		return Record{}, fmt.Errorf("%s %q has %d records: %w", kind, name, count, syncerr.ErrAmbiguousRecord)
	}

	return rec, nil
}

// All returns every record of a kind, ordered by name. Keys holding
// more than one record are reported with ErrAmbiguousRecord.
func (s *Store) All(kind journal.Kind) ([]Record, error) {
	var (
		out       []Record
		ambiguous []string
	)

	err := s.view(func(tx *bolt.Tx) error {
		kb := tx.Bucket([]byte(kind))
		if kb == nil {
			return nil
		}

		return kb.ForEachBucket(func(name []byte) error {
			nb := kb.Bucket(name)
			if nb.Stats().KeyN > 1 {
				ambiguous = append(ambiguous, string(name))
				return nil
			}

			_, v := nb.Cursor().First()
			if v == nil {
				return nil
			}

			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding %s %q: %w", kind, name, err)
			}

			out = append(out, rec)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", kind, err)
	}

	if len(ambiguous) > 0 {
		return out, fmt.Errorf("%s %q: %w", kind, ambiguous, syncerr.ErrAmbiguousRecord)
	}

	return out, nil
}

// Folder decodes the folder record stored under name.
func (s *Store) Folder(name string) (journal.Folder, error) {
	rec, err := s.Get(name, journal.KindFolder)
	if err != nil {
		return journal.Folder{}, err
	}

	return journal.DecodeFolder(rec.Data)
}

// Entry decodes the entry record stored under name.
func (s *Store) Entry(name string) (journal.Entry, error) {
	rec, err := s.Get(name, journal.KindEntry)
	if err != nil {
		return journal.Entry{}, err
	}

	return journal.DecodeEntry(rec.Data)
}

// Page decodes the page record stored under name.
func (s *Store) Page(name string) (journal.Page, error) {
	rec, err := s.Get(name, journal.KindPage)
	if err != nil {
		return journal.Page{}, err
	}

	return journal.DecodePage(rec.Data)
}

// Folders decodes every folder record.
func (s *Store) Folders() ([]journal.Folder, error) {
	recs, err := s.All(journal.KindFolder)
	if err != nil {
		return nil, err
	}

	folders := make([]journal.Folder, 0, len(recs))
	for _, rec := range recs {
		f, err := journal.DecodeFolder(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("folder record %q: %w", rec.Name, err)
		}

		folders = append(folders, f)
	}

	return folders, nil
}

// SetFileHash records the content hash last synchronized for a page file.
func (s *Store) SetFileHash(relPath, hash string) error {
	err := s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(filesBucket)
		if err != nil {
			return err
		}

		return b.Put([]byte(relPath), []byte(hash))
	})
	if err != nil {
		return fmt.Errorf("storing hash for %s: %w", relPath, err)
	}

	return nil
}

// FileHash returns the hash recorded for a page file, or "" if none.
func (s *Store) FileHash(relPath string) (string, error) {
	var hash string

	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		if b == nil {
			return nil
		}

		hash = string(b.Get([]byte(relPath)))

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading hash for %s: %w", relPath, err)
	}

	return hash, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)

	return b
}
