// Package kv defines the bolt-backed implementation of the intent database:
// the intent rows, their append-only event streams, the materialized
// last-event projection, and the request-hash replay index.
package kv

import (
	"os"
	"path"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "intentdb")

const databaseFileName = "kestrel.db"

// Buckets. The event key layout is id || 0x00 || ts_be8 || seq_be8 so a
// prefix scan yields one intent's events in (ts, insertion) order.
var (
	intentsBucket       = []byte("intents")
	intentEventsBucket  = []byte("intent-events")
	lastEventBucket     = []byte("intent-last-event")
	requestHashesBucket = []byte("request-hashes")
	simSummariesBucket  = []byte("sim-summaries")
	submissionsBucket   = []byte("submissions")
	metadataBucket      = []byte("metadata")
)

var allBuckets = [][]byte{
	intentsBucket,
	intentEventsBucket,
	lastEventBucket,
	requestHashesBucket,
	simSummariesBucket,
	submissionsBucket,
	metadataBucket,
}

// ErrVersionConflict is returned by AdvanceIntent when the expected version
// no longer matches the row; a concurrent writer advanced first.
var ErrVersionConflict = errors.New("intent version conflict")

// Store is the bolt-backed intent database. Reads are served straight from
// bolt's mmap; rows are mutable (the CAS advance), so no row cache sits in
// front of them.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// Config options for the intent db.
type Config struct{}

// NewKVStore opens (or initializes) the bolt database under dirPath, creates
// the bucket schema, and registers the bolt prometheus collector.
func NewKVStore(dirPath string, cfg *Config) (*Store, error) {
	if err := os.MkdirAll(dirPath, params.KestrelIoConfig().ReadWriteExecutePermissions); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(
		datafile,
		params.KestrelIoConfig().ReadWritePermissions,
		&bolt.Options{Timeout: params.KestrelIoConfig().BoltTimeout},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &Store{
		db:           boltDB,
		databasePath: datafile,
	}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx, allBuckets...)
	}); err != nil {
		return nil, err
	}
	err = prometheusCollector(boltDB)
	return kv, err
}

func prometheusCollector(db *bolt.DB) error {
	// Duplicate registration happens when tests open several stores in one
	// process; it is harmless, so only log it.
	if err := prometheus.Register(prombolt.New("boltDB", db)); err != nil {
		log.WithError(err).Debug("Skipping bolt collector registration")
	}
	return nil
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying bolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ClearDB removes any previously stored data at the configured data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.databasePath)
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// Size returns the db size in bytes.
func (s *Store) Size() (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	return s.db.Update(fn)
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	return s.db.View(fn)
}
