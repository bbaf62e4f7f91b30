package bolt

import (
	"os"
	"path/filepath"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/quantonganh/dailybrief"
)

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = 3 * time.Second

// DB is the embedded store used when db.type is bolt.
type DB struct {
	path    string
	stormDB *storm.DB
}

// NewDB returns a DB backed by the file at path. Open must be called before use.
func NewDB(path string) *DB {
	return &DB{
		path: path,
	}
}

// Open creates the parent directory when needed, opens the file and builds the indexes.
func (db *DB) Open() error {
	if dir := filepath.Dir(db.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Errorf("failed to create %s: %v", dir, err)
		}
	}

	stormDB, err := storm.Open(db.path, storm.BoltOptions(0o600, &bolt.Options{Timeout: openTimeout}))
	if err != nil {
		return errors.Errorf("failed to open %s: %v", db.path, err)
	}

	for _, data := range []interface{}{&dailybrief.Subscriber{}, &dailybrief.Issue{}, &dailybrief.Event{}} {
		if err := stormDB.Init(data); err != nil {
			_ = stormDB.Close()
			return errors.Errorf("failed to init bucket: %v", err)
		}
	}
	db.stormDB = stormDB

	return nil
}

// Close closes the file. It is safe to call on a DB that was never opened.
func (db *DB) Close() error {
	if db.stormDB == nil {
		return nil
	}

	err := db.stormDB.Close()
	db.stormDB = nil
	return err
}
