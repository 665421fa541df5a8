// Package engine wires the storage pieces into one database handle.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tuanvm/hazeldb/internal"
	"github.com/tuanvm/hazeldb/internal/bufferpool"
	"github.com/tuanvm/hazeldb/internal/storage"
	"github.com/tuanvm/hazeldb/internal/txn"
	"github.com/tuanvm/hazeldb/internal/wal"
)

type DB struct {
	disk *storage.DiskManager
	pool *bufferpool.Manager
	log  *wal.Manager
	txns *txn.Manager
}

// Open builds the disk manager, optional redo log and buffer pool, and
// reserves page 0 for the master record table on a fresh database.
func Open(cfg *internal.HazelConfig) (*DB, error) {
	fs := storage.LocalFileSet{Dir: cfg.Storage.Workdir, Base: cfg.Storage.Base}
	disk, err := storage.NewDiskManager(fs)
	if err != nil {
		return nil, fmt.Errorf("engine: open disk manager: %w", err)
	}

	var log *wal.Manager
	if cfg.Storage.RedoLog {
		log, err = wal.Open(filepath.Join(cfg.Storage.Workdir, "wal"))
		if err != nil {
			return nil, fmt.Errorf("engine: open redo log: %w", err)
		}
	}

	pool := bufferpool.NewManager(cfg.Storage.PoolSize, disk, log)

	db := &DB{disk: disk, pool: pool, log: log, txns: txn.NewManager()}
	if disk.NextPageID() == 0 {
		if err := db.bootstrap(); err != nil {
			_ = log.Close()
			return nil, err
		}
	}
	return db, nil
}

// bootstrap allocates the master page so page id 0 is never handed to
// anything else.
func (db *DB) bootstrap() error {
	p, err := db.pool.NewPage()
	if err != nil {
		return fmt.Errorf("engine: bootstrap master page: %w", err)
	}
	if p.ID() != 0 {
		db.pool.UnpinPage(p.ID(), false)
		return fmt.Errorf("engine: master page got id %d, want 0", p.ID())
	}
	db.pool.UnpinPage(p.ID(), true)
	if !db.pool.FlushPage(p.ID()) {
		return fmt.Errorf("engine: flush master page")
	}
	slog.Debug("engine: bootstrapped master page")
	return nil
}

// Replay re-applies redo log page images to the data files. Call before
// serving reads when the last shutdown was not clean.
func (db *DB) Replay() error {
	if db.log == nil {
		return nil
	}
	return db.log.Replay(func(pageID int32, image []byte) error {
		return db.disk.WritePage(storage.PageID(pageID), image)
	})
}

func (db *DB) Pool() *bufferpool.Manager  { return db.pool }
func (db *DB) Disk() *storage.DiskManager { return db.disk }
func (db *DB) Log() *wal.Manager          { return db.log }

// Begin starts a transaction handle for index operations.
func (db *DB) Begin() *txn.Transaction { return db.txns.Begin() }

// Close flushes every resident page and syncs the redo log.
func (db *DB) Close() error {
	db.pool.FlushAllPages()
	if db.log != nil {
		if err := db.log.Flush(db.log.LSN()); err != nil {
			return err
		}
		return db.log.Close()
	}
	return nil
}
