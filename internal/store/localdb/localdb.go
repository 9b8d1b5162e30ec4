// Package localdb implements the store interfaces on top of leveldb.
//
// Proposals are saved under "proposal/<id>", votes under "vote/<seq>" with a
// "voter/<address>/<proposal>" index pointing at the vote sequence. Update
// calls are serialized and run in a leveldb transaction so reads inside it
// observe its own writes. Reads outside Update use a snapshot of the last
// commit and never wait for an open transaction.
package localdb

import (
	"context"
	"sync"

	"influence-monitoring/internal/store"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var (
	_ store.Store = (*LocalDB)(nil)
)

// LocalDB is a leveldb backed store.Store.
type LocalDB struct {
	sync.RWMutex // guards shutdown

	writer   sync.Mutex // serializes Update
	db       *leveldb.DB
	shutdown bool
}

// New opens or creates the leveldb database at path.
func New(path string) (*LocalDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, store.Unavailable(err, "open leveldb")
	}
	log.Infof("Local store opened at %v", path)
	return &LocalDB{db: db}, nil
}

// NewMemory returns a store kept entirely in memory.
func NewMemory() (*LocalDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, store.Unavailable(err, "open memory leveldb")
	}
	return &LocalDB{db: db}, nil
}

// Update runs fn inside a leveldb transaction.
//
// This function satisfies the store Store interface.
func (l *LocalDB) Update(ctx context.Context, fn func(store.Tx) error) error {
	l.RLock()
	defer l.RUnlock()
	if l.shutdown {
		return store.ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.writer.Lock()
	defer l.writer.Unlock()

	tr, err := l.db.OpenTransaction()
	if err != nil {
		return store.Unavailable(err, "open transaction")
	}
	if err := fn(&tx{kv: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		tr.Discard()
		return store.Unavailable(err, "commit")
	}
	return nil
}

// view runs a read-only fn against a snapshot of the database.
func (l *LocalDB) view(ctx context.Context, fn func(t *tx) error) error {
	l.RLock()
	defer l.RUnlock()
	if l.shutdown {
		return store.ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return store.Unavailable(err, "snapshot")
	}
	defer snap.Release()
	return fn(&tx{kv: snapshot{snap}})
}

// update runs fn in its own transaction.
func (l *LocalDB) update(ctx context.Context, fn func(t *tx) error) error {
	return l.Update(ctx, func(t store.Tx) error {
		return fn(t.(*tx))
	})
}

// Close shuts the store down.
//
// This function satisfies the store Store interface.
func (l *LocalDB) Close() error {
	l.Lock()
	defer l.Unlock()
	if l.shutdown {
		return nil
	}
	l.shutdown = true
	if err := l.db.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
