package db

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store/keys"

	"github.com/cockroachdb/pebble"
)

// Reader is satisfied by both *pebble.DB and *pebble.Snapshot.
type Reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type Options struct {
	ReadOnly bool
	// NoSync commits without fsync. Only for tests and benchmarks.
	NoSync bool
}

// DB is an opened pebble database.
type DB struct {
	client *pebble.DB
	path   string
	opts   Options
}

// Open opens or creates the pebble database at path.
func Open(path string, o Options) (*DB, error) {
	opts := &pebble.Options{
		ReadOnly: o.ReadOnly,
	}
	client, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &DB{client: client, path: path, opts: o}, nil
}

func (d *DB) Path() string { return d.path }

// Ready reports whether the database is open.
func (d *DB) Ready() bool { return d != nil && d.client != nil }

func (d *DB) Close() error {
	if !d.Ready() {
		return nil
	}
	if err := d.client.Close(); err != nil {
		return err
	}
	d.client = nil
	return nil
}

// Flush forces memtables to disk.
func (d *DB) Flush() error {
	if !d.Ready() {
		return errNotOpen
	}
	if d.opts.ReadOnly {
		return nil
	}
	return d.client.Flush()
}

// DiskUsage returns the bytes pebble currently uses on disk.
func (d *DB) DiskUsage() uint64 {
	if !d.Ready() {
		return 0
	}
	return d.client.Metrics().DiskSpaceUsage()
}

var errNotOpen = fmt.Errorf("pebble not opened; call db.Open first")

func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (d *DB) writeOpt() *pebble.WriteOptions {
	if d.opts.NoSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

// Get reads a key from the live database.
func (d *DB) Get(key []byte) ([]byte, error) {
	if !d.Ready() {
		return nil, errNotOpen
	}
	return GetFrom(d.client, key)
}

// Set writes a single key outside of a batch.
func (d *DB) Set(key, value []byte) error {
	if !d.Ready() {
		return errNotOpen
	}
	return d.client.Set(key, value, d.writeOpt())
}

func (d *DB) NewBatch() *pebble.Batch {
	return d.client.NewBatch()
}

// Commit applies the batch atomically and closes it.
func (d *DB) Commit(b *pebble.Batch) error {
	defer b.Close()
	if !d.Ready() {
		return errNotOpen
	}
	if err := b.Commit(d.writeOpt()); err != nil {
		logger.Error("batch_commit_failed", "count", b.Count(), "error", err)
		return err
	}
	return nil
}

// Snapshot returns a point-in-time view; the caller must Close it.
func (d *DB) Snapshot() (*pebble.Snapshot, error) {
	if !d.Ready() {
		return nil, errNotOpen
	}
	return d.client.NewSnapshot(), nil
}

// Reader exposes the live database as a Reader.
func (d *DB) Reader() Reader { return d.client }

// GetFrom reads key from r and returns a copy of the value.
func GetFrom(r Reader, key []byte) ([]byte, error) {
	v, closer, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	if closer != nil {
		closer.Close()
	}
	return out, nil
}

// ScanPrefix calls fn for every key under prefix, in key order or reversed.
// Returning false from fn stops the scan.
func ScanPrefix(r Reader, prefix []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keys.UpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First
	step := iter.Next
	if reverse {
		valid = iter.Last
		step = iter.Prev
	}
	for ok := valid(); ok; ok = step() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		more, err := fn(k, iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}
