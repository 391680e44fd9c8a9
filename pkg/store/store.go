package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"
	"github.com/SHAIKYASIR/skillsync/pkg/store/keys"
	"github.com/SHAIKYASIR/skillsync/pkg/store/locks"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// Store is the schema-aware row store on top of pebble.
type Store struct {
	db     *db.DB
	tables map[string]*Table
	locks  *locks.Keyed
	ids    *IDGen
}

type Option func(*Store)

// WithClock overrides the time source used for ids and created fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.ids = NewIDGen(now) }
}

// New binds the schema to an opened database and stamps the schema version.
func New(d *db.DB, tables []*Table, opts ...Option) (*Store, error) {
	s := &Store{
		db:     d,
		tables: make(map[string]*Table, len(tables)),
		locks:  locks.New(),
		ids:    NewIDGen(nil),
	}
	for _, o := range opts {
		o(s)
	}
	for _, t := range tables {
		if err := t.check(); err != nil {
			return nil, err
		}
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("duplicate table %q", t.Name)
		}
		s.tables[t.Name] = t
	}
	if err := s.ensureVersion(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureVersion() error {
	v, err := s.db.Get([]byte(keys.SystemVersionKey))
	switch {
	case err == nil:
		if string(v) != keys.SchemaVersion {
			return fmt.Errorf("unsupported store version %q (want %s)", v, keys.SchemaVersion)
		}
		return nil
	case db.IsNotFound(err):
		logger.Info("store_version_initialized", "version", keys.SchemaVersion)
		return s.db.Set([]byte(keys.SystemVersionKey), []byte(keys.SchemaVersion))
	default:
		return Storage(err, "read store version")
	}
}

// DB returns the underlying database.
func (s *Store) DB() *db.DB { return s.db }

func (s *Store) table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, Validationf("unknown table %q", name)
	}
	return t, nil
}

func rowLock(table, id string) string { return "row:" + table + ":" + id }

func uniqueLock(table, index, value string) string {
	return "uniq:" + table + ":" + index + ":" + keys.Escape(value)
}

// prepare validates and normalizes fields against t. When partial is false
// every required field must be present.
func prepare(t *Table, fields map[string]any, partial bool) (Row, error) {
	out := make(Row, len(fields))
	for name, v := range fields {
		if name == IDField {
			return nil, Validationf("%s.id cannot be set", t.Name)
		}
		f, ok := t.field(name)
		if !ok {
			return nil, Validationf("%s has no field %q", t.Name, name)
		}
		if name == t.CreatedField {
			return nil, Validationf("%s.%s is set by the store", t.Name, name)
		}
		if partial && f.Immutable {
			return nil, Validationf("%s.%s is immutable", t.Name, name)
		}
		if v == nil {
			if f.Required {
				return nil, Validationf("%s.%s is required", t.Name, name)
			}
			out[name] = nil
			continue
		}
		nv, err := normalize(t.Name, f, v)
		if err != nil {
			return nil, err
		}
		out[name] = nv
	}
	if !partial {
		for _, f := range t.Fields {
			if !f.Required || f.Name == t.CreatedField {
				continue
			}
			if v, ok := out[f.Name]; !ok || v == nil {
				return nil, Validationf("%s.%s is required", t.Name, f.Name)
			}
		}
	}
	return out, nil
}

// Insert validates fields, assigns an id and writes the row and its index
// entries in one batch.
func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := s.table(table)
	if err != nil {
		return "", err
	}
	row, err := prepare(t, fields, false)
	if err != nil {
		return "", err
	}
	for k, v := range row {
		if v == nil {
			delete(row, k)
		}
	}

	var lockKeys []string
	for _, ix := range t.Indexes {
		if !ix.Unique {
			continue
		}
		if v, ok := indexValue(row[ix.Field]); ok {
			lockKeys = append(lockKeys, uniqueLock(t.Name, ix.Name, v))
		}
	}
	unlock := s.locks.LockMany(lockKeys...)
	defer unlock()

	if err := s.checkUnique(t, "", row); err != nil {
		return "", err
	}

	id, ts := s.ids.Next()
	row[IDField] = id
	if t.CreatedField != "" {
		row[t.CreatedField] = float64(ts.UnixMilli())
	}

	start := time.Now()
	b := s.db.NewBatch()
	if err := putRow(b, t, row); err != nil {
		b.Close()
		return "", err
	}
	for _, ix := range t.Indexes {
		if err := putIndex(b, t, ix, row); err != nil {
			b.Close()
			return "", err
		}
	}
	if err := s.db.Commit(b); err != nil {
		return "", Storage(err, "insert "+t.Name)
	}
	observeWrite(t.Name, "insert", time.Since(start))
	logger.Debug("row_inserted", "table", t.Name, "id", id)
	return id, nil
}

// Get returns a single row.
func (s *Store) Get(ctx context.Context, table, id string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return s.getFrom(s.db.Reader(), t, id)
}

func (s *Store) getFrom(r db.Reader, t *Table, id string) (Row, error) {
	if keys.ValidateID(id) != nil {
		return nil, NotFoundf("%s %q not found", t.Name, id)
	}
	raw, err := db.GetFrom(r, []byte(keys.GenRowKey(t.Name, id)))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, NotFoundf("%s %q not found", t.Name, id)
		}
		return nil, Storage(err, "get "+t.Name)
	}
	return decodeRow(raw)
}

// Patch merges partial into an existing row. A nil value clears an optional
// field. Index entries follow the changed values in the same batch.
func (s *Store) Patch(ctx context.Context, table, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := s.table(table)
	if err != nil {
		return err
	}
	changes, err := prepare(t, partial, true)
	if err != nil {
		return err
	}

	lockKeys := []string{rowLock(t.Name, id)}
	for _, ix := range t.Indexes {
		if !ix.Unique {
			continue
		}
		if v, ok := indexValue(changes[ix.Field]); ok {
			lockKeys = append(lockKeys, uniqueLock(t.Name, ix.Name, v))
		}
	}
	unlock := s.locks.LockMany(lockKeys...)
	defer unlock()

	return s.patchLocked(t, id, changes)
}

func (s *Store) patchLocked(t *Table, id string, changes Row) error {
	current, err := s.getFrom(s.db.Reader(), t, id)
	if err != nil {
		return err
	}
	next := make(Row, len(current)+len(changes))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range changes {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}

	if err := s.checkUnique(t, id, next); err != nil {
		return err
	}

	start := time.Now()
	b := s.db.NewBatch()
	if err := putRow(b, t, next); err != nil {
		b.Close()
		return err
	}
	for _, ix := range t.Indexes {
		oldV, hadOld := indexValue(current[ix.Field])
		newV, hasNew := indexValue(next[ix.Field])
		if hadOld == hasNew && oldV == newV {
			continue
		}
		if hadOld {
			if err := deleteIndex(b, t, ix, oldV, id); err != nil {
				b.Close()
				return err
			}
		}
		if hasNew {
			if err := putIndex(b, t, ix, next); err != nil {
				b.Close()
				return err
			}
		}
	}
	if err := s.db.Commit(b); err != nil {
		return Storage(err, "patch "+t.Name)
	}
	observeWrite(t.Name, "patch", time.Since(start))
	logger.Debug("row_patched", "table", t.Name, "id", id, "fields", len(changes))
	return nil
}

// Upsert finds the row whose unique index equals value. If it exists, update
// is merged into it; otherwise insert (which must carry value) creates it. The
// lookup and the write happen under one lock on the unique value.
func (s *Store) Upsert(ctx context.Context, table, index, value string, insert, update map[string]any) (id string, created bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	t, err := s.table(table)
	if err != nil {
		return "", false, err
	}
	ix, ok := t.index(index)
	if !ok || !ix.Unique {
		return "", false, Validationf("%s has no unique index %q", t.Name, index)
	}

	unlock := s.locks.Lock(uniqueLock(t.Name, ix.Name, value))
	existing, err := s.lookupUnique(s.db.Reader(), t, ix, value)
	if err != nil && !IsNotFound(err) {
		unlock()
		return "", false, err
	}
	if err == nil {
		unlock()
		// row lock only after releasing the unique lock; Patch re-takes
		// the unique lock itself if update changes the indexed field
		return existing, false, s.Patch(ctx, table, existing, update)
	}
	defer unlock()

	row, err := prepare(t, insert, false)
	if err != nil {
		return "", false, err
	}
	if got, _ := indexValue(row[ix.Field]); got != value {
		return "", false, Validationf("%s.%s must equal the upsert key", t.Name, ix.Field)
	}
	for k, v := range row {
		if v == nil {
			delete(row, k)
		}
	}
	// other unique indexes on the table are still checked
	if err := s.checkUnique(t, "", row); err != nil {
		return "", false, err
	}

	newID, ts := s.ids.Next()
	row[IDField] = newID
	if t.CreatedField != "" {
		row[t.CreatedField] = float64(ts.UnixMilli())
	}
	start := time.Now()
	b := s.db.NewBatch()
	if err := putRow(b, t, row); err != nil {
		b.Close()
		return "", false, err
	}
	for _, ix := range t.Indexes {
		if err := putIndex(b, t, ix, row); err != nil {
			b.Close()
			return "", false, err
		}
	}
	if err := s.db.Commit(b); err != nil {
		return "", false, Storage(err, "upsert "+t.Name)
	}
	observeWrite(t.Name, "insert", time.Since(start))
	return newID, true, nil
}

func (s *Store) lookupUnique(r db.Reader, t *Table, ix Index, value string) (string, error) {
	raw, err := db.GetFrom(r, []byte(keys.GenUniqueKey(t.Name, ix.Name, value)))
	if err != nil {
		if db.IsNotFound(err) {
			return "", NotFoundf("%s with %s %q not found", t.Name, ix.Field, value)
		}
		return "", Storage(err, "lookup "+t.Name+"."+ix.Name)
	}
	return string(raw), nil
}

// checkUnique rejects row if any unique value it carries already belongs to a
// row other than selfID.
func (s *Store) checkUnique(t *Table, selfID string, row Row) error {
	for _, ix := range t.Indexes {
		if !ix.Unique {
			continue
		}
		v, ok := indexValue(row[ix.Field])
		if !ok {
			continue
		}
		owner, err := s.lookupUnique(s.db.Reader(), t, ix, v)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if owner != selfID {
			return Validationf("%s.%s %q is already taken", t.Name, ix.Field, v)
		}
	}
	return nil
}

func putRow(b *pebble.Batch, t *Table, row Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return Storage(err, "encode "+t.Name)
	}
	if err := b.Set([]byte(keys.GenRowKey(t.Name, row.ID())), data, nil); err != nil {
		return Storage(err, "stage "+t.Name)
	}
	return nil
}

func putIndex(b *pebble.Batch, t *Table, ix Index, row Row) error {
	v, ok := indexValue(row[ix.Field])
	if !ok {
		return nil
	}
	var key string
	if ix.Unique {
		key = keys.GenUniqueKey(t.Name, ix.Name, v)
	} else {
		key = keys.GenIndexKey(t.Name, ix.Name, v, row.ID())
	}
	if err := b.Set([]byte(key), []byte(row.ID()), nil); err != nil {
		return Storage(err, "stage index "+ix.Name)
	}
	return nil
}

func deleteIndex(b *pebble.Batch, t *Table, ix Index, value, id string) error {
	var key string
	if ix.Unique {
		key = keys.GenUniqueKey(t.Name, ix.Name, value)
	} else {
		key = keys.GenIndexKey(t.Name, ix.Name, value, id)
	}
	if err := b.Delete([]byte(key), nil); err != nil {
		return Storage(err, "stage index delete "+ix.Name)
	}
	return nil
}

func decodeRow(raw []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, Storage(errors.WithStack(err), "decode row")
	}
	return row, nil
}
