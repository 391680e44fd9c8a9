package store

import (
	"context"

	"github.com/SHAIKYASIR/skillsync/pkg/store/db"
	"github.com/SHAIKYASIR/skillsync/pkg/store/keys"

	"github.com/cockroachdb/errors"
)

type Order int

const (
	Asc Order = iota
	Desc
)

// Query selects rows of one table. With Index empty the whole table is
// scanned; otherwise rows whose indexed field equals Eq are returned. Rows
// come back in creation order (Asc) or reverse creation order (Desc). Limit
// zero means unbounded. Filter, when set, is applied before the limit.
type Query struct {
	Table  string
	Index  string
	Eq     any
	Order  Order
	Limit  int
	Filter func(Row) bool
}

// Query runs q against a snapshot so the result never mixes two commits.
func (s *Store) Query(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.table(q.Table)
	if err != nil {
		return nil, err
	}
	if q.Limit < 0 {
		return nil, Validationf("limit must not be negative")
	}

	snap, err := s.db.Snapshot()
	if err != nil {
		return nil, Storage(err, "snapshot")
	}
	defer snap.Close()

	rows := make([]Row, 0)
	keep := func(row Row) bool {
		if q.Filter != nil && !q.Filter(row) {
			return true
		}
		rows = append(rows, row)
		return q.Limit == 0 || len(rows) < q.Limit
	}

	if q.Index == "" {
		prefix := []byte(keys.GenRowPrefix(t.Name))
		err = db.ScanPrefix(snap, prefix, q.Order == Desc, func(_, v []byte) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			row, err := decodeRow(v)
			if err != nil {
				return false, err
			}
			return keep(row), nil
		})
		if err != nil {
			return nil, wrapScan(err, t.Name)
		}
		return rows, nil
	}

	ix, ok := t.index(q.Index)
	if !ok {
		return nil, Validationf("%s has no index %q", t.Name, q.Index)
	}
	f, _ := t.field(ix.Field)
	eq, err := normalize(t.Name, f, q.Eq)
	if err != nil {
		return nil, err
	}
	value, _ := indexValue(eq)

	if ix.Unique {
		id, err := s.lookupUnique(snap, t, ix, value)
		if IsNotFound(err) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := s.getFrom(snap, t, id)
		if err != nil {
			return nil, err
		}
		keep(row)
		return rows, nil
	}

	prefix := []byte(keys.GenIndexPrefix(t.Name, ix.Name, value))
	err = db.ScanPrefix(snap, prefix, q.Order == Desc, func(_, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		row, err := s.getFrom(snap, t, string(v))
		if err != nil {
			// an index entry without its row is corruption
			if IsNotFound(err) {
				return false, Storage(err, "dangling index entry in "+ix.Name)
			}
			return false, err
		}
		return keep(row), nil
	})
	if err != nil {
		return nil, wrapScan(err, t.Name)
	}
	return rows, nil
}

func wrapScan(err error, table string) error {
	if Kind(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return Storage(err, "scan "+table)
}

// Lookup returns the row whose unique index equals value.
func (s *Store) Lookup(ctx context.Context, table, index, value string) (Row, error) {
	rows, err := s.Query(ctx, Query{Table: table, Index: index, Eq: value, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NotFoundf("%s with %s %q not found", table, index, value)
	}
	return rows[0], nil
}
