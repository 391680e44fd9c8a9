package store

import (
	"context"

	"github.com/SHAIKYASIR/skillsync/pkg/store/db"
	"github.com/SHAIKYASIR/skillsync/pkg/store/keys"
)

// Stats counts keys by shape. Index counts are keyed "table.index".
type Stats struct {
	Version  string         `json:"version"`
	Rows     map[string]int `json:"rows"`
	Indexes  map[string]int `json:"indexes"`
	Unknown  int            `json:"unknown"`
	DiskSize uint64         `json:"disk_bytes"`
}

// Stats scans the whole store once.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return Scan(ctx, s.db)
}

// Scan counts rows and index entries of any store database, including one
// opened read-only by an operator tool.
func Scan(ctx context.Context, d *db.DB) (Stats, error) {
	st := Stats{Rows: map[string]int{}, Indexes: map[string]int{}, DiskSize: d.DiskUsage()}
	snap, err := d.Snapshot()
	if err != nil {
		return st, Storage(err, "snapshot")
	}
	defer snap.Close()

	if v, err := db.GetFrom(snap, []byte(keys.SystemVersionKey)); err == nil {
		st.Version = string(v)
	}

	scan := func(prefix string, fn func(k string)) error {
		return db.ScanPrefix(snap, []byte(prefix), false, func(k, _ []byte) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			fn(string(k))
			return true, nil
		})
	}
	if err := scan(keys.RowsPrefix, func(k string) {
		p, err := keys.ParseRowKey(k)
		if err != nil {
			st.Unknown++
			return
		}
		st.Rows[p.Table]++
	}); err != nil {
		return st, wrapScan(err, "rows")
	}
	indexFn := func(k string) {
		p, err := keys.ParseIndexKey(k)
		if err != nil {
			st.Unknown++
			return
		}
		st.Indexes[p.Table+"."+p.Index]++
	}
	if err := scan(keys.IndexesPrefix, indexFn); err != nil {
		return st, wrapScan(err, "indexes")
	}
	if err := scan(keys.UniquesPrefix, indexFn); err != nil {
		return st, wrapScan(err, "uniques")
	}
	return st, nil
}
