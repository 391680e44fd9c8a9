package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/SHAIKYASIR/skillsync/pkg/store/keys"
)

type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "unknown"
	}
}

type Field struct {
	Name      string
	Kind      FieldKind
	Required  bool
	Immutable bool
}

type Index struct {
	Name   string
	Field  string
	Unique bool
}

// Table describes one row type. CreatedField, when set, names a number field
// the store fills with the id's millisecond timestamp on insert.
type Table struct {
	Name         string
	Fields       []Field
	Indexes      []Index
	CreatedField string
}

func (t *Table) field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (t *Table) index(name string) (Index, bool) {
	for _, ix := range t.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return Index{}, false
}

func (t *Table) check() error {
	if err := keys.ValidateTable(t.Name); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, f := range t.Fields {
		if f.Name == "" || f.Name == IDField {
			return fmt.Errorf("table %s: invalid field name %q", t.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %s: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
	}
	for _, ix := range t.Indexes {
		if err := keys.ValidateTable(ix.Name); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if _, ok := t.field(ix.Field); !ok {
			return fmt.Errorf("table %s: index %s on unknown field %q", t.Name, ix.Name, ix.Field)
		}
	}
	if t.CreatedField != "" {
		f, ok := t.field(t.CreatedField)
		if !ok || f.Kind != KindNumber {
			return fmt.Errorf("table %s: created field %q must be a number field", t.Name, t.CreatedField)
		}
	}
	return nil
}

// IDField is the system field present on every row.
const IDField = "id"

// Row is a stored record. Strings stay strings; every number is a float64.
type Row map[string]any

func (r Row) ID() string {
	s, _ := r[IDField].(string)
	return s
}

func (r Row) String(name string) string {
	s, _ := r[name].(string)
	return s
}

func (r Row) Number(name string) float64 {
	f, _ := r[name].(float64)
	return f
}

// maxExactInt is the largest magnitude a stored number keeps exactly. Rows
// are JSON encoded as float64, so anything beyond it would read back changed.
const maxExactInt = 1 << 53

func outOfRange(table, field string) error {
	return Validationf("%s.%s is out of range", table, field)
}

// normalize converts v to the representation stored for kind.
func normalize(table string, f Field, v any) (any, error) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, Validationf("%s.%s must be a string", table, f.Name)
		}
		return s, nil
	case KindNumber:
		var n float64
		switch x := v.(type) {
		case float64:
			n = x
		case float32:
			n = float64(x)
		case int:
			if int64(x) > maxExactInt || int64(x) < -maxExactInt {
				return nil, outOfRange(table, f.Name)
			}
			n = float64(x)
		case int32:
			n = float64(x)
		case int64:
			if x > maxExactInt || x < -maxExactInt {
				return nil, outOfRange(table, f.Name)
			}
			n = float64(x)
		case uint32:
			n = float64(x)
		case uint64:
			if x > maxExactInt {
				return nil, outOfRange(table, f.Name)
			}
			n = float64(x)
		case json.Number:
			p, err := x.Float64()
			if err != nil {
				return nil, Validationf("%s.%s must be a number", table, f.Name)
			}
			n = p
		default:
			return nil, Validationf("%s.%s must be a number", table, f.Name)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, Validationf("%s.%s must be a finite number", table, f.Name)
		}
		if math.Abs(n) > maxExactInt {
			return nil, outOfRange(table, f.Name)
		}
		return n, nil
	}
	return nil, Validationf("%s.%s has unsupported kind", table, f.Name)
}

// indexValue renders a stored field value as an index segment.
func indexValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
