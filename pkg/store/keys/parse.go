package keys

import (
	"fmt"
	"strings"
)

type RowParts struct {
	Table string
	ID    string
}

type IndexParts struct {
	Unique bool
	Table  string
	Index  string
	Value  string
	ID     string // empty for unique entries
}

func ParseRowKey(key string) (RowParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "r" {
		return RowParts{}, fmt.Errorf("invalid row key: %q", key)
	}
	if err := ValidateTable(parts[1]); err != nil {
		return RowParts{}, err
	}
	if err := ValidateID(parts[2]); err != nil {
		return RowParts{}, err
	}
	return RowParts{Table: parts[1], ID: parts[2]}, nil
}

// ParseIndexKey parses both ix: and ux: keys.
func ParseIndexKey(key string) (IndexParts, error) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 5 && parts[0] == "ix":
		v, err := Unescape(parts[3])
		if err != nil {
			return IndexParts{}, err
		}
		return IndexParts{Table: parts[1], Index: parts[2], Value: v, ID: parts[4]}, nil
	case len(parts) == 4 && parts[0] == "ux":
		v, err := Unescape(parts[3])
		if err != nil {
			return IndexParts{}, err
		}
		return IndexParts{Unique: true, Table: parts[1], Index: parts[2], Value: v}, nil
	default:
		return IndexParts{}, fmt.Errorf("invalid index key: %q", key)
	}
}

// Kind classifies a raw key by its leading segment.
func Kind(key string) string {
	switch {
	case strings.HasPrefix(key, RowsPrefix):
		return "row"
	case strings.HasPrefix(key, IndexesPrefix):
		return "index"
	case strings.HasPrefix(key, UniquesPrefix):
		return "unique"
	case strings.HasPrefix(key, "system:"):
		return "system"
	default:
		return "unknown"
	}
}
