package keys

import (
	"fmt"
	"strings"
)

var escaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Escape makes a field value safe to embed as a key segment.
func Escape(v string) string { return escaper.Replace(v) }

// Unescape reverses Escape.
func Unescape(v string) (string, error) {
	if !strings.Contains(v, "%") {
		return v, nil
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '%' {
			b.WriteByte(v[i])
			continue
		}
		if i+2 >= len(v) {
			return "", fmt.Errorf("truncated escape in %q", v)
		}
		switch v[i+1 : i+3] {
		case "25":
			b.WriteByte('%')
		case "3A":
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("invalid escape %q in %q", v[i:i+3], v)
		}
		i += 2
	}
	return b.String(), nil
}

func GenRowKey(table, id string) string {
	return fmt.Sprintf(RowKey, table, id)
}

func GenRowPrefix(table string) string {
	return fmt.Sprintf(RowPrefix, table)
}

func GenIndexKey(table, index, value, id string) string {
	return fmt.Sprintf(IndexKey, table, index, Escape(value), id)
}

func GenIndexPrefix(table, index, value string) string {
	return fmt.Sprintf(IndexPrefix, table, index, Escape(value))
}

func GenUniqueKey(table, index, value string) string {
	return fmt.Sprintf(UniqueKey, table, index, Escape(value))
}

// UpperBound returns the smallest key greater than every key with the given
// prefix, for use as an exclusive iterator bound.
func UpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
