package keys

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ids are ULIDs but anything in this conservative set is accepted so that
	// externally supplied ids never break key shapes
	idRegexp    = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)
	tableRegexp = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

func ValidateID(id string) error {
	if id == "" {
		return errors.New("id empty")
	}
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid id: %q", id)
	}
	return nil
}

// ValidateTable also applies to index names.
func ValidateTable(name string) error {
	if !tableRegexp.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}
