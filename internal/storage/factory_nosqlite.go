//go:build !sqlite

package storage

import (
	"fmt"

	"stickreach/internal/model"
)

// DefaultStoreKind is the backend used when none is requested.
const DefaultStoreKind = "memory"

func newSQLiteStore(_ string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite backend unavailable in this build; rebuild with -tags sqlite", model.ErrConfiguration)
}
