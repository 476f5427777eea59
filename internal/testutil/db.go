// Package testutil provides test utilities for publication database setup.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
)

// NewTestDB opens a migrated publication database in a temp directory. It is
// closed when the test ends.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
