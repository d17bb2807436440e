package sqlite

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a shared in-memory database named after the test so
// parallel tests stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(t.Name()), pragmas)

	db, err := open(dsn, dsn)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db.Writer))
	t.Cleanup(func() { _ = db.Close() })
	return db
}
