package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"testing"

	auth "github.com/johnbekele/Rostila-backend"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// setupTestDB opens a named in-memory SQLite database and applies the
// package migrations. The shared cache keeps the schema visible across the
// pooled connections used by concurrent tests.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	applyMigrations(t, db)

	return db
}

func applyMigrations(t *testing.T, db *bun.DB) {
	t.Helper()

	root := "data/sql/migrations"
	entries, err := fs.ReadDir(auth.GetMigrationsFS(), root)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(auth.GetMigrationsFS(), root+"/"+name)
		require.NoError(t, err)

		_, err = db.ExecContext(context.Background(), string(content))
		require.NoError(t, err, "migration %s", name)
	}
}
