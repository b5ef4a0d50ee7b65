package queryimport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite3SourceIntrospectsSchemaAndRows(t *testing.T) {
	ctx := context.Background()
	src, err := NewSQLite3Source(ctx, Config{DbName: ":memory:"})
	require.NoError(t, err)
	defer src.Close()

	db := src.(*sqlSource).db
	_, err = db.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO users (id, email) VALUES (1, 'alice@example.com'), (2, 'bob@example.com')`)
	require.NoError(t, err)

	// Tables() was populated before the table existed, so reload it the
	// same way NewSQLite3Source does.
	tbl, err := src.(*sqlSource).loadSQLiteTable(ctx, "users")
	require.NoError(t, err)

	require.Len(t, tbl.Columns, 2)
	assert.Equal(t, "id", tbl.Columns[0].Name)
	assert.True(t, tbl.Columns[0].PrimaryKey)
	assert.Equal(t, "email", tbl.Columns[1].Name)
	assert.False(t, tbl.Columns[1].Nullable)

	var emails []string
	for row := range src.Rows(ctx, "users") {
		emails = append(emails, row["email"].(string))
	}
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, emails)
}

func TestSQLite3SourceRowIterationStopsEarly(t *testing.T) {
	ctx := context.Background()
	src, err := NewSQLite3Source(ctx, Config{DbName: ":memory:"})
	require.NoError(t, err)
	defer src.Close()

	db := src.(*sqlSource).db
	_, err = db.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = db.ExecContext(ctx, `INSERT INTO t (id) VALUES (?)`, i)
		require.NoError(t, err)
	}

	count := 0
	for range src.Rows(ctx, "t") {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestCanonicalTypeMapping(t *testing.T) {
	cases := map[string]string{
		"INT":       "Int",
		"BIGINT":    "BigInt",
		"VARCHAR":   "Text",
		"TIMESTAMP": "DateTime",
		"JSONB":     "Json",
		"UUID":      "Uuid",
		"FROBNITZ":  "Other",
	}
	for raw, want := range cases {
		assert.Equal(t, want, canonicalType(raw).String())
	}
}

func TestMySQLDSNBuildsSocketAndTCPForms(t *testing.T) {
	tcp := mysqlDSN(Config{User: "root", Password: "pw", Host: "127.0.0.1", Port: 3306, DbName: "app"})
	assert.Contains(t, tcp, "tcp(127.0.0.1:3306)")

	sock := mysqlDSN(Config{User: "root", Password: "pw", Socket: "/tmp/mysql.sock", DbName: "app"})
	assert.Contains(t, sock, "unix(/tmp/mysql.sock)")
}

func TestPostgresDSNIncludesSSLModeDisable(t *testing.T) {
	dsn := postgresDSN(Config{User: "postgres", Password: "pw", Host: "localhost", Port: 5432, DbName: "app"})
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "postgres://postgres:pw@localhost:5432/app")
}
