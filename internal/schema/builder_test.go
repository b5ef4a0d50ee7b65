package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
)

func TestBuilderSimpleTable(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `users` (`id` INT NOT NULL PRIMARY KEY, `name` VARCHAR(255) NOT NULL, `bio` TEXT)", "users")

	tbl, ok := b.Schema().TableByName("USERS")
	require.True(t, ok)
	require.Len(t, tbl.Columns, 3)
	assert.Equal(t, "id", tbl.Columns[0].Name)
	assert.Equal(t, 0, tbl.Columns[0].Ordinal)
	assert.True(t, tbl.Columns[0].PrimaryKey)
	assert.False(t, tbl.Columns[0].Nullable)
	assert.Equal(t, Int, tbl.Columns[0].Type)
	assert.Equal(t, []int{0}, tbl.PrimaryKey)
	assert.Equal(t, Text, tbl.Columns[1].Type)
	assert.True(t, tbl.Columns[2].Nullable)
}

func TestBuilderCompositePrimaryKey(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.Postgres, issues)
	b.HandleCreateTable(`CREATE TABLE "memberships" ("org_id" INT, "user_id" INT, PRIMARY KEY ("org_id", "user_id"))`, "memberships")

	tbl, ok := b.Schema().TableByName("memberships")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, tbl.PrimaryKey)
	assert.True(t, tbl.Columns[0].PrimaryKey)
	assert.True(t, tbl.Columns[1].PrimaryKey)
}

func TestBuilderTableLevelForeignKey(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `orders` (`id` INT PRIMARY KEY, `user_id` INT, CONSTRAINT `fk_user` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE CASCADE)", "orders")

	tbl, ok := b.Schema().TableByName("orders")
	require.True(t, ok)
	require.Len(t, tbl.ForeignKeys, 1)
	fk := tbl.ForeignKeys[0]
	assert.Equal(t, "fk_user", fk.Name)
	assert.Equal(t, []int{1}, fk.Columns)
	assert.Equal(t, "users", fk.RefTable)
	assert.Equal(t, []string{"id"}, fk.RefColumns)
	assert.Equal(t, ReferentialAction("CASCADE"), fk.OnDelete)
}

func TestBuilderInlineForeignKey(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `orders` (`id` INT PRIMARY KEY, `user_id` INT REFERENCES `users`(`id`))", "orders")

	tbl, ok := b.Schema().TableByName("orders")
	require.True(t, ok)
	require.Len(t, tbl.ForeignKeys, 1)
	assert.Equal(t, []int{1}, tbl.ForeignKeys[0].Columns)
	assert.Equal(t, "users", tbl.ForeignKeys[0].RefTable)
}

func TestBuilderResolveForeignKeys(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `users` (`id` INT PRIMARY KEY)", "users")
	b.HandleCreateTable("CREATE TABLE `orders` (`id` INT PRIMARY KEY, `user_id` INT, FOREIGN KEY (`user_id`) REFERENCES `users`(`id`))", "orders")
	b.ResolveForeignKeys()

	users, _ := b.Schema().TableByName("users")
	orders, _ := b.Schema().TableByName("orders")
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, users.ID, orders.ForeignKeys[0].RefTableID)
}

func TestBuilderUnresolvedForeignKeyReportsMissingTable(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `orders` (`id` INT PRIMARY KEY, `user_id` INT, FOREIGN KEY (`user_id`) REFERENCES `users`(`id`))", "orders")
	b.ResolveForeignKeys()

	orders, _ := b.Schema().TableByName("orders")
	assert.Equal(t, -1, orders.ForeignKeys[0].RefTableID)
}

func TestBuilderAlterTableAddForeignKey(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.Postgres, issues)
	b.HandleCreateTable(`CREATE TABLE "users" ("id" INT PRIMARY KEY)`, "users")
	b.HandleCreateTable(`CREATE TABLE "orders" ("id" INT PRIMARY KEY, "user_id" INT)`, "orders")
	b.HandleAlterTable(`ALTER TABLE "orders" ADD CONSTRAINT "fk_user" FOREIGN KEY ("user_id") REFERENCES "users" ("id")`, "orders")

	orders, _ := b.Schema().TableByName("orders")
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "fk_user", orders.ForeignKeys[0].Name)
	assert.Equal(t, []int{1}, orders.ForeignKeys[0].Columns)
}

func TestBuilderCreateIndex(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.Postgres, issues)
	b.HandleCreateTable(`CREATE TABLE "users" ("id" INT PRIMARY KEY, "email" TEXT)`, "users")
	b.HandleCreateIndex(`CREATE UNIQUE INDEX idx_email ON users (email)`, "users")

	tbl, _ := b.Schema().TableByName("users")
	require.Len(t, tbl.Indexes, 1)
	assert.Equal(t, "idx_email", tbl.Indexes[0].Name)
	assert.True(t, tbl.Indexes[0].Unique)
	assert.Equal(t, []string{"email"}, tbl.Indexes[0].Columns)
}

func TestBuilderDropTable(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `t` (`id` INT)", "t")
	b.HandleDropTable("t")
	_, ok := b.Schema().TableByName("t")
	assert.False(t, ok)
}

func TestBuilderDuplicateTableLaterDefinitionWins(t *testing.T) {
	issues := &issue.List{}
	b := NewBuilder(dialect.MySQL, issues)
	b.HandleCreateTable("CREATE TABLE `t` (`id` INT)", "t")
	firstID := b.Schema().TableID("t")
	b.HandleCreateTable("CREATE TABLE `t` (`id` INT, `extra` TEXT)", "t")

	tbl, ok := b.Schema().TableByName("t")
	require.True(t, ok)
	assert.Len(t, tbl.Columns, 2)
	assert.Equal(t, firstID, tbl.ID)
	assert.True(t, issues.HasErrorsStrict(true))
}

func TestMapColumnType(t *testing.T) {
	cases := map[string]ColumnType{
		"TINYINT(1)":        Bool,
		"TINYINT":           Int,
		"INT":               Int,
		"BIGINT":            BigInt,
		"VARCHAR(255)":      Text,
		"JSONB":             Json,
		"BYTEA":             Blob,
		"BLOB":              Blob,
		"DATETIME":          DateTime,
		"TIMESTAMP":         DateTime,
		"DATE":              Date,
		"UUID":              Uuid,
		"UNIQUEIDENTIFIER":  Uuid,
		"DECIMAL(10,2)":     Decimal,
		"DOUBLE PRECISION":  Double,
		"SOMETHING_WEIRD":   Other,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapColumnType(raw), raw)
	}
}
