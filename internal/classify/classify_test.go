package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
)

func TestClassifyCreateTableMySQL(t *testing.T) {
	r := Classify([]byte("CREATE TABLE `users` (id INT PRIMARY KEY);"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, CreateTable, r.Kind)
	assert.Equal(t, "users", r.Table)
}

func TestClassifyCreateTableIfNotExists(t *testing.T) {
	r := Classify([]byte("CREATE TABLE IF NOT EXISTS orders (id INT);"), dialect.TraitsFor(dialect.Postgres))
	assert.Equal(t, CreateTable, r.Kind)
	assert.Equal(t, "orders", r.Table)
}

func TestClassifyCreateTableSchemaQualified(t *testing.T) {
	r := Classify([]byte(`CREATE TABLE "public"."accounts" (id INT);`), dialect.TraitsFor(dialect.Postgres))
	assert.Equal(t, CreateTable, r.Kind)
	assert.Equal(t, "accounts", r.Table)
}

func TestClassifyAlterTable(t *testing.T) {
	r := Classify([]byte("ALTER TABLE orders ADD CONSTRAINT fk_x FOREIGN KEY (uid) REFERENCES users(id);"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, AlterTable, r.Kind)
	assert.Equal(t, "orders", r.Table)
}

func TestClassifyDropTableIfExists(t *testing.T) {
	r := Classify([]byte("DROP TABLE IF EXISTS sessions;"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, DropTable, r.Kind)
	assert.Equal(t, "sessions", r.Table)
}

func TestClassifyCreateIndex(t *testing.T) {
	r := Classify([]byte("CREATE UNIQUE INDEX idx_email ON users (email);"), dialect.TraitsFor(dialect.Postgres))
	assert.Equal(t, CreateIndex, r.Kind)
	assert.Equal(t, "users", r.Table)
}

func TestClassifyInsertWithColumns(t *testing.T) {
	r := Classify([]byte("INSERT INTO users (id, name) VALUES (1, 'a');"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, Insert, r.Kind)
	assert.Equal(t, "users", r.Table)
	assert.Equal(t, []string{"id", "name"}, r.ColumnsHeader)
}

func TestClassifyInsertWithoutColumns(t *testing.T) {
	r := Classify([]byte("INSERT INTO users VALUES (1, 'a');"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, Insert, r.Kind)
	assert.Equal(t, "users", r.Table)
	assert.Empty(t, r.ColumnsHeader)
}

func TestClassifyCopyHeader(t *testing.T) {
	r := Classify([]byte("COPY public.users (id, name, email) FROM stdin;"), dialect.TraitsFor(dialect.Postgres))
	assert.Equal(t, Copy, r.Kind)
	assert.Equal(t, "users", r.Table)
	assert.Equal(t, []string{"id", "name", "email"}, r.ColumnsHeader)
}

func TestClassifyCopyNotRecognizedForMySQL(t *testing.T) {
	r := Classify([]byte("COPY INTO something"), dialect.TraitsFor(dialect.MySQL))
	assert.NotEqual(t, Copy, r.Kind)
}

func TestClassifySessionSetting(t *testing.T) {
	r := Classify([]byte("SET NAMES utf8mb4;"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, SessionSetting, r.Kind)
}

func TestClassifyConditionalCommentSessionSetting(t *testing.T) {
	r := Classify([]byte("/*!40101 SET NAMES utf8 */;"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, SessionSetting, r.Kind)
}

func TestClassifyOther(t *testing.T) {
	r := Classify([]byte("SELECT 1;"), dialect.TraitsFor(dialect.MySQL))
	assert.Equal(t, Other, r.Kind)
}

func TestClassifyMssqlBracketIdentifier(t *testing.T) {
	r := Classify([]byte("CREATE TABLE [dbo].[Users]([Id] INT);"), dialect.TraitsFor(dialect.MSSQL))
	assert.Equal(t, CreateTable, r.Kind)
	assert.Equal(t, "Users", r.Table)
}
