package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldef-engine/sqldef-engine/internal/dialect"
	"github.com/sqldef-engine/sqldef-engine/internal/issue"
)

func TestConvertSkipsMySQLSessionCommands(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("SET NAMES utf8mb4;"))
	assert.Nil(t, out)

	out = c.ConvertStatement([]byte("LOCK TABLES users WRITE;"))
	assert.Nil(t, out)

	out = c.ConvertStatement([]byte("CREATE TABLE users (id INT);"))
	assert.NotEmpty(t, out)
}

func TestConvertSkipsPostgresSessionCommands(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	assert.Nil(t, c.ConvertStatement([]byte("SET client_encoding = 'UTF8';")))
	assert.Nil(t, c.ConvertStatement([]byte("SET search_path TO public;")))
}

func TestConvertSkipsSqlitePragmas(t *testing.T) {
	c := New(dialect.SQLite, dialect.MySQL, &issue.List{})
	assert.Nil(t, c.ConvertStatement([]byte("PRAGMA foreign_keys = ON;")))
}

func TestConvertDropsPostgresOnlyFeatureForNonPostgresTarget(t *testing.T) {
	issues := &issue.List{}
	c := New(dialect.Postgres, dialect.MySQL, issues)

	for _, stmt := range []string{
		"CREATE SEQUENCE my_seq;",
		"CREATE DOMAIN my_domain AS INTEGER;",
		"CREATE TYPE my_enum AS ENUM ('a', 'b');",
		"CREATE TRIGGER my_trigger AFTER INSERT ON foo;",
		"COMMENT ON TABLE foo IS 'bar';",
	} {
		out := c.ConvertStatement([]byte(stmt))
		assert.Nil(t, out, stmt)
	}
	assert.True(t, len(issues.Items) > 0)

	out := c.ConvertStatement([]byte("CREATE TABLE users (id INT);"))
	assert.NotEmpty(t, out)
}

func TestConvertKeepsPostgresOnlyFeatureForPostgresTarget(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE SEQUENCE my_seq;"))
	assert.NotNil(t, out)
}

func TestConvertAutoIncrementToSerial(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE TABLE users (id INT AUTO_INCREMENT PRIMARY KEY);"))
	s := string(out)
	assert.Contains(t, s, "SERIAL")
	assert.NotContains(t, s, "AUTO_INCREMENT")
}

func TestConvertBigintAutoIncrementToBigserial(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE TABLE users (id BIGINT AUTO_INCREMENT PRIMARY KEY);"))
	s := string(out)
	assert.Contains(t, s, "BIGSERIAL")
	assert.NotContains(t, s, "AUTO_INCREMENT")
}

func TestConvertSerialToAutoIncrement(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE TABLE users (id SERIAL PRIMARY KEY);"))
	s := string(out)
	assert.Contains(t, s, "AUTO_INCREMENT")
	assert.NotContains(t, s, "SERIAL")
}

func TestConvertStripsEngineClause(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE TABLE t (id INT) ENGINE=InnoDB;"))
	s := string(out)
	assert.NotContains(t, s, "ENGINE")
	assert.Contains(t, s, "CREATE TABLE")
}

func TestConvertStripsConditionalCommentForNonMySQLTarget(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("/*!40101 SET NAMES utf8 */;"))
	assert.NotContains(t, string(out), "40101")
}

func TestConvertUnwrapsConditionalCommentForMySQLTarget(t *testing.T) {
	c := New(dialect.MySQL, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("/*!40101 SET NAMES utf8 */;"))
	assert.Contains(t, string(out), "SET NAMES utf8")
}

func TestConvertBackticksToDoubleQuotes(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("INSERT INTO `users` VALUES (1);"))
	assert.Contains(t, string(out), `"users"`)
}

func TestConvertMySQLBackslashEscapeToDoubled(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte(`INSERT INTO t VALUES ('it\'s');`))
	s := string(out)
	assert.Contains(t, s, "''")
	assert.NotContains(t, s, `\'`)
}

func TestConvertStripsCast(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("INSERT INTO t VALUES ('val'::text);"))
	assert.NotContains(t, string(out), "::text")
}

func TestConvertNextvalToAutoIncrement(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("ALTER TABLE t ALTER COLUMN id SET DEFAULT nextval('t_id_seq'::regclass);"))
	s := string(out)
	assert.NotContains(t, s, "nextval")
	assert.NotContains(t, s, "t_id_seq")
}

func TestConvertNowToCurrentTimestamp(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("CREATE TABLE t (created_at TIMESTAMP DEFAULT now());"))
	s := string(out)
	assert.Contains(t, s, "CURRENT_TIMESTAMP")
	assert.NotContains(t, s, "now()")
}

func TestConvertStripsPublicSchemaPrefix(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	out := c.ConvertStatement([]byte("INSERT INTO public.users VALUES (1);"))
	s := string(out)
	assert.NotContains(t, s, "public.")
	assert.Contains(t, s, "users")
}

func TestConvertCopyToInsertBatches(t *testing.T) {
	c := New(dialect.Postgres, dialect.MySQL, &issue.List{})
	c.SetBatchSize(2)

	header := c.ConvertStatement([]byte("COPY users (id, name) FROM stdin;"))
	assert.Nil(t, header)

	batches := c.ConvertCopyData([]byte("1\tAlice\n2\tBob\n3\tCarol\n\\.\n"))
	require.Len(t, batches, 2)
	assert.Contains(t, string(batches[0]), "INSERT INTO users (id, name) VALUES")
	assert.Contains(t, string(batches[0]), "'Alice'")
	assert.Contains(t, string(batches[0]), "'Bob'")
	assert.Contains(t, string(batches[1]), "'Carol'")
}

func TestConvertCopyPassthroughWhenTargetSupportsIt(t *testing.T) {
	c := New(dialect.MySQL, dialect.Postgres, &issue.List{})
	out := c.ConvertStatement([]byte("COPY users (id) FROM stdin;"))
	assert.Nil(t, c.pending)
	assert.NotNil(t, out)
}
