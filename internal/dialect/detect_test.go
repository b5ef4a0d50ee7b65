package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPostgresDump(t *testing.T) {
	input := []byte("-- PostgreSQL database dump\nSET client_encoding = 'UTF8';\nCOPY public.users (id) FROM stdin;\n1\n\\.\n")
	d := Detect(input)
	assert.Equal(t, Postgres, d.Dialect)
	assert.Equal(t, High, d.Confidence)
}

func TestDetectMySQLDump(t *testing.T) {
	input := []byte("-- MySQL dump 10.13\nLOCK TABLES `users` WRITE;\nCREATE TABLE `users` (`id` INT) ENGINE=InnoDB;\n")
	d := Detect(input)
	assert.Equal(t, MySQL, d.Dialect)
	assert.Equal(t, High, d.Confidence)
}

func TestDetectSQLiteDump(t *testing.T) {
	input := []byte("-- SQLite database dump\nPRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\n")
	d := Detect(input)
	assert.Equal(t, SQLite, d.Dialect)
}

func TestDetectFallsBackToMySQLLow(t *testing.T) {
	d := Detect([]byte("some random text with no markers at all"))
	assert.Equal(t, MySQL, d.Dialect)
	assert.Equal(t, Low, d.Confidence)
}

func TestDetectTieResolvesToPostgres(t *testing.T) {
	// Construct a window where mysql and postgres strong markers tie exactly.
	input := []byte("ENGINE=InnoDB ::text")
	d := Detect(input)
	assert.Equal(t, Postgres, d.Dialect)
}

func TestTraitsForEachDialect(t *testing.T) {
	for _, d := range []Dialect{MySQL, Postgres, SQLite, MSSQL} {
		tr := TraitsFor(d)
		assert.Equal(t, d, tr.Dialect)
	}
}

func TestParseDialectNames(t *testing.T) {
	cases := map[string]Dialect{
		"mysql": MySQL, "postgres": Postgres, "postgresql": Postgres,
		"sqlite": SQLite, "sqlite3": SQLite, "mssql": MSSQL,
	}
	for name, want := range cases {
		got, ok := Parse(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got)
	}
	_, ok := Parse("oracle")
	assert.False(t, ok)
}
