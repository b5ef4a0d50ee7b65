// Package schema holds the relational schema entities the engine derives
// from DDL: tables, columns, keys, foreign keys, and
// indexes, plus the forward-pass builder that assembles them from a stream
// of classified statements.
package schema

import "strings"

// ColumnType is the canonical type taxonomy every dialect-specific raw type
// string is mapped into.
type ColumnType int

const (
	Other ColumnType = iota
	Int
	BigInt
	SmallInt
	Bool
	Float
	Double
	Decimal
	Text
	Blob
	Date
	Time
	DateTime
	Json
	Uuid
)

func (t ColumnType) String() string {
	switch t {
	case Int:
		return "Int"
	case BigInt:
		return "BigInt"
	case SmallInt:
		return "SmallInt"
	case Bool:
		return "Bool"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case Decimal:
		return "Decimal"
	case Text:
		return "Text"
	case Blob:
		return "Blob"
	case Date:
		return "Date"
	case Time:
		return "Time"
	case DateTime:
		return "DateTime"
	case Json:
		return "Json"
	case Uuid:
		return "Uuid"
	default:
		return "Other"
	}
}

// Column is a single table column, in declared order.
type Column struct {
	Name       string
	Type       ColumnType
	RawType    string
	Ordinal    int
	PrimaryKey bool
	Nullable   bool
}

// ReferentialAction models ON DELETE / ON UPDATE behavior; empty string
// means "not specified" (dialect default applies).
type ReferentialAction string

// ForeignKey is a (possibly composite) foreign key constraint.
type ForeignKey struct {
	Name              string
	Columns           []int // local column ordinals, ordered
	RefTable          string
	RefColumns        []string
	RefTableID        int // -1 if unresolved
	OnDelete          ReferentialAction
	OnUpdate          ReferentialAction
}

// Index is a secondary (or unique) index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Type    string
}

// TableSchema is the fully parsed representation of one table's DDL.
type TableSchema struct {
	Name       string
	ID         int
	Columns    []Column
	PrimaryKey []int // column ordinals, ordered; empty if no PK
	ForeignKeys []ForeignKey
	Indexes    []Index
	RawCreate  string
}

// ColumnOrdinal returns the ordinal of the named column, or -1 if absent.
// Lookup is case-insensitive, the same rule applied to table names.
func (t *TableSchema) ColumnOrdinal(name string) int {
	lower := strings.ToLower(name)
	for _, c := range t.Columns {
		if strings.ToLower(c.Name) == lower {
			return c.Ordinal
		}
	}
	return -1
}

// Schema is an ordered sequence of tables plus a case-insensitive name
// index, invariant that table ids are dense and never
// renumbered.
type Schema struct {
	Tables  []*TableSchema
	byName  map[string]int
}

// NewSchema returns an empty schema ready for incremental construction.
func NewSchema() *Schema {
	return &Schema{byName: make(map[string]int)}
}

// TableByName looks up a table case-insensitively.
func (s *Schema) TableByName(name string) (*TableSchema, bool) {
	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return s.Tables[id], true
}

// TableID returns the id of the named table, or -1 if absent.
func (s *Schema) TableID(name string) int {
	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return -1
	}
	return id
}

// AddTable assigns t a dense id equal to its index and registers it, unless
// a table with that name (case-insensitively) already exists, in which
// case it returns -1 and false.
func (s *Schema) AddTable(t *TableSchema) (int, bool) {
	lower := strings.ToLower(t.Name)
	if _, exists := s.byName[lower]; exists {
		return -1, false
	}
	t.ID = len(s.Tables)
	s.Tables = append(s.Tables, t)
	s.byName[lower] = t.ID
	return t.ID, true
}

// ReplaceTable overwrites the existing table of the same name (case-
// insensitively) with t, keeping its original dense id so any already-
// resolved ForeignKey.RefTableID pointing at that slot keeps pointing at the
// new definition. Returns the id and true if a table with that name existed,
// or -1 and false if not (callers should fall back to AddTable).
func (s *Schema) ReplaceTable(t *TableSchema) (int, bool) {
	lower := strings.ToLower(t.Name)
	id, exists := s.byName[lower]
	if !exists {
		return -1, false
	}
	t.ID = id
	s.Tables[id] = t
	return id, true
}

// DropTable removes a table from the index by name, if present. It does not
// renumber remaining ids, so a dropped table's slot is left nil; callers
// iterating s.Tables must skip nil slots.
func (s *Schema) DropTable(name string) bool {
	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return false
	}
	delete(s.byName, strings.ToLower(name))
	s.Tables[id] = nil
	return true
}
