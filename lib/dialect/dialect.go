package dialect

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Operation kinds and type codes
// --------------------------------------------------------------------------

// Kind identifies a statement the dialect knows how to render.
type Kind uint8

const (
	KindPing          Kind = iota // Minimal statement used for liveness probes
	KindLockTable                 // Exclusive table lock
	KindTruncateTable             // Remove all rows of a table
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindLockTable:
		return "lock-table"
	case KindTruncateTable:
		return "truncate-table"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// TypeCode is a portable column type classification.
type TypeCode uint8

const (
	TypeOther TypeCode = iota
	TypeInteger
	TypeDecimal
	TypeFloat
	TypeText
	TypeBinary
	TypeBoolean
	TypeTimestamp
)

func (c TypeCode) String() string {
	switch c {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBinary:
		return "binary"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "other"
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Dialect renders vendor specific statements.
type Dialect interface {
	// Name returns the name the dialect is registered under.
	Name() string
	// SimpleSQL returns the cheapest statement that proves a replica answers queries.
	SimpleSQL() string
	// Render returns the statement for kind applied to schema.table.
	// Schema may be empty.
	Render(kind Kind, schema, table string) (string, error)
	// Quote quotes an identifier.
	Quote(identifier string) string
	// QualifyTable returns the quoted, schema qualified table name.
	QualifyTable(schema, table string) string
	// ColumnType maps driver column metadata to a TypeCode.
	ColumnType(ct *sql.ColumnType) TypeCode
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (expected one of: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names returns the names of all registered dialects, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var registry = map[string]Dialect{
	"standard": standardDialect{},
	"postgres": postgresDialect{},
	"mysql":    mysqlDialect{},
	"sqlite":   sqliteDialect{},
}

// Standard returns the ANSI dialect.
func Standard() Dialect { return standardDialect{} }
