package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

// standardDialect renders ANSI SQL. The vendor dialects embed it and override what differs.
type standardDialect struct{}

func (standardDialect) Name() string { return "standard" }

func (standardDialect) SimpleSQL() string { return "SELECT 1" }

func (d standardDialect) Render(kind Kind, schema, table string) (string, error) {
	return render(d, kind, schema, table)
}

func (standardDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (d standardDialect) QualifyTable(schema, table string) string {
	return qualify(d, schema, table)
}

func (standardDialect) ColumnType(ct *sql.ColumnType) TypeCode {
	return typeCodeOf(ct.DatabaseTypeName())
}

// --------------------------------------------------------------------------
// Helper (shared by all dialects)
// --------------------------------------------------------------------------

// render builds the default statements using d for quoting
func render(d Dialect, kind Kind, schema, table string) (string, error) {
	switch kind {
	case KindPing:
		return d.SimpleSQL(), nil
	case KindLockTable:
		if table == "" {
			return "", fmt.Errorf("%s: table is required", kind)
		}
		return fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", d.QualifyTable(schema, table)), nil
	case KindTruncateTable:
		if table == "" {
			return "", fmt.Errorf("%s: table is required", kind)
		}
		return fmt.Sprintf("DELETE FROM %s", d.QualifyTable(schema, table)), nil
	default:
		return "", fmt.Errorf("dialect %s does not support %s", d.Name(), kind)
	}
}

func qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.Quote(table)
	}
	return d.Quote(schema) + "." + d.Quote(table)
}

// typeCodeOf maps the database type names reported by the common drivers
func typeCodeOf(name string) TypeCode {
	name = strings.ToUpper(name)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "MEDIUMINT", "SERIAL", "BIGSERIAL":
		return TypeInteger
	case "DECIMAL", "NUMERIC":
		return TypeDecimal
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return TypeFloat
	case "TEXT", "VARCHAR", "CHAR", "BPCHAR", "NVARCHAR", "NCHAR", "CLOB", "UUID", "JSON", "JSONB", "ENUM":
		return TypeText
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return TypeBinary
	case "BOOL", "BOOLEAN", "BIT":
		return TypeBoolean
	case "DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "DATETIME":
		return TypeTimestamp
	default:
		return TypeOther
	}
}
