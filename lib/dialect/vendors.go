package dialect

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// PostgreSQL
// --------------------------------------------------------------------------

type postgresDialect struct{ standardDialect }

func (postgresDialect) Name() string { return "postgres" }

func (d postgresDialect) Render(kind Kind, schema, table string) (string, error) {
	if kind == KindTruncateTable && table != "" {
		return fmt.Sprintf("TRUNCATE TABLE %s", d.QualifyTable(schema, table)), nil
	}
	return render(d, kind, schema, table)
}

func (d postgresDialect) QualifyTable(schema, table string) string {
	return qualify(d, schema, table)
}

// --------------------------------------------------------------------------
// MySQL
// --------------------------------------------------------------------------

type mysqlDialect struct{ standardDialect }

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (d mysqlDialect) QualifyTable(schema, table string) string {
	return qualify(d, schema, table)
}

func (d mysqlDialect) Render(kind Kind, schema, table string) (string, error) {
	switch {
	case kind == KindLockTable && table != "":
		return fmt.Sprintf("LOCK TABLES %s WRITE", d.QualifyTable(schema, table)), nil
	case kind == KindTruncateTable && table != "":
		return fmt.Sprintf("TRUNCATE TABLE %s", d.QualifyTable(schema, table)), nil
	}
	return render(d, kind, schema, table)
}

// --------------------------------------------------------------------------
// SQLite
// --------------------------------------------------------------------------

type sqliteDialect struct{ standardDialect }

func (sqliteDialect) Name() string { return "sqlite" }

func (d sqliteDialect) QualifyTable(schema, table string) string {
	return qualify(d, schema, table)
}

// Render has no table level locks in SQLite, the whole database is locked by BEGIN EXCLUSIVE
func (d sqliteDialect) Render(kind Kind, schema, table string) (string, error) {
	if kind == KindLockTable {
		return "", fmt.Errorf("dialect %s does not support %s", d.Name(), kind)
	}
	return render(d, kind, schema, table)
}
