// Package dialect adapts the few vendor specific statements the cluster needs.
//
// The cluster core treats a dialect as a pure function: it never parses SQL, it only asks
// the dialect to render the statements for a handful of operation kinds (a minimal ping,
// table locks, truncation) and to map result column metadata to a portable type code.
//
// Implementations are selected by name at configuration time:
//
//	d, err := dialect.ByName("postgres")
//	ping := d.SimpleSQL() // "SELECT 1"
//	lock, _ := d.Render(dialect.KindLockTable, "public", "orders")
package dialect
