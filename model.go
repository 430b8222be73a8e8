package main

import "fmt"

// ConnectionTarget identifies one MySQL database. It is an opaque credential
// bundle owned by the configuration layer and passed by value into every
// engine operation; the engine never persists or mutates it.
type ConnectionTarget struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Identity returns a loggable "database on host" label without credentials.
func (t ConnectionTarget) Identity() string {
	return fmt.Sprintf("%s on %s", t.Database, t.Host)
}

// ColumnDescriptor is one column as reported by DESCRIBE.
type ColumnDescriptor struct {
	Name     string
	Type     string // declared type text, e.g. "varchar(255)", "int unsigned"
	Nullable bool
	Default  *string // nil when the column has no default
}

// TableSnapshot is the introspected definition of a single table.
type TableSnapshot struct {
	Name            string
	Columns         []ColumnDescriptor
	CreateStatement string // verbatim SHOW CREATE TABLE output
	Collation       string // effective table collation, may be empty
}

// ColumnNames returns the column names in declaration order.
func (t TableSnapshot) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t TableSnapshot) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// SchemaSnapshot maps table name to its snapshot. Snapshots are created
// fresh for every synchronization operation and treated as read-only.
type SchemaSnapshot struct {
	Tables map[string]TableSnapshot
	Order  []string // discovery order of table names

	// Skipped holds tables that exist but whose definition could not be
	// read. Consumers must not confuse them with absent tables.
	Skipped map[string]bool
}

// IndexDescriptor is one (possibly multi-column) index. The PRIMARY index
// is part of table structure and is never dropped or recreated here.
type IndexDescriptor struct {
	Name    string
	Columns []string // ordered by Seq_in_index, never empty
	Unique  bool
}

// TriggerDescriptor carries a trigger's verbatim creation statement.
type TriggerDescriptor struct {
	Name            string
	CreateStatement string
}

// ProcedureDescriptor carries a stored procedure's verbatim creation statement.
type ProcedureDescriptor struct {
	Name            string
	CreateStatement string
}

// MigrationOutcome aggregates the result of one destination's migration.
// Non-fatal sub-errors (a failed index, a failed row batch) are collected
// here instead of aborting the run.
type MigrationOutcome struct {
	Target  ConnectionTarget
	Success bool
	Errors  []error
}

// Record captures a non-fatal error against the outcome.
func (o *MigrationOutcome) Record(err error) {
	if err != nil {
		o.Errors = append(o.Errors, err)
	}
}
