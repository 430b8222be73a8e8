package main

import "fmt"

// ConnectionError means a destination (or master) could not be reached.
// Fatal to the single operation on that target; the loop continues.
type ConnectionError struct {
	Target ConnectionTarget
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target.Identity(), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IntrospectionError means schema retrieval failed for a database. For the
// master this aborts the whole run; for a destination it aborts only that
// destination.
type IntrospectionError struct {
	Database string
	Err      error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspect %s: %v", e.Database, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// DDLExecutionError is a per-statement DDL failure, caught and reported
// after any fallback retry has also failed.
type DDLExecutionError struct {
	Object string // table, column, index, trigger or procedure name
	Stmt   string
	Err    error
}

func (e *DDLExecutionError) Error() string {
	return fmt.Sprintf("ddl for %s: %v", e.Object, e.Err)
}

func (e *DDLExecutionError) Unwrap() error { return e.Err }

// DataCopyError is a per-table row copy failure; remaining tables still
// attempt migration.
type DataCopyError struct {
	Table string
	Err   error
}

func (e *DataCopyError) Error() string {
	return fmt.Sprintf("copy data for %s: %v", e.Table, e.Err)
}

func (e *DataCopyError) Unwrap() error { return e.Err }
