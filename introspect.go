package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// introspectSchema reads the full structural snapshot of a database: every
// base table's columns, verbatim creation statement, and effective collation.
// Individual tables whose definition cannot be read are logged and omitted;
// a failing metadata query aborts the scan with an IntrospectionError.
func introspectSchema(ctx context.Context, db *sql.DB, dbName string) (*SchemaSnapshot, error) {
	names, err := listTables(ctx, db, dbName)
	if err != nil {
		return nil, &IntrospectionError{Database: dbName, Err: err}
	}

	snap := &SchemaSnapshot{
		Tables:  make(map[string]TableSnapshot, len(names)),
		Skipped: make(map[string]bool),
	}
	for _, name := range names {
		table, err := introspectTable(ctx, db, dbName, name)
		if err != nil {
			log.Printf("  skipping table %s: %v", name, err)
			snap.Skipped[name] = true
			continue
		}
		snap.Tables[name] = table
		snap.Order = append(snap.Order, name)
	}
	return snap, nil
}

func listTables(ctx context.Context, db *sql.DB, dbName string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`,
		dbName,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func introspectTable(ctx context.Context, db *sql.DB, dbName, table string) (TableSnapshot, error) {
	t := TableSnapshot{Name: table}

	cols, err := describeColumns(ctx, db, table)
	if err != nil {
		return t, fmt.Errorf("describe: %w", err)
	}
	t.Columns = cols

	var ignored string
	if err := db.QueryRowContext(ctx, "SHOW CREATE TABLE "+mysqlIdent(table)).
		Scan(&ignored, &t.CreateStatement); err != nil {
		return t, fmt.Errorf("show create table: %w", err)
	}

	var collation sql.NullString
	if err := db.QueryRowContext(ctx,
		`SELECT TABLE_COLLATION FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		dbName, table,
	).Scan(&collation); err != nil && err != sql.ErrNoRows {
		return t, fmt.Errorf("table collation: %w", err)
	}
	t.Collation = collation.String

	return t, nil
}

func describeColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE "+mysqlIdent(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnDescriptor
	for rows.Next() {
		var c ColumnDescriptor
		var nullable, key, extra string
		var dflt sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &key, &dflt, &extra); err != nil {
			return nil, err
		}
		c.Nullable = nullable == "YES"
		if dflt.Valid {
			v := dflt.String
			c.Default = &v
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// introspectIndexes returns every index grouped per table, columns ordered
// by SEQ_IN_INDEX. PRIMARY indexes are included; consumers skip them.
func introspectIndexes(ctx context.Context, db *sql.DB, dbName string) (map[string][]IndexDescriptor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME, NON_UNIQUE
		 FROM INFORMATION_SCHEMA.STATISTICS
		 WHERE TABLE_SCHEMA = ? AND COLUMN_NAME IS NOT NULL
		 ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`,
		dbName,
	)
	if err != nil {
		return nil, &IntrospectionError{Database: dbName, Err: fmt.Errorf("list indexes: %w", err)}
	}
	defer rows.Close()

	byTable := make(map[string][]IndexDescriptor)
	for rows.Next() {
		var table, idxName, colName string
		var nonUnique int
		if err := rows.Scan(&table, &idxName, &colName, &nonUnique); err != nil {
			return nil, &IntrospectionError{Database: dbName, Err: err}
		}

		indexes := byTable[table]
		if n := len(indexes); n > 0 && indexes[n-1].Name == idxName {
			indexes[n-1].Columns = append(indexes[n-1].Columns, colName)
		} else {
			indexes = append(indexes, IndexDescriptor{
				Name:    idxName,
				Columns: []string{colName},
				Unique:  nonUnique == 0,
			})
		}
		byTable[table] = indexes
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Database: dbName, Err: err}
	}
	return byTable, nil
}

// introspectTriggers lists triggers and fetches each one's verbatim creation
// statement. A trigger whose definition cannot be read is logged and omitted.
func introspectTriggers(ctx context.Context, db *sql.DB, dbName string) ([]TriggerDescriptor, error) {
	names, err := collectStrings(ctx, db,
		`SELECT TRIGGER_NAME FROM INFORMATION_SCHEMA.TRIGGERS
		 WHERE TRIGGER_SCHEMA = ? ORDER BY TRIGGER_NAME`,
		dbName,
	)
	if err != nil {
		return nil, &IntrospectionError{Database: dbName, Err: fmt.Errorf("list triggers: %w", err)}
	}

	var triggers []TriggerDescriptor
	for _, name := range names {
		stmt, err := namedShowColumn(ctx, db, "SHOW CREATE TRIGGER "+mysqlIdent(name), "SQL Original Statement")
		if err != nil {
			log.Printf("  skipping trigger %s: %v", name, err)
			continue
		}
		triggers = append(triggers, TriggerDescriptor{Name: name, CreateStatement: stmt})
	}
	return triggers, nil
}

// introspectProcedures is the same pattern as introspectTriggers, keyed by
// procedure name.
func introspectProcedures(ctx context.Context, db *sql.DB, dbName string) ([]ProcedureDescriptor, error) {
	names, err := collectStrings(ctx, db,
		`SELECT ROUTINE_NAME FROM INFORMATION_SCHEMA.ROUTINES
		 WHERE ROUTINE_SCHEMA = ? AND ROUTINE_TYPE = 'PROCEDURE'
		 ORDER BY ROUTINE_NAME`,
		dbName,
	)
	if err != nil {
		return nil, &IntrospectionError{Database: dbName, Err: fmt.Errorf("list procedures: %w", err)}
	}

	var procs []ProcedureDescriptor
	for _, name := range names {
		stmt, err := namedShowColumn(ctx, db, "SHOW CREATE PROCEDURE "+mysqlIdent(name), "Create Procedure")
		if err != nil {
			log.Printf("  skipping procedure %s: %v", name, err)
			continue
		}
		procs = append(procs, ProcedureDescriptor{Name: name, CreateStatement: stmt})
	}
	return procs, nil
}

// columnMeta is the per-column type and collation needed to resolve index
// key lengths on a destination table.
type columnMeta struct {
	Type      string // full type, e.g. "varchar(500)"
	Collation string // may be empty for non-text columns
}

func introspectColumnMeta(ctx context.Context, db *sql.DB, dbName, table string) (map[string]columnMeta, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE, COALESCE(COLLATION_NAME, '')
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		dbName, table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]columnMeta)
	for rows.Next() {
		var name string
		var m columnMeta
		if err := rows.Scan(&name, &m.Type, &m.Collation); err != nil {
			return nil, err
		}
		meta[name] = m
	}
	return meta, rows.Err()
}

// collectStrings gathers a single-column string result set.
func collectStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// namedShowColumn runs a SHOW statement and extracts one column of its first
// row by name. SHOW CREATE output gained columns across server versions, so
// positional scanning is not safe.
func namedShowColumn(ctx context.Context, db *sql.DB, query, column string) (string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	idx := -1
	for i, c := range cols {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("column %q not present in result", column)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty result")
	}
	vals := make([]any, len(cols))
	for i := range vals {
		vals[i] = new(sql.RawBytes)
	}
	if err := rows.Scan(vals...); err != nil {
		return "", err
	}
	return string(*vals[idx].(*sql.RawBytes)), nil
}
