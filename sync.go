package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// execWithCollationFallback normalizes a creation statement to the preferred
// collation and executes it; if that fails it retries once under
// utf8mb4_unicode_ci. The fallback is an explicit second attempt rather than
// a nested handler so the policy stays independently testable.
func execWithCollationFallback(ctx context.Context, db *sql.DB, stmt, collation string) error {
	_, err := db.ExecContext(ctx, normalizeCollation(stmt, collation))
	if err == nil || collation == fallbackCollation {
		return err
	}
	log.Printf("  retrying with %s collation: %v", fallbackCollation, err)
	_, err = db.ExecContext(ctx, normalizeCollation(stmt, fallbackCollation))
	return err
}

// overwriteSchema drops every existing destination table and recreates all
// master tables from their creation statements, normalized to the
// destination's pre-existing default collation. Creation order follows
// introspection discovery order; no foreign-key ordering is attempted.
// Per-statement failures are returned as non-fatal errors; the fatal return
// is reserved for failures that make the whole strategy impossible.
func overwriteSchema(ctx context.Context, master *SchemaSnapshot, destDB *sql.DB, destName string) ([]error, error) {
	// Queried once, before any drop changes the database.
	destCollation := databaseCollation(ctx, destDB, destName)
	log.Printf("  destination collation: %s", destCollation)

	destTables, err := listTables(ctx, destDB, destName)
	if err != nil {
		return nil, &IntrospectionError{Database: destName, Err: err}
	}

	var subErrs []error
	for _, table := range destTables {
		if _, err := destDB.ExecContext(ctx, "DROP TABLE IF EXISTS "+mysqlIdent(table)); err != nil {
			subErrs = append(subErrs, &DDLExecutionError{Object: table, Err: fmt.Errorf("drop table: %w", err)})
		}
	}

	for _, name := range master.Order {
		t := master.Tables[name]
		if err := execWithCollationFallback(ctx, destDB, t.CreateStatement, destCollation); err != nil {
			subErrs = append(subErrs, &DDLExecutionError{Object: name, Stmt: t.CreateStatement, Err: err})
			continue
		}
		log.Printf("  created table %s", name)
	}
	return subErrs, nil
}

// updateSchema is the additive-only strategy: missing tables are created,
// missing columns are added with nullability, default, and (for text-family
// columns) the destination collation carried over. Existing columns are
// never altered or dropped.
func updateSchema(ctx context.Context, master *SchemaSnapshot, destDB *sql.DB, destName string) ([]error, error) {
	destCollation := databaseCollation(ctx, destDB, destName)
	log.Printf("  destination collation: %s", destCollation)

	dest, err := introspectSchema(ctx, destDB, destName)
	if err != nil {
		return nil, err
	}

	var subErrs []error
	for _, name := range master.Order {
		masterTable := master.Tables[name]

		destTable, exists := dest.Tables[name]
		if !exists {
			// An unreadable destination table still exists; creating it
			// would fail with a misleading "table exists" error.
			if dest.Skipped[name] {
				subErrs = append(subErrs, &IntrospectionError{
					Database: destName,
					Err:      fmt.Errorf("table %s exists but is unreadable, skipped", name),
				})
				continue
			}
			if err := execWithCollationFallback(ctx, destDB, masterTable.CreateStatement, destCollation); err != nil {
				subErrs = append(subErrs, &DDLExecutionError{Object: name, Stmt: masterTable.CreateStatement, Err: err})
				continue
			}
			log.Printf("  created table %s", name)
			continue
		}

		for _, col := range missingColumns(masterTable, destTable) {
			if err := addColumn(ctx, destDB, name, col, destCollation); err != nil {
				subErrs = append(subErrs, &DDLExecutionError{
					Object: fmt.Sprintf("%s.%s", name, col.Name),
					Err:    err,
				})
				continue
			}
			log.Printf("  added column %s.%s", name, col.Name)
		}
	}
	return subErrs, nil
}

// missingColumns returns master's columns absent from dest, in master order.
func missingColumns(master, dest TableSnapshot) []ColumnDescriptor {
	destNames := make(map[string]bool, len(dest.Columns))
	for _, c := range dest.Columns {
		destNames[c.Name] = true
	}
	var missing []ColumnDescriptor
	for _, c := range master.Columns {
		if !destNames[c.Name] {
			missing = append(missing, c)
		}
	}
	return missing
}

// addColumn issues one ADD COLUMN, retrying once under the fallback
// collation when the column carries a collation clause.
func addColumn(ctx context.Context, db *sql.DB, table string, col ColumnDescriptor, collation string) error {
	stmt := buildAddColumn(table, col, collation)
	_, err := db.ExecContext(ctx, stmt)
	if err == nil {
		return nil
	}
	if !isTextFamily(col.Type) || collation == fallbackCollation {
		return err
	}
	log.Printf("  retrying column %s.%s with %s collation: %v", table, col.Name, fallbackCollation, err)
	_, err = db.ExecContext(ctx, buildAddColumn(table, col, fallbackCollation))
	return err
}

// buildAddColumn renders the ALTER TABLE ... ADD COLUMN statement. Text-family
// columns get an explicit charset/collation so they match the destination.
func buildAddColumn(table string, col ColumnDescriptor, collation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", mysqlIdent(table), mysqlIdent(col.Name), col.Type)

	if isTextFamily(col.Type) {
		fmt.Fprintf(&b, " CHARACTER SET %s COLLATE %s", charsetForCollation(collation), collation)
	}

	if col.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}

	if col.Default != nil {
		fmt.Fprintf(&b, " DEFAULT '%s'", strings.ReplaceAll(*col.Default, "'", "''"))
	}

	return b.String()
}
