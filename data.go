package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// migrateData copies rows for every table present in both schemas, projected
// onto the columns common to both (master's order). The destination table is
// fully replaced: existing rows are deleted, then master rows (optionally
// restricted by a verbatim filter expression) are inserted in fixed-size
// batches. Per-table failures are reported and remaining tables still run.
func migrateData(ctx context.Context, masterDB, destDB *sql.DB, master, dest *SchemaSnapshot, where string, batchSize int) []error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var errs []error
	for _, name := range master.Order {
		destTable, exists := dest.Tables[name]
		if !exists {
			log.Printf("  table %s does not exist in destination, skipping data", name)
			continue
		}

		common := commonColumns(master.Tables[name], destTable)
		if len(common) == 0 {
			log.Printf("  no common columns for %s, skipping", name)
			continue
		}

		n, err := copyTable(ctx, masterDB, destDB, name, common, where, batchSize)
		if err != nil {
			errs = append(errs, &DataCopyError{Table: name, Err: err})
			continue
		}
		log.Printf("  migrated %d rows to %s", n, name)
	}
	return errs
}

// commonColumns returns the column names present in both tables, in the
// master's declaration order.
func commonColumns(master, dest TableSnapshot) []string {
	destNames := make(map[string]bool, len(dest.Columns))
	for _, c := range dest.Columns {
		destNames[c.Name] = true
	}
	var common []string
	for _, c := range master.Columns {
		if destNames[c.Name] {
			common = append(common, c.Name)
		}
	}
	return common
}

// copyTable streams master rows into the destination. The DELETE runs only
// once the first master row arrives, matching the full-replace contract
// without clearing a destination when the source selection is empty.
func copyTable(ctx context.Context, masterDB, destDB *sql.DB, table string, columns []string, where string, batchSize int) (int, error) {
	rows, err := masterDB.QueryContext(ctx, buildSelect(table, columns, where))
	if err != nil {
		return 0, fmt.Errorf("select from master: %w", err)
	}
	defer rows.Close()

	var (
		total   int
		cleared bool
		batch   [][]any
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		stmt, args := buildInsert(table, columns, batch)
		if _, err := destDB.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return total, fmt.Errorf("scan: %w", err)
		}

		if !cleared {
			if _, err := destDB.ExecContext(ctx, "DELETE FROM "+mysqlIdent(table)); err != nil {
				return 0, fmt.Errorf("clear destination: %w", err)
			}
			cleared = true
		}

		batch = append(batch, vals)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

func buildSelect(table string, columns []string, where string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = mysqlIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), mysqlIdent(table))
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// buildInsert renders one multi-row INSERT with flattened placeholder args.
func buildInsert(table string, columns []string, batch [][]any) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = mysqlIdent(c)
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", mysqlIdent(table), strings.Join(quoted, ", "))

	args := make([]any, 0, len(batch)*len(columns))
	for i, vals := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, vals...)
	}
	return b.String(), args
}
