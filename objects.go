package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
)

// migrateIndexes replicates master indexes onto the destination. For every
// destination table present in master's index map it drops all non-PRIMARY
// indexes, then recreates the master ones under the key-length policy.
// Per-index failures are reported and do not block remaining indexes.
func migrateIndexes(ctx context.Context, destDB *sql.DB, destName string, masterIndexes map[string][]IndexDescriptor) []error {
	if len(masterIndexes) == 0 {
		log.Printf("  no indexes in master, nothing to do")
		return nil
	}

	destTables, err := listTables(ctx, destDB, destName)
	if err != nil {
		return []error{&IntrospectionError{Database: destName, Err: err}}
	}
	destSet := make(map[string]bool, len(destTables))
	for _, t := range destTables {
		destSet[t] = true
	}

	tables := make([]string, 0, len(masterIndexes))
	for t := range masterIndexes {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var errs []error
	for _, table := range tables {
		if !destSet[table] {
			log.Printf("  table %s does not exist in destination, skipping indexes", table)
			continue
		}

		meta, err := introspectColumnMeta(ctx, destDB, destName, table)
		if err != nil {
			errs = append(errs, &IntrospectionError{Database: destName, Err: fmt.Errorf("columns of %s: %w", table, err)})
			continue
		}

		errs = append(errs, dropExistingIndexes(ctx, destDB, destName, table)...)

		for _, idx := range masterIndexes[table] {
			if idx.Name == "PRIMARY" {
				continue // part of table structure
			}
			if err := createIndexWithFallback(ctx, destDB, table, idx, meta); err != nil {
				errs = append(errs, &DDLExecutionError{
					Object: fmt.Sprintf("%s.%s", table, idx.Name),
					Err:    err,
				})
				continue
			}
			log.Printf("  created index %s on %s", idx.Name, table)
		}
	}
	return errs
}

func dropExistingIndexes(ctx context.Context, destDB *sql.DB, destName, table string) []error {
	names, err := collectStrings(ctx, destDB,
		`SELECT DISTINCT INDEX_NAME FROM INFORMATION_SCHEMA.STATISTICS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME != 'PRIMARY'
		 ORDER BY INDEX_NAME`,
		destName, table,
	)
	if err != nil {
		return []error{&IntrospectionError{Database: destName, Err: fmt.Errorf("indexes of %s: %w", table, err)}}
	}

	var errs []error
	for _, name := range names {
		stmt := fmt.Sprintf("DROP INDEX %s ON %s", mysqlIdent(name), mysqlIdent(table))
		if _, err := destDB.ExecContext(ctx, stmt); err != nil {
			errs = append(errs, &DDLExecutionError{Object: fmt.Sprintf("%s.%s", table, name), Stmt: stmt, Err: err})
		}
	}
	return errs
}

// createIndexWithFallback tries the resolved column specification first and,
// when the failure is attributable to key length, retries once with every
// text-family column truncated to 100 characters.
func createIndexWithFallback(ctx context.Context, db *sql.DB, table string, idx IndexDescriptor, meta map[string]columnMeta) error {
	_, err := db.ExecContext(ctx, buildCreateIndex(table, idx, resolveIndexColumns(meta, idx)))
	if err == nil || !isKeyLengthError(err) {
		return err
	}
	log.Printf("  retrying index %s with reduced key length: %v", idx.Name, err)
	_, err = db.ExecContext(ctx, buildCreateIndex(table, idx, fallbackIndexColumns(meta, idx)))
	return err
}

// migrateTriggers recreates master triggers at the destination, dropping a
// same-named trigger first. No conflict resolution beyond name equality.
func migrateTriggers(ctx context.Context, destDB *sql.DB, destName string, masterTriggers []TriggerDescriptor) []error {
	if len(masterTriggers) == 0 {
		log.Printf("  no triggers in master, nothing to do")
		return nil
	}

	existing, err := collectStrings(ctx, destDB,
		`SELECT TRIGGER_NAME FROM INFORMATION_SCHEMA.TRIGGERS
		 WHERE TRIGGER_SCHEMA = ?`,
		destName,
	)
	if err != nil {
		return []error{&IntrospectionError{Database: destName, Err: fmt.Errorf("list triggers: %w", err)}}
	}
	existingSet := make(map[string]bool, len(existing))
	for _, n := range existing {
		existingSet[n] = true
	}

	var errs []error
	for _, trg := range masterTriggers {
		if existingSet[trg.Name] {
			if _, err := destDB.ExecContext(ctx, "DROP TRIGGER IF EXISTS "+mysqlIdent(trg.Name)); err != nil {
				errs = append(errs, &DDLExecutionError{Object: trg.Name, Err: fmt.Errorf("drop trigger: %w", err)})
				continue
			}
		}
		if _, err := destDB.ExecContext(ctx, trg.CreateStatement); err != nil {
			errs = append(errs, &DDLExecutionError{Object: trg.Name, Stmt: trg.CreateStatement, Err: err})
			continue
		}
		log.Printf("  created trigger %s", trg.Name)
	}
	return errs
}

// migrateProcedures is the identical pattern to migrateTriggers, keyed by
// procedure name.
func migrateProcedures(ctx context.Context, destDB *sql.DB, destName string, masterProcs []ProcedureDescriptor) []error {
	if len(masterProcs) == 0 {
		log.Printf("  no procedures in master, nothing to do")
		return nil
	}

	existing, err := collectStrings(ctx, destDB,
		`SELECT ROUTINE_NAME FROM INFORMATION_SCHEMA.ROUTINES
		 WHERE ROUTINE_SCHEMA = ? AND ROUTINE_TYPE = 'PROCEDURE'`,
		destName,
	)
	if err != nil {
		return []error{&IntrospectionError{Database: destName, Err: fmt.Errorf("list procedures: %w", err)}}
	}
	existingSet := make(map[string]bool, len(existing))
	for _, n := range existing {
		existingSet[n] = true
	}

	var errs []error
	for _, proc := range masterProcs {
		if existingSet[proc.Name] {
			if _, err := destDB.ExecContext(ctx, "DROP PROCEDURE IF EXISTS "+mysqlIdent(proc.Name)); err != nil {
				errs = append(errs, &DDLExecutionError{Object: proc.Name, Err: fmt.Errorf("drop procedure: %w", err)})
				continue
			}
		}
		if _, err := destDB.ExecContext(ctx, proc.CreateStatement); err != nil {
			errs = append(errs, &DDLExecutionError{Object: proc.Name, Stmt: proc.CreateStatement, Err: err})
			continue
		}
		log.Printf("  created procedure %s", proc.Name)
	}
	return errs
}

// migrateObjects runs the indexes-then-triggers-then-procedures sequence both
// schema strategies delegate to.
func migrateObjects(ctx context.Context, destDB *sql.DB, destName string, ms *masterState) []error {
	var errs []error
	log.Printf("  migrating indexes...")
	errs = append(errs, migrateIndexes(ctx, destDB, destName, ms.Indexes)...)
	log.Printf("  migrating triggers...")
	errs = append(errs, migrateTriggers(ctx, destDB, destName, ms.Triggers)...)
	log.Printf("  migrating procedures...")
	errs = append(errs, migrateProcedures(ctx, destDB, destName, ms.Procedures)...)
	return errs
}
