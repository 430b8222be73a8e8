package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
)

// runHookFiles reads each SQL file, expands {{database}}, and executes every
// statement against the destination. Hook failures fail that destination's
// outcome but never the whole run.
func runHookFiles(ctx context.Context, db *sql.DB, opts *RunOptions, destName string, files []string, phase string) error {
	if len(files) == 0 {
		return nil
	}
	log.Printf("  running %s hooks (%d files)...", phase, len(files))

	for _, f := range files {
		path := opts.resolvePath(f)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}

		text := strings.ReplaceAll(string(data), "{{database}}", destName)
		stmts := splitStatements(text)

		log.Printf("    %s: %d statements", f, len(stmts))
		for i, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("hook %s: %s: statement %d: %w", phase, f, i+1, err)
			}
		}
	}
	return nil
}

// splitStatements splits SQL text on semicolons, ignoring empty entries and
// semicolons inside single-quoted strings or backtick-quoted identifiers.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var inQuote, inBacktick bool

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '`' && !inQuote:
			// A doubled backtick inside an identifier toggles twice,
			// which nets out to staying inside.
			inBacktick = !inBacktick
			current.WriteByte(c)
		case c == '\'' && !inBacktick:
			// Handle escaped quotes ('')
			if inQuote && i+1 < len(sql) && sql[i+1] == '\'' {
				current.WriteByte(c)
				current.WriteByte(c)
				i++
			} else {
				inQuote = !inQuote
				current.WriteByte(c)
			}
		case c == ';' && !inQuote && !inBacktick:
			s := strings.TrimSpace(current.String())
			if s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}

	return stmts
}
