package main

import (
	"context"
	"database/sql"
	"log"
	"regexp"
	"strings"
)

// fallbackCollation is used when a destination's default collation cannot be
// determined, and as the retry collation when DDL fails under the preferred one.
const fallbackCollation = "utf8mb4_unicode_ci"

var (
	reDefaultCharset = regexp.MustCompile(`(?i)DEFAULT\s+CHARSET\s*=\s*\w+`)
	reCollate        = regexp.MustCompile(`(?i)\b(COLLATE\s*=\s*|COLLATE\s+)\w+`)
	reCharsetCollate = regexp.MustCompile(`(?i)CHARACTER\s+SET\s+\w+\s+COLLATE\s+\w+`)
	// Legacy collation families whose tokens can linger inside column
	// definitions. The underscore keeps utf8mb4_* from matching as utf8_*,
	// and anchoring on the _ci/_cs/_bin variant suffix keeps identifiers
	// that merely start with a family name (`utf8_data`) out of the sweep.
	reLegacyCollation = regexp.MustCompile(`(?i)\b(?:latin1|utf8|ucs2|utf16|utf32)_(?:\w+_)?(?:ci|cs|bin)\b`)
	reCharacterSet    = regexp.MustCompile(`(?i)CHARACTER\s+SET\s+\w+(\s+COLLATE\s+\w+)?`)
)

// charsetForCollation derives the charset from a collation token following
// the <charset>_<variant> convention.
func charsetForCollation(collation string) string {
	if i := strings.IndexByte(collation, '_'); i > 0 {
		return collation[:i]
	}
	return collation
}

// normalizeCollation rewrites every character-set and collation declaration
// in a creation statement to the target collation. Replacement order
// matters: the broad rewrites run first so the narrower sweeps never touch
// already-correct tokens. The result is idempotent.
func normalizeCollation(ddl, targetCollation string) string {
	if targetCollation == "" {
		targetCollation = fallbackCollation
	}
	charset := charsetForCollation(targetCollation)

	// 1. Table-level default charset.
	ddl = reDefaultCharset.ReplaceAllString(ddl, "DEFAULT CHARSET="+charset)

	// 2. Every explicit COLLATE, table-level or column-level, preserving
	// the `COLLATE=` table-option spelling.
	ddl = reCollate.ReplaceAllString(ddl, "${1}"+targetCollation)

	// 3. Charset/collation pairs get the canonical charset.
	ddl = reCharsetCollate.ReplaceAllString(ddl, "CHARACTER SET "+charset+" COLLATE "+targetCollation)

	// 4. Leftover legacy collation tokens inside column definitions.
	ddl = reLegacyCollation.ReplaceAllString(ddl, targetCollation)

	// 5. Bare CHARACTER SET without a collation gets one. RE2 has no
	// lookahead, so match the optional COLLATE tail and rewrite the whole.
	ddl = reCharacterSet.ReplaceAllString(ddl, "CHARACTER SET "+charset+" COLLATE "+targetCollation)

	return ddl
}

// databaseCollation returns a database's default collation. Failures fall
// back to utf8mb4_unicode_ci so a migration can still proceed.
func databaseCollation(ctx context.Context, db *sql.DB, dbName string) string {
	var collation string
	err := db.QueryRowContext(ctx,
		`SELECT DEFAULT_COLLATION_NAME FROM INFORMATION_SCHEMA.SCHEMATA
		 WHERE SCHEMA_NAME = ?`,
		dbName,
	).Scan(&collation)
	if err != nil {
		log.Printf("  database collation for %s unavailable (%v), using %s", dbName, err, fallbackCollation)
		return fallbackCollation
	}
	return collation
}
