package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// InnoDB caps a combined index key at maxIndexKeyBytes for common row
// formats. utf8mb4-family collations cost up to 4 bytes per character.
const (
	maxIndexKeyBytes    = 1000
	bytesPerChar        = 4
	safePrefixChars     = 191 // 191*4 = 764 bytes, safe margin
	fallbackPrefixChars = 100 // aggressive second tier when 191 still fails
)

// mysqlErrTooLongKey is ER_TOO_LONG_KEY.
const mysqlErrTooLongKey = 1071

var reCharLen = regexp.MustCompile(`^(?:var)?char\((\d+)\)`)

func isTextFamily(columnType string) bool {
	ct := strings.ToLower(columnType)
	for _, t := range []string{"char", "text", "enum", "set"} {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

func isFourBytePerChar(collation string) bool {
	return strings.Contains(strings.ToLower(collation), "utf8mb4")
}

// charLength extracts n from char(n)/varchar(n) declarations.
func charLength(columnType string) (int, bool) {
	m := reCharLen.FindStringSubmatch(strings.ToLower(strings.TrimSpace(columnType)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveIndexColumns produces quoted column specifications safe for index
// creation under the key-length ceiling. Columns absent from meta (or
// non-text) pass through unmodified; char/varchar prefixes are truncated to
// min(n, 191) only when the worst-case width exceeds the ceiling; unbounded
// text-family columns always get a 191-character prefix.
func resolveIndexColumns(meta map[string]columnMeta, idx IndexDescriptor) []string {
	specs := make([]string, 0, len(idx.Columns))
	for _, col := range idx.Columns {
		m, ok := meta[col]
		if !ok || !isTextFamily(m.Type) || !isFourBytePerChar(m.Collation) {
			specs = append(specs, mysqlIdent(col))
			continue
		}
		if n, bounded := charLength(m.Type); bounded {
			if n*bytesPerChar > maxIndexKeyBytes {
				specs = append(specs, fmt.Sprintf("%s(%d)", mysqlIdent(col), min(n, safePrefixChars)))
			} else {
				specs = append(specs, mysqlIdent(col))
			}
			continue
		}
		specs = append(specs, fmt.Sprintf("%s(%d)", mysqlIdent(col), safePrefixChars))
	}
	return specs
}

// fallbackIndexColumns truncates every text-family column to 100 characters
// regardless of declared size. Used once after a key-length failure.
func fallbackIndexColumns(meta map[string]columnMeta, idx IndexDescriptor) []string {
	specs := make([]string, 0, len(idx.Columns))
	for _, col := range idx.Columns {
		if m, ok := meta[col]; ok && isTextFamily(m.Type) {
			specs = append(specs, fmt.Sprintf("%s(%d)", mysqlIdent(col), fallbackPrefixChars))
		} else {
			specs = append(specs, mysqlIdent(col))
		}
	}
	return specs
}

// buildCreateIndex renders the CREATE [UNIQUE] INDEX statement.
func buildCreateIndex(table string, idx IndexDescriptor, colSpecs []string) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, mysqlIdent(idx.Name), mysqlIdent(table), strings.Join(colSpecs, ", "))
}

// isKeyLengthError reports whether an index creation failure is
// specifically attributable to the key-length ceiling.
func isKeyLengthError(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrTooLongKey {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "max key length")
}
