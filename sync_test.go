package main

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func strPtr(s string) *string { return &s }

func TestMissingColumns(t *testing.T) {
	master := TableSnapshot{Columns: []ColumnDescriptor{
		{Name: "id"}, {Name: "name"}, {Name: "email"}, {Name: "age"},
	}}
	dest := TableSnapshot{Columns: []ColumnDescriptor{
		{Name: "id"}, {Name: "email"}, {Name: "name"},
	}}

	missing := missingColumns(master, dest)
	if len(missing) != 1 || missing[0].Name != "age" {
		t.Fatalf("expected [age], got %v", missing)
	}

	if got := missingColumns(master, master); len(got) != 0 {
		t.Errorf("identical tables should have no missing columns, got %v", got)
	}
}

func TestBuildAddColumn(t *testing.T) {
	cases := []struct {
		name string
		col  ColumnDescriptor
		want string
	}{
		{
			"nullable int",
			ColumnDescriptor{Name: "age", Type: "int", Nullable: true},
			"ALTER TABLE `users` ADD COLUMN `age` int NULL",
		},
		{
			"not null with default",
			ColumnDescriptor{Name: "flag", Type: "tinyint(1)", Nullable: false, Default: strPtr("0")},
			"ALTER TABLE `users` ADD COLUMN `flag` tinyint(1) NOT NULL DEFAULT '0'",
		},
		{
			"text column carries destination collation",
			ColumnDescriptor{Name: "nick", Type: "varchar(50)", Nullable: true},
			"ALTER TABLE `users` ADD COLUMN `nick` varchar(50) CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci NULL",
		},
		{
			"default with embedded quote",
			ColumnDescriptor{Name: "q", Type: "int", Nullable: true, Default: strPtr("it's")},
			"ALTER TABLE `users` ADD COLUMN `q` int NULL DEFAULT 'it''s'",
		},
	}
	for _, tc := range cases {
		if got := buildAddColumn("users", tc.col, "utf8mb4_general_ci"); got != tc.want {
			t.Errorf("%s:\ngot  %s\nwant %s", tc.name, got, tc.want)
		}
	}
}

// A text-family column whose ALTER fails under the destination collation is
// retried once under utf8mb4_unicode_ci.
func TestAddColumn_CollationFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	col := ColumnDescriptor{Name: "nick", Type: "varchar(50)", Nullable: true}

	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `users` ADD COLUMN `nick` varchar(50) CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci NULL")).
		WillReturnError(errors.New("unknown collation"))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `users` ADD COLUMN `nick` varchar(50) CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := addColumn(context.Background(), db, "users", col, "utf8mb4_general_ci"); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Non-text columns carry no collation clause, so a failure is final.
func TestAddColumn_NoRetryForNonText(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `users` ADD COLUMN `age` int NULL")).
		WillReturnError(boom)

	err = addColumn(context.Background(), db, "users",
		ColumnDescriptor{Name: "age", Type: "int", Nullable: true}, "utf8mb4_general_ci")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error without retry, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func expectDestCollation(mock sqlmock.Sqlmock, dbName, collation string) {
	mock.ExpectQuery("SELECT DEFAULT_COLLATION_NAME").
		WithArgs(dbName).
		WillReturnRows(sqlmock.NewRows([]string{"DEFAULT_COLLATION_NAME"}).AddRow(collation))
}

func expectTableList(mock sqlmock.Sqlmock, dbName string, tables ...string) {
	rows := sqlmock.NewRows([]string{"TABLE_NAME"})
	for _, tbl := range tables {
		rows.AddRow(tbl)
	}
	mock.ExpectQuery(`SELECT TABLE_NAME FROM INFORMATION_SCHEMA\.TABLES`).
		WithArgs(dbName).
		WillReturnRows(rows)
}

func expectTableIntrospection(mock sqlmock.Sqlmock, dbName, table, create, collation string, cols ...[]driverValue) {
	descRows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	for _, c := range cols {
		descRows.AddRow(c[0], c[1], c[2], c[3], c[4], c[5])
	}
	mock.ExpectQuery("DESCRIBE `" + table + "`").WillReturnRows(descRows)
	mock.ExpectQuery("SHOW CREATE TABLE `" + table + "`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow(table, create))
	mock.ExpectQuery("SELECT TABLE_COLLATION").
		WithArgs(dbName, table).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_COLLATION"}).AddRow(collation))
}

type driverValue = any

func describeRow(name, typ, null string, dflt any) []driverValue {
	return []driverValue{name, typ, null, "", dflt, ""}
}

// Master users(id, name, email) gains age; destination has the original
// three columns. Update must issue exactly one ADD COLUMN and touch nothing
// else.
func TestUpdateSchema_AddsOnlyMissingColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	master := &SchemaSnapshot{
		Order: []string{"users"},
		Tables: map[string]TableSnapshot{
			"users": {
				Name: "users",
				Columns: []ColumnDescriptor{
					{Name: "id", Type: "int"},
					{Name: "name", Type: "varchar(100)", Nullable: true},
					{Name: "email", Type: "varchar(255)", Nullable: true},
					{Name: "age", Type: "int", Nullable: true},
				},
			},
		},
	}

	expectDestCollation(mock, "destdb", "utf8mb4_general_ci")
	expectTableList(mock, "destdb", "users")
	expectTableIntrospection(mock, "destdb", "users", "CREATE TABLE `users` (...)", "utf8mb4_general_ci",
		describeRow("id", "int", "NO", nil),
		describeRow("name", "varchar(100)", "YES", nil),
		describeRow("email", "varchar(255)", "YES", nil),
	)
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `users` ADD COLUMN `age` int NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	subErrs, err := updateSchema(context.Background(), master, db, "destdb")
	if err != nil {
		t.Fatalf("updateSchema: %v", err)
	}
	if len(subErrs) != 0 {
		t.Fatalf("expected no sub-errors, got %v", subErrs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A master table absent from the destination is created under the
// destination's default collation.
func TestUpdateSchema_CreatesMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	master := &SchemaSnapshot{
		Order: []string{"posts"},
		Tables: map[string]TableSnapshot{
			"posts": {
				Name:            "posts",
				Columns:         []ColumnDescriptor{{Name: "id", Type: "int"}},
				CreateStatement: "CREATE TABLE `posts` (`id` int) DEFAULT CHARSET=latin1",
			},
		},
	}

	expectDestCollation(mock, "destdb", "utf8mb4_general_ci")
	expectTableList(mock, "destdb") // destination empty
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `posts` (`id` int) DEFAULT CHARSET=utf8mb4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	subErrs, err := updateSchema(context.Background(), master, db, "destdb")
	if err != nil {
		t.Fatalf("updateSchema: %v", err)
	}
	if len(subErrs) != 0 {
		t.Fatalf("expected no sub-errors, got %v", subErrs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A destination table that exists but could not be introspected must not be
// treated as absent: no CREATE is attempted and the skip is reported.
func TestUpdateSchema_UnreadableDestTableNotRecreated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	master := &SchemaSnapshot{
		Order: []string{"users"},
		Tables: map[string]TableSnapshot{
			"users": {
				Name:            "users",
				Columns:         []ColumnDescriptor{{Name: "id", Type: "int"}},
				CreateStatement: "CREATE TABLE `users` (`id` int)",
			},
		},
	}

	expectDestCollation(mock, "destdb", "utf8mb4_general_ci")
	expectTableList(mock, "destdb", "users")
	mock.ExpectQuery("DESCRIBE `users`").WillReturnError(errors.New("table is marked as crashed"))

	subErrs, err := updateSchema(context.Background(), master, db, "destdb")
	if err != nil {
		t.Fatalf("updateSchema: %v", err)
	}
	if len(subErrs) != 1 {
		t.Fatalf("expected one sub-error, got %v", subErrs)
	}
	var ie *IntrospectionError
	if !errors.As(subErrs[0], &ie) {
		t.Errorf("expected IntrospectionError, got %v", subErrs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no CREATE TABLE expected: %v", err)
	}
}

// Overwrite drops the destination's tables and recreates master tables under
// the destination's pre-existing default collation.
func TestOverwriteSchema_DropAndRecreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	master := &SchemaSnapshot{
		Order: []string{"users"},
		Tables: map[string]TableSnapshot{
			"users": {
				Name:            "users",
				CreateStatement: "CREATE TABLE `users` (`id` int) DEFAULT CHARSET=latin1 COLLATE=latin1_swedish_ci",
			},
		},
	}

	expectDestCollation(mock, "destdb", "utf8mb4_general_ci")
	expectTableList(mock, "destdb", "legacy")
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS `legacy`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `users` (`id` int) DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	subErrs, err := overwriteSchema(context.Background(), master, db, "destdb")
	if err != nil {
		t.Fatalf("overwriteSchema: %v", err)
	}
	if len(subErrs) != 0 {
		t.Fatalf("expected no sub-errors, got %v", subErrs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A failed create is retried once under utf8mb4_unicode_ci; the second
// failure surfaces as a sub-error without aborting the loop.
func TestExecWithCollationFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	stmt := "CREATE TABLE `t` (`c` text COLLATE latin1_swedish_ci)"

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `t` (`c` text COLLATE utf8mb4_general_ci)")).
		WillReturnError(errors.New("unknown collation"))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `t` (`c` text COLLATE utf8mb4_unicode_ci)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := execWithCollationFallback(context.Background(), db, stmt, "utf8mb4_general_ci"); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExecWithCollationFallback_NoSecondAttemptUnderFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `t` (`c` text COLLATE utf8mb4_unicode_ci)")).
		WillReturnError(boom)

	err = execWithCollationFallback(context.Background(), db,
		"CREATE TABLE `t` (`c` text COLLATE latin1_swedish_ci)", fallbackCollation)
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
