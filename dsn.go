package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// targetDSN builds a driver DSN for a ConnectionTarget. ParseTime and
// InterpolateParams match how fetched rows are written back verbatim.
func targetDSN(t ConnectionTarget) string {
	cfg := mysql.NewConfig()
	cfg.User = t.User
	cfg.Passwd = t.Password
	cfg.Net = "tcp"
	cfg.Addr = t.Host
	if !strings.Contains(t.Host, ":") {
		cfg.Addr = t.Host + ":3306"
	}
	cfg.DBName = t.Database
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// openTarget opens and pings a connection scoped to one engine operation.
// Callers close it before the next destination's connection opens.
func openTarget(ctx context.Context, t ConnectionTarget) (*sql.DB, error) {
	db, err := sql.Open("mysql", targetDSN(t))
	if err != nil {
		return nil, &ConnectionError{Target: t, Err: err}
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Target: t, Err: err}
	}
	return db, nil
}

// mysqlIdent quotes an identifier with backticks.
func mysqlIdent(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}
