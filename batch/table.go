// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

// tableSource returns the duckdb table function reading path. CSV cells are
// kept as text so postcodes with leading zeros survive.
func tableSource(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fmt.Sprintf("read_csv(%s, header = true, all_varchar = true)", quoteLiteral(path)), nil
	case ".parquet":
		return fmt.Sprintf("read_parquet(%s)", quoteLiteral(path)), nil
	case "":
		return "", fmt.Errorf("input file %q has no extension", path)
	default:
		return "", fmt.Errorf("unsupported input format %q (use .csv or .parquet)", filepath.Ext(path))
	}
}

func outputFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv", nil
	case ".parquet":
		return "parquet", nil
	default:
		return "", fmt.Errorf("unsupported output format for %q (use .csv or .parquet)", path)
	}
}

func sourceColumns(ctx context.Context, conn *sql.Conn, source string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+source+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows.Columns()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
