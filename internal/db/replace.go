package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig names the rows a Replace swaps out.
type ReplaceConfig struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns of the new rows
	Keys    []string // columns identifying the replaced rows
	Values  []any    // one value per key
}

// Replace deletes the rows of cfg.Table matching cfg.Keys = cfg.Values and
// copies rows in their place within one transaction. It returns the number
// of rows copied.
func Replace(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Keys) == 0 || len(cfg.Keys) != len(cfg.Values) {
		return 0, eris.Errorf("db: replace %s: %d keys for %d values", cfg.Table, len(cfg.Keys), len(cfg.Values))
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	where := make([]string, len(cfg.Keys))
	for i, k := range cfg.Keys {
		where[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s", identifier(cfg.Table).Sanitize(), strings.Join(where, " AND "))
	if _, err := tx.Exec(ctx, deleteSQL, cfg.Values...); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
