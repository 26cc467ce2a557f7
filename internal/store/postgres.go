package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements RecordStore over Postgres. Because the action layer
// targets tables and columns chosen at runtime by the model, queries are built
// dynamically; identifiers are validated against the allow-list before they
// reach SQL text, and values always travel as bind parameters.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) List(ctx context.Context, table string, limit int) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	sql := fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at DESC LIMIT $1`, quoteIdent(table))
	return s.query(ctx, sql, limit)
}

func (s *PGStore) Find(ctx context.Context, table, column string, value any, limit int) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkColumn(column); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	sql := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1 LIMIT $2`, quoteIdent(table), quoteIdent(column))
	return s.query(ctx, sql, value, limit)
}

func (s *PGStore) FindOne(ctx context.Context, table, column string, value any) (Row, error) {
	rows, err := s.Find(ctx, table, column, value, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *PGStore) Insert(ctx context.Context, table string, data Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("insert into %s: no fields given", table)
	}

	columns := sortedKeys(data)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	quoted := make([]string, len(columns))
	for i, col := range columns {
		if err := checkColumn(col); err != nil {
			return nil, err
		}
		quoted[i] = quoteIdent(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[col]
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return s.query(ctx, sql, args...)
}

func (s *PGStore) Update(ctx context.Context, table, column string, value any, updates Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkColumn(column); err != nil {
		return nil, err
	}

	setClause, args, err := buildSetClause(updates, 1)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d RETURNING *`,
		quoteIdent(table), setClause, quoteIdent(column), len(args)+1)
	args = append(args, value)
	return s.query(ctx, sql, args...)
}

func (s *PGStore) UpdateAll(ctx context.Context, table string, updates Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	setClause, args, err := buildSetClause(updates, 1)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`UPDATE %s SET %s RETURNING *`, quoteIdent(table), setClause)
	return s.query(ctx, sql, args...)
}

func (s *PGStore) query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("record store query: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "record store query completed",
		"rows", len(result),
		"latency_ms", time.Since(start).Milliseconds())

	return result, nil
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	var result []Row
	fields := rows.FieldDescriptions()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}

func buildSetClause(updates Row, startIdx int) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}

	columns := sortedKeys(updates)
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		if err := checkColumn(col); err != nil {
			return "", nil, err
		}
		parts[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), startIdx+i)
		args[i] = updates[col]
	}

	return strings.Join(parts, ", "), args, nil
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quoteIdent wraps an already-validated identifier in double quotes.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
