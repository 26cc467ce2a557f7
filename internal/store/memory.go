package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory RecordStore used by tests and local development.
// It mirrors the Postgres implementation's semantics: allow-list enforcement,
// created_at ordering for List, and nil-on-miss FindOne.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

// Seed inserts rows without allow-list checks, for test fixtures.
func (s *MemoryStore) Seed(table string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], rows...)
}

func (s *MemoryStore) List(ctx context.Context, table string, limit int) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Row, len(s.tables[table]))
	copy(rows, s.tables[table])
	sort.SliceStable(rows, func(i, j int) bool {
		return createdAt(rows[i]).After(createdAt(rows[j]))
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	return copyRows(rows), nil
}

func (s *MemoryStore) Find(ctx context.Context, table, column string, value any, limit int) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkColumn(column); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Row
	for _, row := range s.tables[table] {
		if equalValues(row[column], value) {
			matches = append(matches, row)
			if len(matches) == limit {
				break
			}
		}
	}
	return copyRows(matches), nil
}

func (s *MemoryStore) FindOne(ctx context.Context, table, column string, value any) (Row, error) {
	rows, err := s.Find(ctx, table, column, value, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *MemoryStore) Insert(ctx context.Context, table string, data Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("insert into %s: no fields given", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := make(Row, len(data)+1)
	for k, v := range data {
		if err := checkColumn(k); err != nil {
			return nil, err
		}
		row[k] = v
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = time.Now()
	}
	s.tables[table] = append(s.tables[table], row)

	return copyRows([]Row{row}), nil
}

func (s *MemoryStore) Update(ctx context.Context, table, column string, value any, updates Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkColumn(column); err != nil {
		return nil, err
	}
	for k := range updates {
		if err := checkColumn(k); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated []Row
	for _, row := range s.tables[table] {
		if equalValues(row[column], value) {
			for k, v := range updates {
				row[k] = v
			}
			updated = append(updated, row)
		}
	}
	return copyRows(updated), nil
}

func (s *MemoryStore) UpdateAll(ctx context.Context, table string, updates Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	for k := range updates {
		if err := checkColumn(k); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated []Row
	for _, row := range s.tables[table] {
		for k, v := range updates {
			row[k] = v
		}
		updated = append(updated, row)
	}
	return copyRows(updated), nil
}

func createdAt(row Row) time.Time {
	switch v := row["created_at"].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// equalValues compares loosely: model-supplied filter values arrive as strings
// even when the column holds a number.
func equalValues(a, b any) bool {
	if a == b {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func copyRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
