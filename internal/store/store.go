package store

import (
	"context"
	"fmt"
	"regexp"
)

// Row is a single record as returned by the backing store.
type Row = map[string]any

// RecordStore is the narrow query/mutation interface the action layer consumes.
// Implementations tolerate "no rows" on FindOne as a valid nil result, not an
// error, so executors can distinguish a miss from a backend failure.
type RecordStore interface {
	// List fetches up to limit rows, most-recent-first by created_at.
	List(ctx context.Context, table string, limit int) ([]Row, error)
	// Find fetches rows where column equals value, bounded by limit.
	Find(ctx context.Context, table, column string, value any, limit int) ([]Row, error)
	// FindOne fetches a single row by equality filter. Returns (nil, nil) on no match.
	FindOne(ctx context.Context, table, column string, value any) (Row, error)
	// Insert inserts one row and returns the inserted rows.
	Insert(ctx context.Context, table string, data Row) ([]Row, error)
	// Update applies updates to rows matching the equality filter and returns them.
	Update(ctx context.Context, table, column string, value any, updates Row) ([]Row, error)
	// UpdateAll applies updates to every row of a table. Used only for the
	// singleton configuration table.
	UpdateAll(ctx context.Context, table string, updates Row) ([]Row, error)
}

// AllowedTables enumerates every table the action layer may touch. All of them
// carry a created_at column, which List relies on for ordering.
var AllowedTables = []string{
	"profiles", "wallets", "transactions", "notifications", "referrals",
	"investments", "investment_plans", "marketplace_tasks", "marketplace_submissions",
	"task_attempts", "user_tasks", "payment_methods", "deposit_bonuses",
	"crash_game_state", "game_history", "deposit_requests", "withdraw_requests",
	"kyc_requests", "game_configs", "bot_profiles", "spin_items", "ludo_cards",
	"referral_tiers", "player_rigging", "user_biometrics", "daily_bonus_config",
	"daily_streaks", "help_requests", "system_config", "withdrawal_settings",
	"user_withdrawal_methods",
}

var allowedTableSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AllowedTables))
	for _, t := range AllowedTables {
		set[t] = struct{}{}
	}
	return set
}()

// TableAllowed reports whether the action layer may touch the named table.
func TableAllowed(name string) bool {
	_, ok := allowedTableSet[name]
	return ok
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// checkTable validates a table against the allow-list.
func checkTable(table string) error {
	if !TableAllowed(table) {
		return fmt.Errorf("table %q is not allowed", table)
	}
	return nil
}

// checkColumn validates a column name as a safe SQL identifier. Column names
// arrive from model output, never from operator-trusted code.
func checkColumn(column string) error {
	if !identPattern.MatchString(column) {
		return fmt.Errorf("invalid column name %q", column)
	}
	return nil
}
