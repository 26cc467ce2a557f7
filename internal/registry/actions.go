package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"opsdesk.app/console/common/llm"
	"opsdesk.app/console/internal/store"
)

const (
	defaultReadLimit   = 10
	searchLimit        = 20
	aggregateBalance   = "balance"
	defaultBalance     = "main_balance"
	reactivatedNote    = "Re-activated by console agent"
	autoTicketPrefix   = "Console auto-ticket"
	configUpdateBonus  = "update_bonus"
	configSetting      = "system_setting"
)

// Parameter structs. jsonschema tags become the catalog's parameter schemas.

type ReadTableParams struct {
	TableName string `json:"table_name" jsonschema:"required,description=Table to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Number of rows to fetch (default 10)"`
}

type SearchParams struct {
	TableName string `json:"table_name" jsonschema:"required,description=Table to search"`
	Column    string `json:"column" jsonschema:"required,description=Column to filter on"`
	Value     string `json:"value" jsonschema:"required,description=Exact value to match"`
}

type UserDetailsParams struct {
	Identifier string `json:"identifier" jsonschema:"required,description=Email or user ID"`
}

type UpdateRecordParams struct {
	TableName   string          `json:"table_name" jsonschema:"required"`
	IDColumn    string          `json:"id_column" jsonschema:"required,description=Column identifying the row"`
	IDValue     string          `json:"id_value" jsonschema:"required,description=Value identifying the row"`
	UpdatesJSON json.RawMessage `json:"updates_json" jsonschema:"required,description=JSON object (or JSON string) of fields to update"`
}

type InsertRecordParams struct {
	TableName string          `json:"table_name" jsonschema:"required"`
	DataJSON  json.RawMessage `json:"data_json" jsonschema:"required,description=JSON object (or JSON string) of the row to insert"`
}

type SuspendParams struct {
	Email  string `json:"email" jsonschema:"required"`
	Reason string `json:"reason" jsonschema:"required,description=Reason recorded on the account"`
}

type ActivateParams struct {
	Email string `json:"email" jsonschema:"required"`
}

type TicketParams struct {
	UserEmail        string `json:"user_email" jsonschema:"required"`
	IssueDescription string `json:"issue_description" jsonschema:"required"`
	Priority         string `json:"priority,omitempty" jsonschema:"description=Ticket priority (default normal)"`
}

type AdjustBalanceParams struct {
	UserEmail    string  `json:"user_email" jsonschema:"required"`
	Amount       float64 `json:"amount" jsonschema:"required,description=Positive to add and negative to deduct"`
	BalanceField string  `json:"balance_field,omitempty" jsonschema:"description=Wallet field to adjust (default main_balance)"`
}

type ConfigParams struct {
	Action string `json:"action" jsonschema:"required,description='update_bonus' for daily rewards or 'system_setting' for global config"`
	Key    string `json:"key" jsonschema:"required,description=Day number (for bonus) or column name (for setting)"`
	Value  string `json:"value" jsonschema:"required,description=New value"`
}

// Executors. Each parses its arguments defensively and converts every fault
// into a failure result; nothing propagates past the registry boundary.

func (r *Registry) readTable(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[ReadTableParams](arguments)
	if err != nil {
		return Failure("read_table: %v", err)
	}

	if !store.TableAllowed(params.TableName) {
		return Failure("invalid table %q. Options: %s", params.TableName, tableOptions())
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}

	rows, err := r.records.List(ctx, params.TableName, limit)
	if err != nil {
		return Failure("read_table: %v", err)
	}

	return ActionResult{
		Summary: fmt.Sprintf("Fetched %d rows from %s", len(rows), params.TableName),
		Rows:    rows,
		Card: &Card{
			Kind:     CardRecordList,
			Title:    params.TableName,
			Subtitle: "Recent Records",
			Rows:     rows,
		},
	}
}

func (r *Registry) searchDatabase(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[SearchParams](arguments)
	if err != nil {
		return Failure("search_database: %v", err)
	}

	rows, err := r.records.Find(ctx, params.TableName, params.Column, params.Value, searchLimit)
	if err != nil {
		return Failure("search_database: %v", err)
	}

	return ActionResult{
		Summary: fmt.Sprintf("Found %d matches in %s", len(rows), params.TableName),
		Rows:    rows,
		Card: &Card{
			Kind:     CardRecordList,
			Title:    "Search: " + params.TableName,
			Subtitle: fmt.Sprintf("%s = %s", params.Column, params.Value),
			Rows:     rows,
		},
	}
}

func (r *Registry) getUserDetails(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[UserDetailsParams](arguments)
	if err != nil {
		return Failure("get_user_details: %v", err)
	}

	profile, err := r.records.FindOne(ctx, "profiles", "email", params.Identifier)
	if err != nil {
		return Failure("get_user_details: %v", err)
	}
	if profile == nil {
		// Secondary lookup path: the identifier may be a user ID.
		profile, err = r.records.FindOne(ctx, "profiles", "id", params.Identifier)
		if err != nil {
			return Failure("get_user_details: %v", err)
		}
	}
	if profile == nil {
		return Failure("user not found")
	}

	wallet, err := r.records.FindOne(ctx, "wallets", "user_id", profile["id"])
	if err != nil {
		return Failure("get_user_details: %v", err)
	}
	if wallet == nil {
		// A missing wallet renders as an empty object, not a failure.
		wallet = store.Row{}
	}

	name, _ := profile["name"].(string)
	if name == "" {
		name = "User"
	}
	email, _ := profile["email"].(string)

	return ActionResult{
		Summary: fmt.Sprintf("Retrieved details for %s", name),
		Card: &Card{
			Kind:     CardEntityDetail,
			Title:    name,
			Subtitle: email,
			Profile:  profile,
			Wallet:   wallet,
		},
	}
}

func (r *Registry) updateRecord(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[UpdateRecordParams](arguments)
	if err != nil {
		return Failure("update_record: %v", err)
	}

	updates, err := decodeObject(params.UpdatesJSON)
	if err != nil {
		return Failure("update failed: %v", err)
	}

	rows, err := r.records.Update(ctx, params.TableName, params.IDColumn, params.IDValue, updates)
	if err != nil {
		return Failure("update failed: %v", err)
	}

	return ActionResult{Summary: "Update successful", Rows: rows}
}

func (r *Registry) insertRecord(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[InsertRecordParams](arguments)
	if err != nil {
		return Failure("insert_record: %v", err)
	}

	data, err := decodeObject(params.DataJSON)
	if err != nil {
		return Failure("insert failed: %v", err)
	}

	rows, err := r.records.Insert(ctx, params.TableName, data)
	if err != nil {
		return Failure("insert failed: %v", err)
	}

	return ActionResult{Summary: "Insert successful", Rows: rows}
}

func (r *Registry) suspendUser(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[SuspendParams](arguments)
	if err != nil {
		return Failure("suspend_user: %v", err)
	}

	user, err := r.records.FindOne(ctx, "profiles", "email", params.Email)
	if err != nil {
		return Failure("suspend_user: %v", err)
	}
	if user == nil {
		return Failure("user not found")
	}

	_, err = r.records.Update(ctx, "profiles", "id", user["id"], store.Row{
		"is_suspended":      true,
		"is_account_active": false,
		"admin_notes":       params.Reason,
	})
	if err != nil {
		return Failure("suspend_user: %v", err)
	}

	return ActionResult{Summary: fmt.Sprintf("User %s has been SUSPENDED. Reason: %s", params.Email, params.Reason)}
}

func (r *Registry) activateUser(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[ActivateParams](arguments)
	if err != nil {
		return Failure("activate_user: %v", err)
	}

	user, err := r.records.FindOne(ctx, "profiles", "email", params.Email)
	if err != nil {
		return Failure("activate_user: %v", err)
	}
	if user == nil {
		return Failure("user not found")
	}

	_, err = r.records.Update(ctx, "profiles", "id", user["id"], store.Row{
		"is_suspended":      false,
		"is_account_active": true,
		"admin_notes":       reactivatedNote,
	})
	if err != nil {
		return Failure("activate_user: %v", err)
	}

	return ActionResult{Summary: fmt.Sprintf("User %s has been REACTIVATED.", params.Email)}
}

func (r *Registry) createSupportTicket(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[TicketParams](arguments)
	if err != nil {
		return Failure("create_support_ticket: %v", err)
	}

	priority := params.Priority
	if priority == "" {
		priority = "normal"
	}

	_, err = r.records.Insert(ctx, "help_requests", store.Row{
		"email":          params.UserEmail,
		"message":        params.IssueDescription,
		"status":         "pending",
		"admin_response": fmt.Sprintf("%s: %s", autoTicketPrefix, priority),
	})
	if err != nil {
		return Failure("failed to create ticket: %v", err)
	}

	return ActionResult{Summary: fmt.Sprintf("Support ticket created for %s. Admin has been notified.", params.UserEmail)}
}

func (r *Registry) adjustBalance(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[AdjustBalanceParams](arguments)
	if err != nil {
		return Failure("admin_adjust_balance: %v", err)
	}

	field := params.BalanceField
	if field == "" {
		field = defaultBalance
	}

	user, err := r.records.FindOne(ctx, "profiles", "email", params.UserEmail)
	if err != nil {
		return Failure("admin_adjust_balance: %v", err)
	}
	if user == nil {
		return Failure("user not found")
	}

	wallet, err := r.records.FindOne(ctx, "wallets", "user_id", user["id"])
	if err != nil {
		return Failure("admin_adjust_balance: %v", err)
	}
	if wallet == nil {
		return Failure("wallet not found")
	}

	current := toFloat(wallet[field])
	updates := store.Row{field: current + params.Amount}

	// Sub-balance changes mirror into the aggregate so totals stay consistent.
	if field != aggregateBalance {
		updates[aggregateBalance] = toFloat(wallet[aggregateBalance]) + params.Amount
	}

	// Single update call: both fields persist atomically.
	if _, err := r.records.Update(ctx, "wallets", "user_id", user["id"], updates); err != nil {
		return Failure("admin_adjust_balance: %v", err)
	}

	return ActionResult{
		Summary: fmt.Sprintf("Balance adjusted by %v. New %s: %v", params.Amount, field, updates[field]),
	}
}

func (r *Registry) manageConfig(ctx context.Context, arguments string) ActionResult {
	params, err := llm.ParseToolArguments[ConfigParams](arguments)
	if err != nil {
		return Failure("manage_system_config: %v", err)
	}

	switch params.Action {
	case configUpdateBonus:
		day, err := strconv.Atoi(strings.TrimSpace(params.Key))
		if err != nil {
			return Failure("update_bonus: day must be a number, got %q", params.Key)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(params.Value), 64)
		if err != nil {
			return Failure("update_bonus: value must be a number, got %q", params.Value)
		}

		if _, err := r.records.Update(ctx, "daily_bonus_config", "day", day, store.Row{"reward_amount": amount}); err != nil {
			return Failure("update_bonus: %v", err)
		}
		return ActionResult{Summary: fmt.Sprintf("Updated day %d bonus to %s", day, params.Value)}

	case configSetting:
		value := coerceConfigValue(params.Value)

		// system_config holds one logical row; update all of it.
		if _, err := r.records.UpdateAll(ctx, "system_config", store.Row{params.Key: value}); err != nil {
			return Failure("system_setting: %v", err)
		}
		return ActionResult{Summary: fmt.Sprintf("System config %q set to %s", params.Key, params.Value)}

	default:
		return Failure("unknown config action %q", params.Action)
	}
}

// decodeObject accepts a JSON object, or a JSON string containing an object —
// models emit both shapes for the same parameter.
func decodeObject(raw json.RawMessage) (store.Row, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var obj store.Row
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
		return obj, nil
	}

	return nil, fmt.Errorf("payload must be a JSON object")
}

// coerceConfigValue applies the ordered coercion list for global settings:
// boolean literal, number, JSON structure, raw string fallback.
func coerceConfigValue(value string) any {
	trimmed := strings.TrimSpace(value)

	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}

	if trimmed != "" {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return n
		}
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		// Unparseable structure falls back to the raw string.
	}

	return value
}

// toFloat reads a numeric field that may arrive as any of the driver's
// numeric representations. Missing or non-numeric values count as zero.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
