package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsdesk.app/console/common/llm"
	"opsdesk.app/console/common/logger"
	"opsdesk.app/console/internal/store"
)

// CardKind tags an ActionResult with the card shape it renders as.
// Values are the wire names the operator surface consumes.
type CardKind string

const (
	CardRecordList   CardKind = "table_view"
	CardEntityDetail CardKind = "user_profile"
	CardEditForm     CardKind = "edit_profile_form"
)

// Card is a renderable summary of an action's outcome.
type Card struct {
	Kind     CardKind    `json:"kind"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	Rows     []store.Row `json:"rows,omitempty"`    // record-list cards
	Profile  store.Row   `json:"profile,omitempty"` // entity-detail cards
	Wallet   store.Row   `json:"wallet,omitempty"`  // entity-detail cards
}

// ActionResult is the immutable outcome of one action execution: either a
// success payload (summary, optional rows, optional card) or a failure message.
type ActionResult struct {
	Summary string
	Rows    []store.Row
	Card    *Card
	Err     string
}

func (r ActionResult) Failed() bool {
	return r.Err != ""
}

// Failure builds a failure result.
func Failure(format string, args ...any) ActionResult {
	return ActionResult{Err: fmt.Sprintf(format, args...)}
}

// Serialize renders the result as the JSON observation fed back to the model.
func (r ActionResult) Serialize() string {
	payload := make(map[string]any, 2)
	if r.Failed() {
		payload["error"] = r.Err
	} else {
		payload["result"] = r.Summary
		if len(r.Rows) > 0 {
			payload["data"] = r.Rows
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return `{"error":"result serialization failed"}`
	}
	return string(data)
}

type executorFunc func(ctx context.Context, arguments string) ActionResult

type catalogEntry struct {
	tool    llm.Tool
	execute executorFunc
}

// Registry is the closed catalog of operations the model may request.
// Built once at startup; no runtime mutation.
type Registry struct {
	records store.RecordStore
	entries map[string]catalogEntry
	defs    []llm.Tool
}

// New builds the catalog over the given record store.
func New(records store.RecordStore) *Registry {
	r := &Registry{
		records: records,
		entries: make(map[string]catalogEntry),
	}

	r.register(llm.Tool{
		Name:        "read_table",
		Description: "Read rows from a database table.",
		Parameters:  llm.GenerateSchemaFrom(ReadTableParams{}),
	}, r.readTable)

	r.register(llm.Tool{
		Name:        "search_database",
		Description: "Search for records in a specific table.",
		Parameters:  llm.GenerateSchemaFrom(SearchParams{}),
	}, r.searchDatabase)

	r.register(llm.Tool{
		Name:        "get_user_details",
		Description: "Get full user profile and wallet information.",
		Parameters:  llm.GenerateSchemaFrom(UserDetailsParams{}),
	}, r.getUserDetails)

	r.register(llm.Tool{
		Name:        "update_record",
		Description: "Update a database row directly.",
		Parameters:  llm.GenerateSchemaFrom(UpdateRecordParams{}),
	}, r.updateRecord)

	r.register(llm.Tool{
		Name:        "insert_record",
		Description: "Insert a new database row.",
		Parameters:  llm.GenerateSchemaFrom(InsertRecordParams{}),
	}, r.insertRecord)

	r.register(llm.Tool{
		Name:        "suspend_user",
		Description: "Suspend/Block a user account instantly.",
		Parameters:  llm.GenerateSchemaFrom(SuspendParams{}),
	}, r.suspendUser)

	r.register(llm.Tool{
		Name:        "activate_user",
		Description: "Unsuspend/Activate a user account.",
		Parameters:  llm.GenerateSchemaFrom(ActivateParams{}),
	}, r.activateUser)

	r.register(llm.Tool{
		Name:        "create_support_ticket",
		Description: "Create a formal help request/ticket for complex issues.",
		Parameters:  llm.GenerateSchemaFrom(TicketParams{}),
	}, r.createSupportTicket)

	r.register(llm.Tool{
		Name:        "admin_adjust_balance",
		Description: "Add or remove funds from a user's wallet.",
		Parameters:  llm.GenerateSchemaFrom(AdjustBalanceParams{}),
	}, r.adjustBalance)

	r.register(llm.Tool{
		Name:        "manage_system_config",
		Description: "Manage system settings or daily rewards.",
		Parameters:  llm.GenerateSchemaFrom(ConfigParams{}),
	}, r.manageConfig)

	return r
}

func (r *Registry) register(tool llm.Tool, exec executorFunc) {
	r.entries[tool.Name] = catalogEntry{tool: tool, execute: exec}
	r.defs = append(r.defs, tool)
}

// Definitions returns the catalog in registration order, for the completion request.
func (r *Registry) Definitions() []llm.Tool {
	return r.defs
}

// Execute dispatches to the named operation. It never lets a fault escape:
// unknown names, executor errors and panics all come back as failure results.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (result ActionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "action panicked", "action", name, "panic", rec)
			result = Failure("action %q failed: %v", name, rec)
		}
	}()

	entry, ok := r.entries[name]
	if !ok {
		return Failure("unknown action %q", name)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Action: &name})

	start := time.Now()
	result = entry.execute(ctx, arguments)

	if result.Failed() {
		slog.WarnContext(ctx, "action failed",
			"error", result.Err,
			"latency_ms", time.Since(start).Milliseconds())
	} else {
		slog.DebugContext(ctx, "action completed",
			"summary", logger.Truncate(result.Summary, 120),
			"rows", len(result.Rows),
			"latency_ms", time.Since(start).Milliseconds())
	}

	return result
}

// tableOptions renders the allow-list for validation errors, so the model can
// correct itself on the next turn.
func tableOptions() string {
	return strings.Join(store.AllowedTables, ", ")
}
