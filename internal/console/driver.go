package console

import (
	"context"
	"log/slog"
	"time"

	"opsdesk.app/console/common/llm"
	"opsdesk.app/console/common/logger"
	"opsdesk.app/console/internal/display"
	"opsdesk.app/console/internal/registry"
)

const defaultMaxTurns = 5

// systemInstruction is fixed configuration: the agent's persona and behavioral
// rules. It is never computed.
const systemInstruction = `You are the operations console assistant.

IDENTITY:
- Role: Operator Assistant & Database Helper
- Tone: Friendly, Efficient, Professional.

CAPABILITIES:
1. **User Assistance**:
    - Help operators with account issues.
    - View and update profile details ('get_user_details', 'update_record').
2. **System Support**:
    - Assist with transactions and balances ('admin_adjust_balance' - usage requires confirmation).
    - Provide information on system configuration.
3. **Troubleshooting**:
    - If an operator reports a user issue, look up the details first ('get_user_details').
    - Try to fix it yourself (e.g., wrong name, stuck balance).
    - If it's a bug you can't fix, 'create_support_ticket'.

RULES:
- Always confirm actions before/after execution.
- Format output with Markdown.`

const exhaustedNotice = "I couldn't complete that request within the allowed number of steps. Please try again."

// ActionRegistry is the catalog surface the driver consumes.
type ActionRegistry interface {
	Definitions() []llm.Tool
	Execute(ctx context.Context, name, arguments string) registry.ActionResult
}

// Input is one operator turn: text plus an optional inline image.
type Input struct {
	Text     string
	ImageB64 string
}

// Outcome collects everything one exchange produced.
type Outcome struct {
	Messages []display.Message // ordered: user echo, errors/cards, final text
	State    ExchangeState
	Turns    int // completion-endpoint calls spent
}

// Driver orchestrates the bounded tool-calling loop: transcript to the
// completion endpoint, requested actions through the registry, results folded
// back as observations, until a plain answer or the turn budget ends it.
type Driver struct {
	client    llm.AgentClient
	actions   ActionRegistry
	maxTurns  int
	maxTokens int
}

func NewDriver(client llm.AgentClient, actions ActionRegistry, maxTurns, maxTokens int) *Driver {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Driver{
		client:    client,
		actions:   actions,
		maxTurns:  maxTurns,
		maxTokens: maxTokens,
	}
}

// RunExchange executes one full user-message-to-answer cycle. The transcript
// is rebuilt from the session's display history; cards and errors never enter
// the model-facing context. Execution is strictly sequential: no two endpoint
// calls or action executions are in flight at once.
func (d *Driver) RunExchange(ctx context.Context, history []display.Message, input Input) Outcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "console.driver"})
	start := time.Now()

	out := Outcome{State: StateAwaitingInput}
	out.Messages = append(out.Messages, display.UserMessage(input.Text, input.ImageB64 != ""))

	transcript := rebuildTranscript(history)
	transcript = append(transcript, llm.Message{
		Role:     "user",
		Content:  input.Text,
		ImageB64: input.ImageB64,
	})

	for out.Turns < d.maxTurns {
		out.Turns++
		out.State = StateCallingModel

		resp, err := d.client.ChatWithTools(ctx, llm.AgentRequest{
			Messages:  transcript,
			Tools:     d.actions.Definitions(),
			MaxTokens: d.maxTokens,
		})
		if err != nil {
			// Endpoint faults are fatal to the exchange: one connection-error
			// message, no retry.
			slog.ErrorContext(ctx, "completion endpoint failed",
				"turn", out.Turns,
				"error", err)
			out.Messages = append(out.Messages, display.ConnectionError(err.Error()))
			out.State = StateFailed
			return out
		}

		transcript = append(transcript, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			out.Messages = append(out.Messages, display.AssistantText(resp.Content))
			out.State = StateDone

			slog.InfoContext(ctx, "exchange completed",
				"turns", out.Turns,
				"duration_ms", time.Since(start).Milliseconds())
			return out
		}

		out.State = StateExecutingActions

		// Sequential, in request order. Later actions may be read by the model
		// alongside earlier ones, and the store gives no isolation across them.
		for _, call := range resp.ToolCalls {
			result := d.actions.Execute(ctx, call.Name, call.Arguments)

			if result.Failed() {
				out.Messages = append(out.Messages, display.ErrorMessage(call.Name, result.Err))
			}
			if card, ok := display.CardMessage(result); ok {
				out.Messages = append(out.Messages, card)
			}

			transcript = append(transcript, llm.Message{
				Role:       "tool",
				Content:    result.Serialize(),
				ToolCallID: call.ID,
			})
		}
	}

	// Budget spent while the model still wants actions. Surface it instead of
	// dropping the exchange silently.
	slog.WarnContext(ctx, "exchange exhausted turn budget", "turns", out.Turns)
	out.Messages = append(out.Messages, display.AssistantText(exhaustedNotice))
	out.State = StateExhausted
	return out
}

// rebuildTranscript derives the model-facing context from displayed history.
// Only text bubbles participate; cards and error annotations are display-only.
func rebuildTranscript(history []display.Message) []llm.Message {
	transcript := []llm.Message{
		{Role: "system", Content: systemInstruction},
	}

	for _, msg := range history {
		if msg.Kind != display.KindText {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		transcript = append(transcript, llm.Message{Role: role, Content: msg.Text})
	}

	return transcript
}
