package console_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdesk.app/console/common/id"
	"opsdesk.app/console/common/llm"
	"opsdesk.app/console/internal/console"
	"opsdesk.app/console/internal/display"
	"opsdesk.app/console/internal/registry"
)

var _ = Describe("Driver", func() {
	var (
		ctx     context.Context
		client  *mockAgentClient
		actions *mockRegistry
		driver  *console.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockAgentClient{}
		actions = &mockRegistry{}
		driver = console.NewDriver(client, actions, 5, 1024)

		Expect(id.Init(1)).To(Succeed())
	})

	Describe("plain answers", func() {
		It("finishes in one turn with a user echo and an assistant bubble", func() {
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				return &llm.AgentResponse{Content: "Hello, operator.", FinishReason: "stop"}, nil
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "hi"})

			Expect(out.State).To(Equal(console.StateDone))
			Expect(out.Turns).To(Equal(1))
			Expect(out.Messages).To(HaveLen(2))
			Expect(out.Messages[0].Role).To(Equal("user"))
			Expect(out.Messages[0].Text).To(Equal("hi"))
			Expect(out.Messages[1].Role).To(Equal("assistant"))
			Expect(out.Messages[1].Text).To(Equal("Hello, operator."))
		})

		It("sends the system instruction first and offers the full catalog", func() {
			actions.defs = []llm.Tool{{Name: "read_table"}, {Name: "suspend_user"}}

			driver.RunExchange(ctx, nil, console.Input{Text: "hi"})

			Expect(client.calls).To(HaveLen(1))
			req := client.calls[0]
			Expect(req.Messages[0].Role).To(Equal("system"))
			Expect(req.Messages[1].Role).To(Equal("user"))
			Expect(req.Tools).To(HaveLen(2))
			Expect(req.MaxTokens).To(Equal(1024))
		})

		It("rebuilds the transcript from text history only", func() {
			history := []display.Message{
				{Role: "user", Kind: display.KindText, Text: "earlier question"},
				{Role: "assistant", Kind: display.KindCard},
				{Role: "assistant", Kind: display.KindError, Text: "Action failed (x): y"},
				{Role: "assistant", Kind: display.KindText, Text: "earlier answer"},
			}

			driver.RunExchange(ctx, history, console.Input{Text: "follow-up"})

			req := client.calls[0]
			// system + 2 surviving history bubbles + new input
			Expect(req.Messages).To(HaveLen(4))
			Expect(req.Messages[1].Content).To(Equal("earlier question"))
			Expect(req.Messages[2].Role).To(Equal("assistant"))
			Expect(req.Messages[2].Content).To(Equal("earlier answer"))
			Expect(req.Messages[3].Content).To(Equal("follow-up"))
		})

		It("forwards the operator's image on the new user turn", func() {
			driver.RunExchange(ctx, nil, console.Input{Text: "what is this", ImageB64: "aW1n"})

			req := client.calls[0]
			Expect(req.Messages[1].ImageB64).To(Equal("aW1n"))

			out := driver.RunExchange(ctx, nil, console.Input{Text: "what is this", ImageB64: "aW1n"})
			Expect(out.Messages[0].HasImage).To(BeTrue())
		})
	})

	Describe("action rounds", func() {
		It("executes requested actions in order and folds results back", func() {
			turn := 0
			client.chatFn = func(_ context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
				turn++
				if turn == 1 {
					return &llm.AgentResponse{
						FinishReason: "tool_calls",
						ToolCalls: []llm.ToolCall{
							{ID: "call_a", Name: "read_table", Arguments: `{"table_name":"profiles"}`},
							{ID: "call_b", Name: "get_user_details", Arguments: `{"identifier":"u1"}`},
						},
					}, nil
				}
				return &llm.AgentResponse{Content: "Here is what I found.", FinishReason: "stop"}, nil
			}
			actions.executeFn = func(_ context.Context, name, _ string) registry.ActionResult {
				return registry.ActionResult{Summary: "ran " + name}
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "look up u1"})

			Expect(out.State).To(Equal(console.StateDone))
			Expect(out.Turns).To(Equal(2))
			Expect(actions.executed).To(Equal([]string{"read_table", "get_user_details"}))

			// Second call sees the assistant's request then one observation per call,
			// correlated by ID, in request order.
			second := client.calls[1]
			n := len(second.Messages)
			Expect(second.Messages[n-3].Role).To(Equal("assistant"))
			Expect(second.Messages[n-3].ToolCalls).To(HaveLen(2))
			Expect(second.Messages[n-2].Role).To(Equal("tool"))
			Expect(second.Messages[n-2].ToolCallID).To(Equal("call_a"))
			Expect(second.Messages[n-2].Content).To(ContainSubstring("ran read_table"))
			Expect(second.Messages[n-1].ToolCallID).To(Equal("call_b"))
		})

		It("emits a card message for card-bearing results", func() {
			turn := 0
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				turn++
				if turn == 1 {
					return &llm.AgentResponse{
						ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read_table", Arguments: `{}`}},
					}, nil
				}
				return &llm.AgentResponse{Content: "done"}, nil
			}
			actions.executeFn = func(_ context.Context, _, _ string) registry.ActionResult {
				return registry.ActionResult{
					Summary: "Fetched 1 rows",
					Card:    &registry.Card{Kind: registry.CardRecordList, Title: "profiles"},
				}
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "show profiles"})

			Expect(out.Messages).To(HaveLen(3)) // user, card, assistant
			Expect(out.Messages[1].Kind).To(Equal(display.KindCard))
			Expect(out.Messages[1].Card.Title).To(Equal("profiles"))
			Expect(out.Messages[2].Kind).To(Equal(display.KindText))
		})

		It("surfaces action failures inline and keeps the exchange going", func() {
			turn := 0
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				turn++
				if turn == 1 {
					return &llm.AgentResponse{
						ToolCalls: []llm.ToolCall{{ID: "c1", Name: "suspend_user", Arguments: `{}`}},
					}, nil
				}
				return &llm.AgentResponse{Content: "That user does not exist."}, nil
			}
			actions.executeFn = func(_ context.Context, _, _ string) registry.ActionResult {
				return registry.Failure("user not found")
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "suspend ghost"})

			Expect(out.State).To(Equal(console.StateDone))
			Expect(out.Messages).To(HaveLen(3))
			Expect(out.Messages[1].Kind).To(Equal(display.KindError))
			Expect(out.Messages[1].Text).To(ContainSubstring("suspend_user"))
			Expect(out.Messages[1].Text).To(ContainSubstring("user not found"))

			// The model still receives the failure as an observation.
			second := client.calls[1]
			last := second.Messages[len(second.Messages)-1]
			Expect(last.Role).To(Equal("tool"))
			Expect(last.Content).To(ContainSubstring("user not found"))
		})
	})

	Describe("endpoint failures", func() {
		It("stops after one connection error without retrying", func() {
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				return nil, errors.New("dial tcp: connection refused")
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "hi"})

			Expect(out.State).To(Equal(console.StateFailed))
			Expect(client.calls).To(HaveLen(1))
			Expect(out.Messages).To(HaveLen(2))
			Expect(out.Messages[1].Kind).To(Equal(display.KindError))
			Expect(out.Messages[1].Text).To(HavePrefix("Connection error:"))
		})
	})

	Describe("turn budget", func() {
		It("stops after the cap and tells the operator", func() {
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				// The model never settles on a plain answer.
				return &llm.AgentResponse{
					ToolCalls: []llm.ToolCall{{ID: "c", Name: "read_table", Arguments: `{}`}},
				}, nil
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "loop forever"})

			Expect(out.State).To(Equal(console.StateExhausted))
			Expect(out.Turns).To(Equal(5))
			Expect(client.calls).To(HaveLen(5))

			last := out.Messages[len(out.Messages)-1]
			Expect(last.Kind).To(Equal(display.KindText))
			Expect(last.Text).To(ContainSubstring("couldn't complete"))
		})

		It("honors a custom cap", func() {
			driver = console.NewDriver(client, actions, 2, 1024)
			client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
				return &llm.AgentResponse{
					ToolCalls: []llm.ToolCall{{ID: "c", Name: "read_table", Arguments: `{}`}},
				}, nil
			}

			out := driver.RunExchange(ctx, nil, console.Input{Text: "go"})

			Expect(out.Turns).To(Equal(2))
			Expect(out.State).To(Equal(console.StateExhausted))
		})
	})
})
