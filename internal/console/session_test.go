package console_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdesk.app/console/common/id"
	"opsdesk.app/console/common/llm"
	"opsdesk.app/console/internal/console"
	"opsdesk.app/console/internal/display"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		client  *mockAgentClient
		actions *mockRegistry
		svc     *console.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockAgentClient{}
		actions = &mockRegistry{}
		driver := console.NewDriver(client, actions, 5, 1024)
		svc = console.NewService(driver, console.NewMemoryHistory())

		Expect(id.Init(1)).To(Succeed())
	})

	It("persists the exchange's messages into session history", func() {
		client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
			return &llm.AgentResponse{Content: "answer one"}, nil
		}

		out, err := svc.Send(ctx, "session-1", console.Input{Text: "question one"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Messages).To(HaveLen(2))

		history, err := svc.History(ctx, "session-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(2))
		Expect(history[0].Text).To(Equal("question one"))
		Expect(history[1].Text).To(Equal("answer one"))
	})

	It("feeds prior exchanges back into the next transcript", func() {
		client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
			return &llm.AgentResponse{Content: "reply"}, nil
		}

		_, err := svc.Send(ctx, "session-1", console.Input{Text: "first"})
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Send(ctx, "session-1", console.Input{Text: "second"})
		Expect(err).NotTo(HaveOccurred())

		second := client.calls[1]
		// system, first, reply, second
		Expect(second.Messages).To(HaveLen(4))
		Expect(second.Messages[1].Content).To(Equal("first"))
		Expect(second.Messages[2].Content).To(Equal("reply"))
		Expect(second.Messages[3].Content).To(Equal("second"))
	})

	It("keeps sessions isolated", func() {
		_, err := svc.Send(ctx, "session-a", console.Input{Text: "hello a"})
		Expect(err).NotTo(HaveOccurred())

		history, err := svc.History(ctx, "session-b")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(BeEmpty())
	})

	It("rejects a second message while an exchange is in flight", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
			close(started)
			<-release
			return &llm.AgentResponse{Content: "slow answer"}, nil
		}

		errs := make(chan error, 1)
		go func() {
			_, err := svc.Send(ctx, "session-1", console.Input{Text: "slow"})
			errs <- err
		}()

		Eventually(started).Should(BeClosed())

		_, err := svc.Send(ctx, "session-1", console.Input{Text: "impatient"})
		Expect(err).To(MatchError(console.ErrSessionBusy))

		close(release)
		Eventually(errs).Should(Receive(BeNil()))
	})

	It("allows concurrent exchanges on different sessions", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		client.chatFn = func(_ context.Context, _ llm.AgentRequest) (*llm.AgentResponse, error) {
			select {
			case <-started:
			default:
				close(started)
				<-release
			}
			return &llm.AgentResponse{Content: "done"}, nil
		}

		errs := make(chan error, 1)
		go func() {
			_, err := svc.Send(ctx, "session-a", console.Input{Text: "slow"})
			errs <- err
		}()
		Eventually(started).Should(BeClosed())

		_, err := svc.Send(ctx, "session-b", console.Input{Text: "other tenant"})
		Expect(err).NotTo(HaveOccurred())

		close(release)
		Eventually(errs).Should(Receive(BeNil()))
	})

	It("frees the session after the exchange completes", func() {
		_, err := svc.Send(ctx, "session-1", console.Input{Text: "one"})
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Send(ctx, "session-1", console.Input{Text: "two"})
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("MemoryHistory", func() {
	It("returns copies that do not alias internal state", func() {
		h := console.NewMemoryHistory()
		ctx := context.Background()

		Expect(id.Init(1)).To(Succeed())
		Expect(h.Append(ctx, "s", display.UserMessage("original", false))).To(Succeed())

		msgs, err := h.History(ctx, "s")
		Expect(err).NotTo(HaveOccurred())
		msgs[0].Text = "mutated"

		fresh, err := h.History(ctx, "s")
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh[0].Text).To(Equal("original"))
	})
})
