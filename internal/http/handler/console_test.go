package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdesk.app/console/internal/console"
	"opsdesk.app/console/internal/display"
	"opsdesk.app/console/internal/http/handler"
)

var _ = Describe("ConsoleHandler", func() {
	var (
		router *gin.Engine
		svc    *mockConsoleService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockConsoleService{}
		h := handler.NewConsoleHandler(svc)
		router.POST("/console/:session/messages", h.Send)
		router.GET("/console/:session/messages", h.History)
	})

	Describe("Send", func() {
		It("returns 200 with the exchange outcome", func() {
			svc.sendFn = func(_ context.Context, sessionID string, input console.Input) (console.Outcome, error) {
				Expect(sessionID).To(Equal("sess-1"))
				Expect(input.Text).To(Equal("show recent deposits"))
				return console.Outcome{
					State: console.StateDone,
					Turns: 2,
					Messages: []display.Message{
						{ID: 1, Role: "user", Kind: display.KindText, Text: "show recent deposits"},
						{ID: 2, Role: "assistant", Kind: display.KindText, Text: "Here they are."},
					},
				}, nil
			}

			body, _ := json.Marshal(map[string]string{"text": "show recent deposits"})
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["state"]).To(Equal("done"))
			Expect(resp["turns"]).To(BeEquivalentTo(2))
			Expect(resp["messages"]).To(HaveLen(2))
		})

		It("passes the optional image through", func() {
			var captured console.Input
			svc.sendFn = func(_ context.Context, _ string, input console.Input) (console.Outcome, error) {
				captured = input
				return console.Outcome{State: console.StateDone}, nil
			}

			body, _ := json.Marshal(map[string]string{"text": "what is this", "image_base64": "aW1n"})
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(captured.ImageB64).To(Equal("aW1n"))
		})

		It("returns 400 when text is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBufferString(`{"image_base64":"aW1n"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 on malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBufferString(`{`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 when the session is busy", func() {
			svc.sendFn = func(_ context.Context, _ string, _ console.Input) (console.Outcome, error) {
				return console.Outcome{}, console.ErrSessionBusy
			}

			body, _ := json.Marshal(map[string]string{"text": "hello"})
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("returns 500 when the service fails", func() {
			svc.sendFn = func(_ context.Context, _ string, _ console.Input) (console.Outcome, error) {
				return console.Outcome{}, errors.New("history backend down")
			}

			body, _ := json.Marshal(map[string]string{"text": "hello"})
			req := httptest.NewRequest(http.MethodPost, "/console/sess-1/messages", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("History", func() {
		It("returns the session's messages", func() {
			svc.historyFn = func(_ context.Context, sessionID string) ([]display.Message, error) {
				Expect(sessionID).To(Equal("sess-1"))
				return []display.Message{
					{ID: 1, Role: "user", Kind: display.KindText, Text: "hi"},
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/console/sess-1/messages", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["messages"]).To(HaveLen(1))
		})

		It("returns 500 when history cannot be loaded", func() {
			svc.historyFn = func(_ context.Context, _ string) ([]display.Message, error) {
				return nil, errors.New("redis down")
			}

			req := httptest.NewRequest(http.MethodGet, "/console/sess-1/messages", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
