package handler_test

import (
	"context"

	"opsdesk.app/console/internal/console"
	"opsdesk.app/console/internal/display"
)

type mockConsoleService struct {
	sendFn    func(ctx context.Context, sessionID string, input console.Input) (console.Outcome, error)
	historyFn func(ctx context.Context, sessionID string) ([]display.Message, error)
}

func (m *mockConsoleService) Send(ctx context.Context, sessionID string, input console.Input) (console.Outcome, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, sessionID, input)
	}
	return console.Outcome{}, nil
}

func (m *mockConsoleService) History(ctx context.Context, sessionID string) ([]display.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, sessionID)
	}
	return nil, nil
}
