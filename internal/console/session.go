package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"opsdesk.app/console/internal/display"
)

// ErrSessionBusy is returned when a message arrives for a session whose
// exchange is still executing. The caller should surface a busy signal rather
// than queue silently.
var ErrSessionBusy = errors.New("session has an exchange in flight")

// HistoryStore keeps per-session display history so each exchange can rebuild
// its transcript from what the operator has seen.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) ([]display.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...display.Message) error
}

// MemoryHistory is the in-process HistoryStore used when Redis is not configured.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]display.Message
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{sessions: make(map[string][]display.Message)}
}

func (h *MemoryHistory) History(ctx context.Context, sessionID string) ([]display.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.sessions[sessionID]
	out := make([]display.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Append(ctx context.Context, sessionID string, msgs ...display.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = append(h.sessions[sessionID], msgs...)
	return nil
}

// RedisHistory stores display history in Redis lists with a TTL, so history
// survives instance restarts while staying ephemeral.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHistory(client *redis.Client, ttl time.Duration) *RedisHistory {
	return &RedisHistory{client: client, ttl: ttl}
}

func historyKey(sessionID string) string {
	return "console:history:" + sessionID
}

func (h *RedisHistory) History(ctx context.Context, sessionID string) ([]display.Message, error) {
	entries, err := h.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session history: %w", err)
	}

	msgs := make([]display.Message, 0, len(entries))
	for _, entry := range entries {
		var msg display.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (h *RedisHistory) Append(ctx context.Context, sessionID string, msgs ...display.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	key := historyKey(sessionID)
	values := make([]any, len(msgs))
	for i, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding history entry: %w", err)
		}
		values[i] = data
	}

	pipe := h.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending session history: %w", err)
	}
	return nil
}

// Service fronts the driver with session bookkeeping: history storage and the
// one-exchange-at-a-time guard.
type Service struct {
	driver  *Driver
	history HistoryStore

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewService(driver *Driver, history HistoryStore) *Service {
	return &Service{
		driver:   driver,
		history:  history,
		inFlight: make(map[string]bool),
	}
}

// Send runs one exchange for the session. A second message while an exchange
// is in flight is rejected with ErrSessionBusy.
func (s *Service) Send(ctx context.Context, sessionID string, input Input) (Outcome, error) {
	if !s.acquire(sessionID) {
		return Outcome{}, ErrSessionBusy
	}
	defer s.release(sessionID)

	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading session history: %w", err)
	}

	out := s.driver.RunExchange(ctx, history, input)

	if err := s.history.Append(ctx, sessionID, out.Messages...); err != nil {
		return Outcome{}, fmt.Errorf("saving session history: %w", err)
	}

	return out, nil
}

// History returns everything displayed so far in the session.
func (s *Service) History(ctx context.Context, sessionID string) ([]display.Message, error) {
	return s.history.History(ctx, sessionID)
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[sessionID] {
		return false
	}
	s.inFlight[sessionID] = true
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}
