package display

import (
	"fmt"
	"time"

	"opsdesk.app/console/common/id"
	"opsdesk.app/console/internal/registry"
	"opsdesk.app/console/internal/store"
)

// Kind classifies an operator-facing message.
type Kind string

const (
	KindText  Kind = "text"
	KindCard  Kind = "card"
	KindError Kind = "error"
)

const (
	// charLimit is the bubble length beyond which text is truncated for
	// preview. Truncation is display-only; Text always holds the full content.
	charLimit = 280

	// previewRows is how many rows a record-list card shows inline.
	previewRows = 3
)

// Message is the UI-facing projection of one conversation event: a user turn,
// a final assistant text, a surfaced error, or a card. It is derived from the
// model-facing transcript, never part of it.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	HasImage  bool      `json:"has_image,omitempty"`
	Card      *Card     `json:"card,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Card is the renderable projection of an ActionResult card descriptor.
type Card struct {
	Kind     string      `json:"kind"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	Rows     []store.Row `json:"rows,omitempty"`      // inline preview, at most previewRows
	MoreRows int         `json:"more_rows,omitempty"` // rows beyond the inline preview
	Profile  store.Row   `json:"profile,omitempty"`
	Wallet   store.Row   `json:"wallet,omitempty"`
	Active   bool        `json:"active,omitempty"`
	// Balance figures with missing numerics shown as zero. Display values
	// only; storage is untouched.
	MainBalance  float64 `json:"main_balance"`
	Withdrawable float64 `json:"withdrawable"`
}

// Snippet returns the preview text and whether it was truncated.
func (m Message) Snippet() (string, bool) {
	if len(m.Text) <= charLimit {
		return m.Text, false
	}
	return m.Text[:charLimit], true
}

// UserMessage projects the operator's input.
func UserMessage(text string, hasImage bool) Message {
	return Message{
		ID:        id.New(),
		Role:      "user",
		Kind:      KindText,
		Text:      text,
		HasImage:  hasImage,
		CreatedAt: time.Now(),
	}
}

// AssistantText projects a final assistant answer.
func AssistantText(text string) Message {
	return Message{
		ID:        id.New(),
		Role:      "assistant",
		Kind:      KindText,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// ErrorMessage projects an action failure as an inline error annotation.
func ErrorMessage(action, errText string) Message {
	return Message{
		ID:        id.New(),
		Role:      "assistant",
		Kind:      KindError,
		Text:      fmt.Sprintf("Action failed (%s): %s", action, errText),
		CreatedAt: time.Now(),
	}
}

// ConnectionError projects a completion-endpoint failure.
func ConnectionError(errText string) Message {
	return Message{
		ID:        id.New(),
		Role:      "assistant",
		Kind:      KindError,
		Text:      "Connection error: " + errText,
		CreatedAt: time.Now(),
	}
}

// CardMessage maps an ActionResult to at most one card message. The second
// return is false when the result carries no recognized card descriptor.
func CardMessage(result registry.ActionResult) (Message, bool) {
	card := result.Card
	if card == nil {
		return Message{}, false
	}

	var projected *Card
	switch card.Kind {
	case registry.CardRecordList:
		projected = recordListCard(card)
	case registry.CardEntityDetail:
		projected = entityDetailCard(card)
	case registry.CardEditForm:
		projected = &Card{Kind: string(card.Kind), Title: card.Title, Subtitle: card.Subtitle}
	default:
		return Message{}, false
	}

	return Message{
		ID:        id.New(),
		Role:      "assistant",
		Kind:      KindCard,
		Card:      projected,
		CreatedAt: time.Now(),
	}, true
}

func recordListCard(card *registry.Card) *Card {
	rows := card.Rows
	more := 0
	if len(rows) > previewRows {
		more = len(rows) - previewRows
		rows = rows[:previewRows]
	}

	return &Card{
		Kind:     string(card.Kind),
		Title:    card.Title,
		Subtitle: card.Subtitle,
		Rows:     rows,
		MoreRows: more,
	}
}

func entityDetailCard(card *registry.Card) *Card {
	active, _ := card.Profile["is_account_active"].(bool)

	return &Card{
		Kind:         string(card.Kind),
		Title:        card.Title,
		Subtitle:     card.Subtitle,
		Profile:      card.Profile,
		Wallet:       card.Wallet,
		Active:       active,
		MainBalance:  numericField(card.Wallet, "main_balance"),
		Withdrawable: numericField(card.Wallet, "withdrawable"),
	}
}

func numericField(row store.Row, key string) float64 {
	if row == nil {
		return 0
	}
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
