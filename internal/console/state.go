package console

// ExchangeState makes the exchange loop's phases explicit. Transitions:
//
//	AwaitingInput -> CallingModel
//	CallingModel  -> ExecutingActions (response carries tool calls)
//	CallingModel  -> Done             (response is plain text)
//	CallingModel  -> Failed           (endpoint fault)
//	ExecutingActions -> CallingModel  (results folded back, budget permitting)
//	ExecutingActions -> Exhausted     (turn budget spent)
type ExchangeState int

const (
	StateAwaitingInput ExchangeState = iota
	StateCallingModel
	StateExecutingActions
	StateDone
	StateExhausted
	StateFailed
)

func (s ExchangeState) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateCallingModel:
		return "calling_model"
	case StateExecutingActions:
		return "executing_actions"
	case StateDone:
		return "done"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the exchange has ended.
func (s ExchangeState) Terminal() bool {
	return s == StateDone || s == StateExhausted || s == StateFailed
}
