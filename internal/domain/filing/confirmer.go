package filing

import "context"

// Prompt is shown before a save proceeds past validation.
type Prompt struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Documents int    `json:"documents"`
	Accept    string `json:"accept"`
	Decline   string `json:"decline"`
}

// Confirmer answers the close-and-save prompt. Returning false declines.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// Answer is a Confirmer with a fixed answer, used when the presentation layer
// has already asked the operator.
type Answer bool

func (a Answer) Confirm(context.Context, Prompt) (bool, error) {
	return bool(a), nil
}
