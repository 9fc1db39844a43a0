package interfaces

import "context"

// SentimentProvider returns a bounded sentiment score in [-1, 1] for a symbol.
// A nil score with nil error means "no sentiment input" and must be treated as
// absence, not failure.
type SentimentProvider interface {
	Score(ctx context.Context, symbol string) (*float64, error)
}
