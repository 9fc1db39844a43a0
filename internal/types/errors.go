package types

import (
	"fmt"
	"strings"
)

// FetchError means remote market data was unavailable or malformed. Fetches
// are retried a bounded number of times, then the symbol is skipped for the
// cycle.
type FetchError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError means a pre-trade check failed. It is never retried and the
// brokerage is never contacted.
type ValidationError struct {
	Symbol  string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order for %s rejected: %s", e.Symbol, strings.Join(e.Reasons, "; "))
}

// ExecutionError means the brokerage rejected or failed to acknowledge an
// order. Position state must be re-queried before any further action on the
// symbol.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute order for %s: %v", e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConfigError means credentials are missing or parameters invalid. Fatal at
// startup; the controller never enters running.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}
