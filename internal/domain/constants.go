package domain

import (
	"fmt"
	"strings"
)

// Strategy selects how a transfer acquires and mutates account rows.
type Strategy string

const (
	StrategyPessimistic Strategy = "pessimistic"
	StrategyOptimistic  Strategy = "optimistic"
)

const (
	TransferStatusPending   = "PENDING"
	TransferStatusCompleted = "COMPLETED"
	TransferStatusFailed    = "FAILED"

	DefaultCurrency = "USD"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyPessimistic || s == StrategyOptimistic
}

func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy resolves a case-insensitive strategy name. An empty name
// resolves to fallback.
func ParseStrategy(name string, fallback Strategy) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fallback, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
	return s, nil
}
