// Package context implements the token-budget layer between the
// conversation store and the LLM providers: a heuristic token
// estimator, per-model context-window budgeting, and interchangeable
// history-truncation strategies that decide which messages are
// submitted when a conversation no longer fits.
//
// Everything in this package is pure and deterministic. Token counts
// are estimates, not tokenizer output — they only need to be
// self-consistent, since they drive relative budgeting decisions
// rather than billing.
package context
