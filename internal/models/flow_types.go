// Package models defines flow type definitions to avoid circular imports.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// QuestionState is the flow cursor: which scripted question is pending.
type QuestionState string

// Question states of the conversation flow. The set is closed.
const (
	QuestionNone    QuestionState = "none"
	QuestionName    QuestionState = "name"
	QuestionFeeling QuestionState = "feeling"
)

// ErrUnknownQuestionState is returned when a persisted cursor holds an unsupported value.
var ErrUnknownQuestionState = errors.New("unknown question state")

// ParseQuestionState converts a stored string into a QuestionState.
// The empty string maps to QuestionNone.
func ParseQuestionState(s string) (QuestionState, error) {
	switch QuestionState(s) {
	case "", QuestionNone:
		return QuestionNone, nil
	case QuestionName:
		return QuestionName, nil
	case QuestionFeeling:
		return QuestionFeeling, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQuestionState, s)
	}
}

// UnmarshalJSON rejects cursor values outside the closed set.
func (q *QuestionState) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseQuestionState(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Scope names a persistence namespace for state.
type Scope string

const (
	ScopeUser         Scope = "user"
	ScopeConversation Scope = "conversation"
)

// Property names used in state scopes.
const (
	PropertyFlow     = "flow"
	PropertyProfile  = "profile"
	PropertyWelcomed = "welcomed"
)
