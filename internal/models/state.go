// Package models defines state management structures for MoodPipe flows.
package models

import (
	"encoding/json"
	"time"
)

// ConversationFlow is the per-conversation flow record.
type ConversationFlow struct {
	LastQuestionAsked QuestionState `json:"lastQuestionAsked"`
}

// InProgress reports whether a scripted question is awaiting an answer.
func (f ConversationFlow) InProgress() bool {
	return f.LastQuestionAsked != QuestionNone && f.LastQuestionAsked != ""
}

// UserProfile is the per-user profile record.
type UserProfile struct {
	Name string `json:"name,omitempty"`
}

// StateRecord is the stored form of one scope: a flat bag of JSON properties.
type StateRecord struct {
	Scope      Scope                      `json:"scope"`
	Key        string                     `json:"key"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}
