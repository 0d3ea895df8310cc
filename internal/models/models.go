// Package models defines the core data structures for MoodPipe.
//
// It includes the channel-neutral activity shape exchanged with channel adapters,
// the persisted conversation/user state records, and the API response envelopes.
package models

import (
	"errors"
	"strings"
	"time"
)

// ActivityType classifies an incoming activity.
type ActivityType string

const (
	// ActivityTypeMessage is a user message carrying free text.
	ActivityTypeMessage ActivityType = "message"
	// ActivityTypeConversationUpdate signals membership changes in a conversation.
	ActivityTypeConversationUpdate ActivityType = "conversationUpdate"
	// ActivityTypeTyping is emitted by some channels while a user types.
	ActivityTypeTyping ActivityType = "typing"
)

// Validation constants for inbound activities
const (
	// MaxActivityTextLength defines the maximum accepted length for message text
	MaxActivityTextLength = 4096
	// MaxMembersAdded defines the maximum number of members accepted in a single update
	MaxMembersAdded = 256
)

// Error variables for activity validation
var (
	ErrMissingActivityType   = errors.New("activity type is required")
	ErrMissingChannelID      = errors.New("channel id is required")
	ErrMissingConversationID = errors.New("conversation id is required")
	ErrMissingSender         = errors.New("sender id is required for message activities")
	ErrActivityTextTooLong   = errors.New("activity text exceeds maximum length")
	ErrTooManyMembers        = errors.New("too many members in conversation update")
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID      string `json:"id"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is a single event delivered by a channel adapter.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         ActivityType        `json:"type"`
	ChannelID    string              `json:"channelId"`
	Conversation ConversationAccount `json:"conversation"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Text         string              `json:"text,omitempty"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitempty"`
}

// IsMessage reports whether the activity is a user message.
func (a Activity) IsMessage() bool {
	return a.Type == ActivityTypeMessage
}

// IsConversationUpdate reports whether the activity signals membership changes.
func (a Activity) IsConversationUpdate() bool {
	return a.Type == ActivityTypeConversationUpdate
}

// Validate checks that the activity carries the fields needed to address state and replies.
func (a Activity) Validate() error {
	if strings.TrimSpace(string(a.Type)) == "" {
		return ErrMissingActivityType
	}
	if strings.TrimSpace(a.ChannelID) == "" {
		return ErrMissingChannelID
	}
	if strings.TrimSpace(a.Conversation.ID) == "" {
		return ErrMissingConversationID
	}
	if a.IsMessage() && strings.TrimSpace(a.From.ID) == "" {
		return ErrMissingSender
	}
	if len(a.Text) > MaxActivityTextLength {
		return ErrActivityTextTooLong
	}
	if len(a.MembersAdded) > MaxMembersAdded {
		return ErrTooManyMembers
	}
	return nil
}

// Direction tells whether a transcript entry was received or sent by the bot.
type Direction string

const (
	// DirectionInbound marks an activity received from a channel.
	DirectionInbound Direction = "in"
	// DirectionOutbound marks a reply sent by the bot.
	DirectionOutbound Direction = "out"
)

// TranscriptEntry records one inbound activity or outbound reply.
type TranscriptEntry struct {
	ConversationKey string       `json:"conversation_key"`
	ActivityID      string       `json:"activity_id,omitempty"`
	Direction       Direction    `json:"direction"`
	ActivityType    ActivityType `json:"activity_type"`
	FromID          string       `json:"from_id,omitempty"`
	Text            string       `json:"text,omitempty"`
	Time            int64        `json:"time"`
}

// API Response types for consistent JSON responses

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// TurnResult is the payload returned by synchronous channels (HTTP, Lambda, console).
type TurnResult struct {
	ConversationID string   `json:"conversation_id"`
	Replies        []string `json:"replies"`
}
