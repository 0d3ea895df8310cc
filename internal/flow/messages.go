// filepath: internal/flow/messages.go
package flow

import "fmt"

// Messages is the reply catalogue used by the engine and the dispatcher.
type Messages struct {
	AskName     string
	Acknowledge string // formatted with the user's name
	AskFeeling  string
	Concern     string
	Mild        string
	Moderate    string
	Positive    string // formatted with the user's name
	Greeting    string
}

// DefaultMessages returns the built-in catalogue.
func DefaultMessages() Messages {
	return Messages{
		AskName:     "Hello! What is your name?",
		Acknowledge: "Nice to meet you %s.",
		AskFeeling:  "How are you feeling today?",
		Concern:     "I'm sorry you are feeling this way. Please consider talking to someone you trust.",
		Mild:        "I hope things get better for you soon. Hang in there!",
		Moderate:    "Sounds like an okay day. I hope it only gets better from here!",
		Positive:    "Good to hear that you are doing well %s!",
		Greeting:    "Welcome to MoodPipe! Say anything to get started.",
	}
}

// withDefaults fills empty entries from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.AskName, d.AskName)
	fill(&m.Acknowledge, d.Acknowledge)
	fill(&m.AskFeeling, d.AskFeeling)
	fill(&m.Concern, d.Concern)
	fill(&m.Mild, d.Mild)
	fill(&m.Moderate, d.Moderate)
	fill(&m.Positive, d.Positive)
	fill(&m.Greeting, d.Greeting)
	return m
}

// Reply returns the closing message for a sentiment bucket.
func (m Messages) Reply(b Bucket, name string) string {
	switch b {
	case BucketConcern:
		return m.Concern
	case BucketMild:
		return m.Mild
	case BucketModerate:
		return m.Moderate
	default:
		return fmt.Sprintf(m.Positive, name)
	}
}
