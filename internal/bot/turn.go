package bot

import (
	"context"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// BufferedTurn collects replies in memory for request/response entry points.
type BufferedTurn struct {
	activity models.Activity
	Replies  []string
}

// NewBufferedTurn wraps an activity.
func NewBufferedTurn(a models.Activity) *BufferedTurn {
	return &BufferedTurn{activity: a}
}

func (t *BufferedTurn) Activity() models.Activity { return t.activity }

func (t *BufferedTurn) SendActivity(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Replies = append(t.Replies, text)
	return nil
}

// Run handles a single activity and returns the replies it produced.
func (b *Bot) Run(ctx context.Context, a models.Activity) (models.TurnResult, error) {
	turn := NewBufferedTurn(a)
	err := b.HandleTurn(ctx, turn)
	return models.TurnResult{ConversationID: a.Conversation.ID, Replies: turn.Replies}, err
}
