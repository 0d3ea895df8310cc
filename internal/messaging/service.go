// Package messaging connects chat channels to the turn handler.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Constants for channel services
const (
	// DefaultChannelBufferSize defines the default buffer size for activity channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable chat channel.
type Service interface {
	// Name is the channel identifier stamped on activities (e.g. "whatsapp").
	Name() string

	// SendMessage sends a reply into a conversation.
	SendMessage(ctx context.Context, conversationID string, body string) error

	// Start begins any background processing (e.g., event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the activity channel.
	Stop() error

	// Activities returns a channel of incoming activities.
	Activities() <-chan models.Activity
}

// activityQueue is the buffered activity channel shared by services.
type activityQueue struct {
	name       string
	activities chan models.Activity
	mu         sync.RWMutex
	stopped    bool
}

func newActivityQueue(name string) *activityQueue {
	return &activityQueue{
		name:       name,
		activities: make(chan models.Activity, DefaultChannelBufferSize),
	}
}

// emit forwards an activity, dropping it after DefaultChannelTimeout when the
// consumer is not keeping up. It reports whether the activity was queued.
func (q *activityQueue) emit(a models.Activity) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		slog.Warn("messaging: dropping activity (service stopped)", "service", q.name, "conversation", a.Conversation.ID)
		return false
	}
	select {
	case q.activities <- a:
		slog.Debug("messaging: activity queued", "service", q.name, "type", a.Type, "conversation", a.Conversation.ID)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging: activity channel blocked, dropping activity", "service", q.name, "conversation", a.Conversation.ID, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (q *activityQueue) isStopped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.stopped
}

// stop closes the channel once. Returns false when already stopped.
func (q *activityQueue) stop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.stopped = true
	close(q.activities)
	return true
}
