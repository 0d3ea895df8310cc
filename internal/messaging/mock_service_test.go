package messaging

import (
	"context"
	"sync"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// mockService is an in-memory Service used across tests.
type mockService struct {
	name  string
	queue *activityQueue

	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	to   string
	body string
}

func newMockService(name string) *mockService {
	return &mockService{name: name, queue: newActivityQueue(name)}
}

func (m *mockService) Name() string                       { return m.name }
func (m *mockService) Start(ctx context.Context) error    { return nil }
func (m *mockService) Stop() error                        { m.queue.stop(); return nil }
func (m *mockService) Activities() <-chan models.Activity { return m.queue.activities }

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: to, body: body})
	return nil
}

func (m *mockService) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}
