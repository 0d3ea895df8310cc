package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/twiliowhatsapp"
)

// ChannelTwilio is the channel ID of Twilio WhatsApp activities.
const ChannelTwilio = "twilio"

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	client twiliowhatsapp.TwilioWhatsAppSender
	from   string // bot number, used as the recipient of inbound activities
	queue  *activityQueue
}

// NewTwilioService creates a TwilioService. from is the bot's own number.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, from string) *TwilioService {
	return &TwilioService{
		client: client,
		from:   twiliowhatsapp.Number(from),
		queue:  newActivityQueue(ChannelTwilio),
	}
}

func (s *TwilioService) Name() string { return ChannelTwilio }

// Start is a no-op for Twilio; inbound traffic arrives through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the activity channel.
func (s *TwilioService) Stop() error {
	s.queue.stop()
	return nil
}

// SendMessage sends a reply to the phone number identifying the conversation.
func (s *TwilioService) SendMessage(ctx context.Context, conversationID string, body string) error {
	if s.queue.isStopped() {
		return ErrServiceStopped
	}
	if conversationID == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	return s.client.SendMessage(ctx, conversationID, body)
}

// Activities returns the incoming activity channel.
func (s *TwilioService) Activities() <-chan models.Activity {
	return s.queue.activities
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// Each message becomes a message activity in the conversation of its sender.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := twiliowhatsapp.Number(r.FormValue("From"))
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	activity := models.Activity{
		ID:           r.FormValue("MessageSid"),
		Type:         models.ActivityTypeMessage,
		ChannelID:    ChannelTwilio,
		Conversation: models.ConversationAccount{ID: from},
		From:         models.ChannelAccount{ID: from, Name: r.FormValue("ProfileName")},
		Recipient:    models.ChannelAccount{ID: s.from},
		Text:         body,
		Timestamp:    time.Now(),
	}
	if err := activity.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.queue.emit(activity) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	slog.Info("TwilioService inbound message queued", "from", from)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
