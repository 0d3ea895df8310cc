package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/whatsapp"
	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/types/events"
)

// ChannelWhatsApp is the channel ID of WhatsApp activities.
const ChannelWhatsApp = "whatsapp"

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // set when event handling is available
	queue    *activityQueue
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		queue:  newActivityQueue(ChannelWhatsApp),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

func (s *WhatsAppService) Name() string { return ChannelWhatsApp }

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop closes the activity channel.
func (s *WhatsAppService) Stop() error {
	if s.queue.stop() {
		slog.Info("WhatsAppService stopped and channel closed")
	}
	return nil
}

// SendMessage replies into a chat.
func (s *WhatsAppService) SendMessage(ctx context.Context, conversationID string, body string) error {
	if s.queue.isStopped() {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, conversationID, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "conversation", conversationID)
		return err
	}
	return nil
}

// Activities returns the incoming activity channel.
func (s *WhatsAppService) Activities() <-chan models.Activity {
	return s.queue.activities
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.GroupInfo:
		s.handleGroupInfo(v)
	}
}

func (s *WhatsAppService) self() models.ChannelAccount {
	return models.ChannelAccount{ID: s.client.OwnID()}
}

// handleIncomingMessage converts a text message into a message activity.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}

	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	ts := evt.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.queue.emit(models.Activity{
		ID:           evt.Info.ID,
		Type:         models.ActivityTypeMessage,
		ChannelID:    ChannelWhatsApp,
		Conversation: models.ConversationAccount{ID: evt.Info.Chat.String(), IsGroup: evt.Info.IsGroup},
		From:         models.ChannelAccount{ID: evt.Info.Sender.ToNonAD().String(), Name: evt.Info.PushName},
		Recipient:    s.self(),
		Text:         text,
		Timestamp:    ts,
	})
}

// handleGroupInfo converts group joins into a conversationUpdate activity.
func (s *WhatsAppService) handleGroupInfo(evt *events.GroupInfo) {
	if len(evt.Join) == 0 {
		return
	}
	members := make([]models.ChannelAccount, 0, len(evt.Join))
	for _, jid := range evt.Join {
		members = append(members, models.ChannelAccount{ID: jid.ToNonAD().String()})
	}
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.queue.emit(models.Activity{
		ID:           uuid.NewString(),
		Type:         models.ActivityTypeConversationUpdate,
		ChannelID:    ChannelWhatsApp,
		Conversation: models.ConversationAccount{ID: evt.JID.String(), IsGroup: true},
		Recipient:    s.self(),
		MembersAdded: members,
		Timestamp:    ts,
	})
}
