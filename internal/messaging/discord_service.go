package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/bwmarrin/discordgo"
)

// ChannelDiscord is the channel ID of Discord activities.
const ChannelDiscord = "discord"

// discordSession is the part of *discordgo.Session used by DiscordService.
type discordSession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordService implements Service on a Discord bot session.
type DiscordService struct {
	session discordSession
	queue   *activityQueue

	mu       sync.RWMutex
	selfID   string
	removers []func()
	// systemChannel resolves the channel greetings are posted to.
	systemChannel func(guildID string) (string, error)
}

// NewDiscordService creates a bot session from a token.
func NewDiscordService(token string) (*DiscordService, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token must be provided")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	s := newDiscordService(dg)
	s.systemChannel = func(guildID string) (string, error) {
		g, err := dg.State.Guild(guildID)
		if err != nil {
			if g, err = dg.Guild(guildID); err != nil {
				return "", err
			}
		}
		return g.SystemChannelID, nil
	}
	return s, nil
}

func newDiscordService(session discordSession) *DiscordService {
	return &DiscordService{
		session: session,
		queue:   newActivityQueue(ChannelDiscord),
	}
}

func (s *DiscordService) Name() string { return ChannelDiscord }

// Start registers handlers and opens the gateway connection.
func (s *DiscordService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.removers = append(s.removers,
		s.session.AddHandler(s.onReady),
		s.session.AddHandler(s.onMessageCreate),
		s.session.AddHandler(s.onGuildMemberAdd),
	)
	s.mu.Unlock()
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	slog.Info("DiscordService session opened")
	return nil
}

// Stop closes the session and the activity channel.
func (s *DiscordService) Stop() error {
	if !s.queue.stop() {
		return nil
	}
	s.mu.Lock()
	for _, remove := range s.removers {
		remove()
	}
	s.removers = nil
	s.mu.Unlock()
	return s.session.Close()
}

// SendMessage posts a reply into a channel.
func (s *DiscordService) SendMessage(ctx context.Context, conversationID string, body string) error {
	if s.queue.isStopped() {
		return ErrServiceStopped
	}
	if _, err := s.session.ChannelMessageSend(conversationID, body, discordgo.WithContext(ctx)); err != nil {
		slog.Error("DiscordService SendMessage error", "error", err, "channel", conversationID)
		return fmt.Errorf("failed to send message to channel %s: %w", conversationID, err)
	}
	return nil
}

// Activities returns the incoming activity channel.
func (s *DiscordService) Activities() <-chan models.Activity {
	return s.queue.activities
}

func (s *DiscordService) botID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *DiscordService) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	s.mu.Lock()
	s.selfID = r.User.ID
	s.mu.Unlock()
	slog.Info("DiscordService ready", "bot", r.User.Username)
}

func (s *DiscordService) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot || m.Author.ID == s.botID() {
		return
	}
	if m.Content == "" {
		return
	}
	s.queue.emit(models.Activity{
		ID:           m.ID,
		Type:         models.ActivityTypeMessage,
		ChannelID:    ChannelDiscord,
		Conversation: models.ConversationAccount{ID: m.ChannelID, IsGroup: m.GuildID != ""},
		From:         models.ChannelAccount{ID: m.Author.ID, Name: m.Author.Username},
		Recipient:    models.ChannelAccount{ID: s.botID()},
		Text:         m.Content,
		Timestamp:    m.Timestamp,
	})
}

func (s *DiscordService) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || s.systemChannel == nil {
		return
	}
	channelID, err := s.systemChannel(m.GuildID)
	if err != nil || channelID == "" {
		slog.Debug("DiscordService no system channel for guild, skipping greeting", "guild", m.GuildID, "error", err)
		return
	}
	s.queue.emit(models.Activity{
		ID:           m.GuildID + "/" + m.User.ID,
		Type:         models.ActivityTypeConversationUpdate,
		ChannelID:    ChannelDiscord,
		Conversation: models.ConversationAccount{ID: channelID, IsGroup: true},
		Recipient:    models.ChannelAccount{ID: s.botID()},
		MembersAdded: []models.ChannelAccount{{ID: m.User.ID, Name: m.User.Username}},
		Timestamp:    m.JoinedAt,
	})
}
