package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/MoodPipe/internal/app"
	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/config"
	"github.com/BTreeMap/MoodPipe/internal/messaging"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// Console addressing.
const (
	consoleChannel = "console"
	consoleUserID  = "console-user"
	consoleBotID   = "moodpipe"
)

var flagStore string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moodpipe-console",
		Short: "Talk to the MoodPipe bot from a terminal",
	}
	cmd.PersistentFlags().StringVar(&flagStore, "store", store.DSNTypeMemory, "state store DSN: memory, sqlite path, postgres URL or dynamodb://table (overrides $DATABASE_URL)")
	cmd.AddCommand(newChatCmd())
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation; each line is one message",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.DatabaseURL = storeDSN(cfg.DatabaseURL, flagStore, cmd.Flags().Changed("store"))
	// Keep the terminal readable: logs go to LOG_FILE or stderr.
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger, closer := config.NewLogger(os.Stderr, level, cfg.LogFile)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.Bot, a.Store, uuid.NewString())
}

// storeDSN picks the state store: an explicit --store wins, then DATABASE_URL,
// then the in-memory store.
func storeDSN(envDSN, flagDSN string, flagSet bool) string {
	if flagSet || envDSN == "" {
		return flagDSN
	}
	return envDSN
}

// chat greets the console user, then runs one turn per input line until EOF.
func chat(ctx context.Context, in io.Reader, out io.Writer, handler messaging.TurnHandler, st store.Store, conversationID string) error {
	base := models.Activity{
		ChannelID:    consoleChannel,
		Conversation: models.ConversationAccount{ID: conversationID},
		From:         models.ChannelAccount{ID: consoleUserID},
		Recipient:    models.ChannelAccount{ID: consoleBotID},
	}

	greet := base
	greet.ID = uuid.NewString()
	greet.Type = models.ActivityTypeConversationUpdate
	greet.MembersAdded = []models.ChannelAccount{{ID: consoleUserID}, {ID: consoleBotID}}
	greet.Timestamp = time.Now()
	if err := runTurn(ctx, out, handler, st, greet); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msg := base
		msg.ID = uuid.NewString()
		msg.Type = models.ActivityTypeMessage
		msg.Text = text
		msg.Timestamp = time.Now()
		if err := runTurn(ctx, out, handler, st, msg); err != nil {
			// The turn committed nothing; the user can simply answer again.
			fmt.Fprintf(out, "(turn failed: %v)\n", err)
		}
	}
}

func runTurn(ctx context.Context, out io.Writer, handler messaging.TurnHandler, st store.Store, a models.Activity) error {
	turn := bot.NewBufferedTurn(a)
	if err := messaging.Dispatch(ctx, st, handler, turn); err != nil {
		slog.Error("chat: turn failed", "error", err, "conversation", a.Conversation.ID)
		return err
	}
	for _, reply := range turn.Replies {
		fmt.Fprintf(out, "bot> %s\n", reply)
	}
	return nil
}
