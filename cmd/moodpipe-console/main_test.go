package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/flow"
	"github.com/BTreeMap/MoodPipe/internal/state"
	"github.com/BTreeMap/MoodPipe/internal/store"
	"github.com/BTreeMap/MoodPipe/internal/testutil"
)

func newConsoleBot(st store.Store, scorer *testutil.StubScorer) *bot.Bot {
	return bot.New(flow.NewEngine(scorer), state.NewManager(st))
}

func TestChat_FullConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	var out strings.Builder
	in := strings.NewReader("hello\nAnn\n\nI'm great\n")

	if err := chat(context.Background(), in, &out, newConsoleBot(st, &testutil.StubScorer{Value: 0.95}), st, "conv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := flow.DefaultMessages()
	want := []string{
		"bot> " + msgs.Greeting,
		"bot> " + msgs.AskName,
		"bot> " + msgs.AskFeeling,
		"bot> Good to hear that you are doing well Ann!",
	}
	got := out.String()
	last := 0
	for _, w := range want {
		idx := strings.Index(got[last:], w)
		if idx < 0 {
			t.Fatalf("expected %q after offset %d in output:\n%s", w, last, got)
		}
		last += idx + len(w)
	}

	// 4 inbound activities, 5 replies.
	testutil.AssertTranscriptLen(t, st, "console/conversations/conv-1", 9)
}

func TestChat_TurnFailureContinues(t *testing.T) {
	st := store.NewInMemoryStore()
	var out strings.Builder
	in := strings.NewReader("hi\nAnn\nfine\n")

	err := chat(context.Background(), in, &out, newConsoleBot(st, &testutil.StubScorer{Err: errors.New("timeout")}), st, "conv-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "(turn failed:") {
		t.Errorf("expected failure notice, got:\n%s", out.String())
	}
}

func TestNewRootCmd_HasChat(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"chat"})
	if err != nil || cmd.Name() != "chat" {
		t.Fatalf("expected chat subcommand, got %v, %v", cmd, err)
	}
	if f := root.PersistentFlags().Lookup("store"); f == nil || f.DefValue != store.DSNTypeMemory {
		t.Errorf("expected --store flag defaulting to memory, got %+v", f)
	}
}

func TestStoreDSN(t *testing.T) {
	tests := []struct {
		name    string
		envDSN  string
		flagDSN string
		flagSet bool
		want    string
	}{
		{"nothing set uses memory", "", store.DSNTypeMemory, false, store.DSNTypeMemory},
		{"environment wins over default flag", "postgres://localhost/db", store.DSNTypeMemory, false, "postgres://localhost/db"},
		{"explicit flag wins over environment", "postgres://localhost/db", "/tmp/chat.db", true, "/tmp/chat.db"},
		{"explicit memory wins over environment", "dynamodb://moodpipe", store.DSNTypeMemory, true, store.DSNTypeMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storeDSN(tt.envDSN, tt.flagDSN, tt.flagSet); got != tt.want {
				t.Errorf("storeDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatCmd_SeesStoreFlag(t *testing.T) {
	for _, tt := range []struct {
		args        []string
		wantChanged bool
	}{
		{[]string{"chat"}, false},
		{[]string{"chat", "--store", "/tmp/chat.db"}, true},
		{[]string{"--store", "/tmp/chat.db", "chat"}, true},
	} {
		root := newRootCmd()
		chatCmd, _, err := root.Find([]string{"chat"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var changed bool
		chatCmd.RunE = func(cmd *cobra.Command, args []string) error {
			changed = cmd.Flags().Changed("store")
			return nil
		}
		root.SetArgs(tt.args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.args, err)
		}
		if changed != tt.wantChanged {
			t.Errorf("%v: Changed(store) = %v, want %v", tt.args, changed, tt.wantChanged)
		}
	}
	flagStore = store.DSNTypeMemory
}
