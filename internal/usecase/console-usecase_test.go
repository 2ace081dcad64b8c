package usecase

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/onellm/onechat/config"
	in_memory "github.com/onellm/onechat/internal/storage/in-memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsole(t *testing.T, chat *ChatUsecase, input string) string {
	t.Helper()
	console := NewConsoleUsecase(
		ConsoleUsecaseDeps{
			Chat:     chat,
			Registry: NewRegistryUsecase(config.Gateway{RequestTimeout: time.Second}),
		},
	)
	console.in = strings.NewReader(input)
	out := &bytes.Buffer{}
	console.out = out
	require.NoError(t, console.Run(context.Background()))
	return out.String()
}

func TestConsoleKeyCommandShowsPlaceholder(t *testing.T) {
	f := newChatFixture(t, nil)

	output := runConsole(t, f.chat, "/key openai\n/quit\n")

	assert.Contains(t, output, "keys look like sk-...")

	// An unknown provider gets the generic usage line instead.
	output = runConsole(t, f.chat, "/key mystery\n/quit\n")
	assert.Contains(t, output, MessageHelp)
}

func TestConsoleKeyCommandStoresKey(t *testing.T) {
	f := newChatFixture(t, nil)

	runConsole(t, f.chat, "/key openai sk-user\n/quit\n")

	assert.Equal(t, "sk-user", f.chat.SettingsSnapshot().APIKeys["openai"])
}

func TestConsoleSendsAndPrintsAnswer(t *testing.T) {
	f := newChatFixture(t, nil)

	output := runConsole(t, f.chat, "Hello\n/quit\n")

	assert.Contains(t, output, "Hi there")
	require.Len(t, f.chat.ConversationList(), 1)
}

func TestConsoleUnknownCommand(t *testing.T) {
	chat := NewChatUsecase(
		ChatUsecaseDeps{
			Conversations: in_memory.NewConversationStorage(),
			Settings:      in_memory.NewSettingsStorage(),
			Completion:    &completionStub{},
		},
		config.Chat{DefaultModel: "freellm/Qwen/Qwen2.5-0.5B-Instruct"},
	)
	require.NoError(t, chat.Load(context.Background()))

	output := runConsole(t, chat, "/frobnicate\n")

	assert.Contains(t, output, MessageCommandUnknown)
}
