package tokenizer

import (
	"strings"
	"testing"

	"github.com/onellm/onechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatMessage(role string, size int) model.ChatMessage {
	return model.ChatMessage{Role: role, Content: strings.Repeat("x", size)}
}

func TestEstimateText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "exact multiple", text: "abcdefgh", want: 2},
		{name: "rounds up", text: "abcde", want: 2},
		{name: "single char", text: "a", want: 1},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.want, EstimateText(tc.text))
			},
		)
	}
}

func TestEstimateMessage(t *testing.T) {
	// 40 chars -> 10 tokens, plus role markup overhead.
	assert.Equal(t, 14, EstimateMessage(chatMessage("user", 40)))
}

func TestTruncate_FittingListUnchanged(t *testing.T) {
	msgs := []model.ChatMessage{
		chatMessage("user", 40),
		chatMessage("assistant", 40),
	}

	got := Truncate(msgs, 1000, 100)

	assert.Equal(t, msgs, got)
}

func TestTruncate_Idempotent(t *testing.T) {
	msgs := []model.ChatMessage{
		chatMessage("system", 40),
		chatMessage("user", 40),
		chatMessage("assistant", 40),
		chatMessage("user", 40),
	}

	once := Truncate(msgs, 50, 10)
	twice := Truncate(once, 50, 10)

	assert.Equal(t, once, twice)
}

func TestTruncate_DropsOldestFirst(t *testing.T) {
	msgs := []model.ChatMessage{
		{Role: "user", Content: strings.Repeat("a", 40)},
		{Role: "assistant", Content: strings.Repeat("b", 40)},
		{Role: "user", Content: strings.Repeat("c", 40)},
	}

	// 3 x 14 tokens against a 40-token budget: only the oldest goes.
	got := Truncate(msgs, 50, 10)

	require.Len(t, got, 2)
	assert.Equal(t, msgs[1], got[0])
	assert.Equal(t, msgs[2], got[1])
}

func TestTruncate_KeepsSystemMessages(t *testing.T) {
	msgs := []model.ChatMessage{
		{Role: "system", Content: strings.Repeat("s", 40)},
		{Role: "user", Content: strings.Repeat("a", 40)},
		{Role: "assistant", Content: strings.Repeat("b", 40)},
		{Role: "user", Content: strings.Repeat("c", 40)},
	}

	// available 40, system costs 14, the 3 x 14 remainder must shrink to 1.
	got := Truncate(msgs, 50, 10)

	require.Len(t, got, 2)
	assert.Equal(t, "system", got[0].Role)
	assert.Equal(t, msgs[3], got[1])
}

func TestTruncate_NeverDropsBelowOneNonSystem(t *testing.T) {
	msgs := []model.ChatMessage{
		chatMessage("system", 40),
		chatMessage("user", 4000),
	}

	// The lone user message overflows any budget it is given; it stays.
	got := Truncate(msgs, 50, 10)

	require.Len(t, got, 2)
	assert.Equal(t, msgs[0], got[0])
	assert.Equal(t, msgs[1], got[1])
}

func TestTruncate_DegenerateBudgetKeepsLastExchange(t *testing.T) {
	msgs := []model.ChatMessage{
		chatMessage("user", 10),
		chatMessage("assistant", 10),
		chatMessage("user", 10),
		chatMessage("assistant", 10),
	}

	got := Truncate(msgs, 100, 200)

	require.Len(t, got, 2)
	assert.Equal(t, msgs[2], got[0])
	assert.Equal(t, msgs[3], got[1])
}

func TestTruncate_PreservesRelativeOrder(t *testing.T) {
	msgs := []model.ChatMessage{
		{Role: "user", Content: strings.Repeat("1", 40)},
		{Role: "system", Content: strings.Repeat("s", 4)},
		{Role: "assistant", Content: strings.Repeat("2", 40)},
		{Role: "system", Content: strings.Repeat("t", 4)},
		{Role: "user", Content: strings.Repeat("3", 40)},
	}

	got := Truncate(msgs, 50, 10)

	require.GreaterOrEqual(t, len(got), 3)
	// Both system messages first, in input order, then the remainder in
	// input order.
	assert.Equal(t, "s", string(got[0].Content[0]))
	assert.Equal(t, "t", string(got[1].Content[0]))
	for i := 2; i < len(got)-1; i++ {
		assert.Less(t, got[i].Content, got[i+1].Content)
	}
}

func TestTruncate_InputNotModified(t *testing.T) {
	msgs := []model.ChatMessage{
		chatMessage("user", 40),
		chatMessage("assistant", 40),
		chatMessage("user", 40),
	}
	original := make([]model.ChatMessage, len(msgs))
	copy(original, msgs)

	Truncate(msgs, 50, 10)

	assert.Equal(t, original, msgs)
}

func TestExactEstimator_UnknownModelFails(t *testing.T) {
	for _, modelName := range []string{"freellm/unknown", "hf/rwkv7-g1a4-2.9b-20251118-ctx8192"} {
		_, err := ExactEstimator(modelName)
		assert.Error(t, err)
	}
}
