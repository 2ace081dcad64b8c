// Package tokenizer approximates token usage of chat messages and trims
// conversation history to a model's context window. The character-based
// estimate is a heuristic with no guaranteed accuracy; it exists to work
// across tokenizer families. Exact counting is available for models with a
// known tiktoken encoding.
package tokenizer

import (
	"fmt"

	"github.com/onellm/onechat/internal/model"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the rough average of characters per token across
	// tokenizer families.
	charsPerToken = 4

	// messageOverhead covers role markup added per message by the provider.
	messageOverhead = 4
)

// EstimateFunc returns the token cost of a single message.
type EstimateFunc func(msg model.ChatMessage) int

// EstimateText approximates the token count of a text blob as
// ceil(len/charsPerToken).
func EstimateText(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessage approximates the token cost of one message including role
// markup overhead.
func EstimateMessage(msg model.ChatMessage) int {
	return EstimateText(msg.Content) + messageOverhead
}

// EstimateMessages approximates the total token cost of a message list.
func EstimateMessages(msgs []model.ChatMessage) int {
	total := 0
	for _, msg := range msgs {
		total += EstimateMessage(msg)
	}
	return total
}

// Truncate trims msgs to fit contextWindow minus the tokens reserved for the
// response, using the character heuristic.
func Truncate(msgs []model.ChatMessage, contextWindow, reservedForResponse int) []model.ChatMessage {
	return TruncateWith(msgs, contextWindow, reservedForResponse, EstimateMessage)
}

// TruncateWith trims msgs to fit contextWindow minus reservedForResponse
// tokens, with a caller-supplied estimator. System messages are kept
// unconditionally; the oldest non-system messages are dropped first; the
// non-system remainder never goes below one message even if it still
// overflows. Relative order within each partition is preserved. The input
// slice is not modified.
func TruncateWith(
	msgs []model.ChatMessage, contextWindow, reservedForResponse int, estimate EstimateFunc,
) []model.ChatMessage {
	available := contextWindow - reservedForResponse
	if available <= 0 {
		// Degenerate floor: keep only the last exchange.
		if len(msgs) <= 2 {
			return msgs
		}
		return msgs[len(msgs)-2:]
	}

	total := 0
	for _, msg := range msgs {
		total += estimate(msg)
	}
	if total <= available {
		return msgs
	}

	system := make([]model.ChatMessage, 0)
	rest := make([]model.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == string(model.MessageRoleSystem) {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	budget := available
	for _, msg := range system {
		budget -= estimate(msg)
	}

	restTotal := 0
	for _, msg := range rest {
		restTotal += estimate(msg)
	}
	for len(rest) > 1 && restTotal > budget {
		restTotal -= estimate(rest[0])
		rest = rest[1:]
	}

	out := make([]model.ChatMessage, 0, len(system)+len(rest))
	out = append(out, system...)
	out = append(out, rest...)
	return out
}

// ExactEstimator returns an estimator backed by the model's tiktoken
// encoding, or an error when the model has no known encoding and the caller
// should fall back to EstimateMessage.
func ExactEstimator(modelName string) (EstimateFunc, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", modelName, err)
	}
	return func(msg model.ChatMessage) int {
		return len(enc.Encode(msg.Content, nil, nil)) + messageOverhead
	}, nil
}
