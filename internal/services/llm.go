package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/silano08/tokingtoking/internal/models"
)

// ChatTurn is one prior message in the conversation sent to the model.
type ChatTurn struct {
	Role    string
	Content string
}

// ChatRequest describes one completion call. Mode selects the model variant:
// speaking uses the more capable model.
type ChatRequest struct {
	Mode         string
	SystemPrompt string
	Messages     []ChatTurn
	Temperature  float32
	JSON         bool
	MaxTokens    int
}

// ChatGateway is an LLM provider that returns the raw text of one completion.
type ChatGateway interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

const (
	conversationTemperature = 0.8
	openingUserPrompt       = "Start the conversation. Set up a natural scenario."
)

// TurnReply is a validated model reply. Missing or mistyped fields take
// their zero value: empty message, no usage, no feedback, no hint.
type TurnReply struct {
	Message   string
	WordUsage map[string]bool
	Feedback  *models.SpeakingFeedback
	Hint      *string
}

var errReplyNotObject = errors.New("model reply is not a JSON object")

// ParseTurnReply decodes a model reply. Content that is not a JSON object is
// an UpstreamError; anything else is accepted with defaults.
func ParseTurnReply(raw string) (TurnReply, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil || fields == nil {
		return TurnReply{}, &UpstreamError{Service: "llm", Err: errReplyNotObject}
	}

	reply := TurnReply{WordUsage: map[string]bool{}}
	_ = json.Unmarshal(fields["message"], &reply.Message)

	var usage map[string]json.RawMessage
	if json.Unmarshal(fields["word_usage"], &usage) == nil {
		for word, v := range usage {
			var used bool
			if json.Unmarshal(v, &used) == nil && used {
				reply.WordUsage[word] = true
			}
		}
	}

	var feedback map[string]json.RawMessage
	if json.Unmarshal(fields["feedback"], &feedback) == nil && feedback != nil {
		fb := &models.SpeakingFeedback{}
		_ = json.Unmarshal(feedback["pronunciation"], &fb.Pronunciation)
		_ = json.Unmarshal(feedback["grammar"], &fb.Grammar)
		_ = json.Unmarshal(feedback["vocabulary"], &fb.Vocabulary)
		_ = json.Unmarshal(feedback["score"], &fb.Score)
		reply.Feedback = fb
	}

	var hint string
	if json.Unmarshal(fields["hint"], &hint) == nil && strings.TrimSpace(hint) != "" {
		reply.Hint = &hint
	}
	return reply, nil
}

// stripCodeFence removes a surrounding ```json fence some models add even in
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
