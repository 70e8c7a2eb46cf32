// Package conversations converts the client-held message log to and from Eino messages
// and builds the bounded model context for a turn.
package conversations

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/model"
)

type MessagesManager struct {
	maxContextMessages int
}

func NewMessagesManager(config model.AgentConfig) *MessagesManager {
	return &MessagesManager{maxContextMessages: config.MaxContextMessages}
}

// BuildContext returns the system prompt followed by the recent tail of the log.
func (cm *MessagesManager) BuildContext(systemPrompt string, log []model.Message) []*schema.Message {
	recent := trimTail(log, cm.maxContextMessages)

	messages := make([]*schema.Message, 0, len(recent)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	return append(messages, ToSchema(recent)...)
}

// ToSchema converts stored log entries into model messages. A user entry carrying
// tool_result blocks becomes one tool-role message per block.
func ToSchema(log []model.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(log))
	for _, m := range log {
		if len(m.Blocks) == 0 {
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			if m.Role == model.RoleAssistant {
				out = append(out, schema.AssistantMessage(m.Content, nil))
			} else {
				out = append(out, schema.UserMessage(m.Content))
			}
			continue
		}

		var text []string
		var calls []schema.ToolCall
		for _, b := range m.Blocks {
			switch b.Type {
			case model.BlockText:
				if strings.TrimSpace(b.Text) != "" {
					text = append(text, b.Text)
				}
			case model.BlockToolUse:
				args := "{}"
				if len(b.Input) > 0 {
					args = string(b.Input)
				}
				calls = append(calls, schema.ToolCall{
					ID:       b.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: b.Name, Arguments: args},
				})
			case model.BlockToolResult:
				out = append(out, &schema.Message{
					Role:       schema.Tool,
					Content:    ToolPayload(b.Content),
					ToolCallID: b.ToolUseID,
				})
			}
		}

		joined := strings.Join(text, "\n")
		switch {
		case m.Role == model.RoleAssistant && (joined != "" || len(calls) > 0):
			out = append(out, schema.AssistantMessage(joined, calls))
		case m.Role != model.RoleAssistant && joined != "":
			out = append(out, schema.UserMessage(joined))
		}
	}
	return out
}

// FromSchema converts the messages produced during a turn back into log entries.
// Consecutive tool results fold into a single user entry of tool_result blocks.
func FromSchema(msgs []*schema.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.Assistant:
			if len(m.ToolCalls) == 0 {
				if strings.TrimSpace(m.Content) != "" {
					out = append(out, model.Message{Role: model.RoleAssistant, Content: m.Content})
				}
				continue
			}
			blocks := make([]model.ContentBlock, 0, len(m.ToolCalls)+1)
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, model.ContentBlock{
					Type:  model.BlockToolUse,
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: rawArgs(tc.Function.Arguments),
				})
			}
			out = append(out, model.Message{Role: model.RoleAssistant, Blocks: blocks})
		case schema.Tool:
			block := model.ContentBlock{Type: model.BlockToolResult, ToolUseID: m.ToolCallID, Content: ToolText(m.Content)}
			if n := len(out); n > 0 && isToolResults(out[n-1]) {
				last := &out[n-1]
				last.Blocks = append(append([]model.ContentBlock(nil), last.Blocks...), block)
				continue
			}
			out = append(out, model.Message{Role: model.RoleUser, Blocks: []model.ContentBlock{block}})
		case schema.User:
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, model.Message{Role: model.RoleUser, Content: m.Content})
			}
		}
	}
	return out
}

type toolPayload struct {
	Result string `json:"result"`
}

// ToolPayload wraps tool result text in the JSON object the model provider expects.
func ToolPayload(text string) string {
	b, err := json.Marshal(toolPayload{Result: text})
	if err != nil {
		return `{"result":""}`
	}
	return string(b)
}

// ToolText unwraps a ToolPayload. Content that is not a payload is returned as is.
func ToolText(content string) string {
	var p toolPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return content
	}
	return p.Result
}

// ====================== Helper function ======================

// trimTail keeps at most maxMessages entries, starting at a user text entry so an
// assistant tool_use is never separated from its tool_result.
func trimTail(messages []model.Message, maxMessages int) []model.Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		result := make([]model.Message, len(messages))
		copy(result, messages)
		return result
	}

	start := len(messages) - maxMessages
	for start < len(messages) && !isUserText(messages[start]) {
		start++
	}
	if start == len(messages) {
		// no boundary inside the window: fall back to the latest user text entry
		start = len(messages) - maxMessages
		for start > 0 && !isUserText(messages[start]) {
			start--
		}
	}
	source := messages[start:]
	result := make([]model.Message, len(source))
	copy(result, source)
	return result
}

func isUserText(m model.Message) bool {
	if m.Role != model.RoleUser {
		return false
	}
	if len(m.Blocks) == 0 {
		return strings.TrimSpace(m.Content) != ""
	}
	for _, b := range m.Blocks {
		if b.Type == model.BlockToolResult {
			return false
		}
	}
	return true
}

func isToolResults(m model.Message) bool {
	if m.Role != model.RoleUser || len(m.Blocks) == 0 {
		return false
	}
	for _, b := range m.Blocks {
		if b.Type != model.BlockToolResult {
			return false
		}
	}
	return true
}

func rawArgs(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}
