package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"sharad-cli/internal/character"
)

// ---- Chat ----

// Message 对话消息，用于 chat completions（剧情回顾）
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMResponse LLM 响应
type LLMResponse struct {
	Content      string `json:"content"`
	Thinking     string `json:"thinking,omitempty"`
	FinishReason string `json:"finish_reason"`
}

// ---- Runs ----

// RunStatus 远端 run 的状态
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Pending run 仍在排队或执行中
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress
}

// Failed run 以失败告终（含正在取消）
func (s RunStatus) Failed() bool {
	switch s {
	case RunFailed, RunIncomplete, RunCancelling, RunCancelled, RunExpired:
		return true
	}
	return false
}

// ToolCall assistant 在 requires_action 状态下请求的一次工具调用
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // 原始 JSON
}

// ToolOutput 提交给 run 的工具输出，按 ToolCallID 对应
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Run 一次 run 的快照
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// ---- History ----

// HistoryKind 历史消息的来源
type HistoryKind string

const (
	HistoryUser   HistoryKind = "user"
	HistoryGame   HistoryKind = "game"
	HistorySystem HistoryKind = "system"
)

// HistoryEntry 线程中的一条历史消息
type HistoryEntry struct {
	Kind    HistoryKind `json:"kind"`
	Content string      `json:"content"`
}

// ---- Game messages ----

// PlayerAction 发送给 assistant 的玩家行动
type PlayerAction struct {
	Instructions string `json:"instructions,omitempty"`
	PlayerAction string `json:"player_action"`
}

// Encode 序列化为消息正文
func (a PlayerAction) Encode() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode player action: %w", err)
	}
	return string(b), nil
}

// GameMessage assistant 每回合返回的结构化叙事
type GameMessage struct {
	Reasoning      string           `json:"reasoning"`
	Narration      string           `json:"narration"`
	CharacterSheet *character.Sheet `json:"character_sheet,omitempty"`
}

var (
	errInvalidJSON      = errors.New("message is not valid JSON")
	errMissingNarration = errors.New("missing narration field")
)

// ParseGameMessage 解析 assistant 的最终消息。
// 允许外层包裹 ```json 代码块；narration 字段必须存在。
func ParseGameMessage(raw string) (*GameMessage, error) {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return nil, errInvalidJSON
	}
	if !gjson.Get(body, "narration").Exists() {
		return nil, errMissingNarration
	}

	var msg GameMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
