package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/tidwall/gjson"

	"sharad-cli/internal/retry"
	"sharad-cli/internal/schema"
	"sharad-cli/internal/tools"
)

// ErrNoMessage run 完成后线程里没有 assistant 的文本消息
var ErrNoMessage = errors.New("no assistant message for run")

// assistantTemperature 创建 assistant 时使用的采样温度
const assistantTemperature = 0.7

// ---- Assistant ----

// CreateAssistant 注册游戏 assistant：系统指令、全部工具和 JSON 输出格式。
func (c *Client) CreateAssistant(ctx context.Context, name, instructions string, toolList []tools.Tool) (string, error) {
	params := openai.BetaAssistantNewParams{
		Model:        c.model,
		Name:         openai.String(name),
		Instructions: openai.String(instructions),
		Temperature:  openai.Float(assistantTemperature),
		Tools:        convertTools(toolList),
		ResponseFormat: openai.AssistantResponseFormatOptionUnionParam{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	a, err := retry.Do(ctx, c.retryConfig, func() (*openai.Assistant, error) {
		a, err := c.client.Beta.Assistants.New(ctx, params)
		return a, classify(err)
	}, c.onRetry)
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}

	slog.Info("Created assistant", slog.String("assistant_id", a.ID), slog.Int("tools", len(toolList)))
	return a.ID, nil
}

// DeleteAssistant 删除 assistant
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := c.client.Beta.Assistants.Delete(ctx, assistantID); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	return nil
}

// convertTools 转换工具格式
func convertTools(toolList []tools.Tool) []openai.AssistantToolUnionParam {
	result := make([]openai.AssistantToolUnionParam, 0, len(toolList))

	for _, tool := range toolList {
		result = append(result, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name(),
					Description: openai.String(tool.Description()),
					Parameters:  openai.FunctionParameters(tool.Parameters()),
				},
			},
		})
	}

	return result
}

// ---- Threads & runs ----
//
// 下面的调用都是单次往返，不做重试：失败直接交给回合处理。

// CreateThread 创建新的会话线程
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	th, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return th.ID, nil
}

// AppendMessage 以 user 身份向线程追加一条消息
func (c *Client) AppendMessage(ctx context.Context, threadID, content string) error {
	_, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// CreateRun 让 assistant 在线程上开始一次 run
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*schema.Run, error) {
	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return convertRun(run), nil
}

// GetRun 查询 run 状态
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*schema.Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return convertRun(run), nil
}

// CancelRun 请求取消 run
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

// SubmitToolOutputs 一次性提交本批全部工具输出
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []schema.ToolOutput) (*schema.Run, error) {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.ToolCallID),
			Output:     openai.String(o.Output),
		})
	}

	run, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, fmt.Errorf("submit tool outputs: %w", err)
	}
	return convertRun(run), nil
}

// convertRun 只保留回合需要的字段
func convertRun(run *openai.Run) *schema.Run {
	out := &schema.Run{
		ID:     run.ID,
		Status: schema.RunStatus(run.Status),
	}
	if run.LastError.Message != "" {
		out.LastError = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// ---- Messages ----

// LatestMessage 取出指定 run 产生的最新一条 assistant 文本消息
func (c *Client) LatestMessage(ctx context.Context, threadID, runID string) (string, error) {
	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		RunID: openai.String(runID),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	for _, msg := range page.Data {
		if msg.Role != openai.MessageRoleAssistant {
			continue
		}
		if text := messageText(msg); text != "" {
			return text, nil
		}
	}
	return "", ErrNoMessage
}

// History 按时间顺序返回整个线程，玩家消息只保留行动文本，assistant 消息只保留叙述。
func (c *Client) History(ctx context.Context, threadID string) ([]schema.HistoryEntry, error) {
	iter := c.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})

	var entries []schema.HistoryEntry
	for iter.Next() {
		msg := iter.Current()
		text := messageText(msg)
		if text == "" {
			continue
		}
		entries = append(entries, historyEntry(msg.Role, text))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

func messageText(msg openai.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.AsText().Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func historyEntry(role openai.MessageRole, text string) schema.HistoryEntry {
	if role == openai.MessageRoleAssistant {
		if n := gjson.Get(text, "narration"); n.Exists() {
			return schema.HistoryEntry{Kind: schema.HistoryGame, Content: n.String()}
		}
		return schema.HistoryEntry{Kind: schema.HistoryGame, Content: text}
	}
	if a := gjson.Get(text, "player_action"); a.Exists() {
		return schema.HistoryEntry{Kind: schema.HistoryUser, Content: a.String()}
	}
	return schema.HistoryEntry{Kind: schema.HistoryUser, Content: text}
}
