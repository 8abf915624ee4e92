package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/tidwall/gjson"

	"sharad-cli/internal/character"
	"sharad-cli/internal/schema"
)

var (
	// ErrUnknownTool assistant 请求了未注册的工具，属于协议错误
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments 工具参数不是合法的 JSON 对象或缺少必填字段
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ToolResult 工具执行结果
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`

	// Err 原始错误，便于调用方用 errors.Is 判断
	Err error `json:"-"`
}

// Output 返回提交给 assistant 的文本，失败时加 "Error: " 前缀。
func (r *ToolResult) Output() string {
	if r.Success {
		return r.Content
	}
	return "Error: " + r.Error
}

func ok(content string) *ToolResult {
	return &ToolResult{Success: true, Content: content}
}

// StateReader 工具对游戏状态的只读视图
type StateReader interface {
	FindCharacter(name string) (*character.Sheet, bool)
}

// Call 一次工具调用的输入
type Call struct {
	ID    string
	Raw   string
	State StateReader
}

// Args 把原始参数解析为 JSON 对象
func (c Call) Args() (gjson.Result, error) {
	if !gjson.Valid(c.Raw) {
		return gjson.Result{}, fmt.Errorf("%w: not valid JSON", ErrInvalidArguments)
	}
	args := gjson.Parse(c.Raw)
	if !args.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: expected an object", ErrInvalidArguments)
	}
	return args, nil
}

// Tool 工具接口
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, call Call) (*ToolResult, error)
}

// Registry 工具注册表，同时充当分发器
type Registry struct {
	tools map[string]Tool
}

// NewRegistry 创建工具注册表
func NewRegistry(toolList ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range toolList {
		r.Register(t)
	}
	return r
}

// Register 注册工具，同名工具会被覆盖
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get 获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List 按名称排序列出所有工具
func (r *Registry) List() []Tool {
	names := slices.Sorted(maps.Keys(r.tools))
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// Dispatch 执行一次工具调用。
//
// 只有未注册的工具名会返回 error（ErrUnknownTool）；
// 工具自身的失败包装为 Success=false 的 ToolResult，由回合继续处理。
func (r *Registry) Dispatch(ctx context.Context, tc schema.ToolCall, state StateReader) (*ToolResult, error) {
	tool, found := r.Get(tc.Name)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tc.Name)
	}

	res, err := tool.Execute(ctx, Call{ID: tc.ID, Raw: tc.Arguments, State: state})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error(), Err: err}, nil
	}
	if res == nil {
		return ok(""), nil
	}
	return res, nil
}

// ToOpenAISchema 将 Tool 转换为 OpenAI function 工具格式
func ToOpenAISchema(tool Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
		},
	}
}
