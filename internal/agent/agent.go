package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sharad-cli/internal/agent/tokenizer"
	"sharad-cli/internal/character"
	"sharad-cli/internal/event"
	"sharad-cli/internal/game"
	"sharad-cli/internal/logger"
	"sharad-cli/internal/schema"
	"sharad-cli/internal/tools"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 5 * time.Minute

	// cancelTimeout 尽力取消 run 时使用的独立超时
	cancelTimeout = 10 * time.Second
	tracerName    = "sharad-cli/internal/agent"
)

var (
	ErrNoConversation        = errors.New("no conversation: start or resume one first")
	ErrTimeout               = errors.New("run did not finish before the turn timeout")
	ErrMissingRequiredAction = errors.New("run requires action but carries no tool calls")
	ErrUnexpectedStatus      = errors.New("unexpected run status")
)

// RunFailedError run 以失败状态结束
type RunFailedError struct {
	Status    schema.RunStatus
	LastError string
}

func (e *RunFailedError) Error() string {
	if e.LastError == "" {
		return fmt.Sprintf("run failed with status %s", e.Status)
	}
	return fmt.Sprintf("run failed with status %s: %s", e.Status, e.LastError)
}

// GameMessageParseError assistant 的最终消息无法解析，保留原文
type GameMessageParseError struct {
	Raw string
	Err error
}

func (e *GameMessageParseError) Error() string {
	return fmt.Sprintf("parse game message: %v", e.Err)
}

func (e *GameMessageParseError) Unwrap() error { return e.Err }

// Service 远端 assistant 服务，*llm.Client 实现了它
type Service interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*schema.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*schema.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []schema.ToolOutput) (*schema.Run, error)
	LatestMessage(ctx context.Context, threadID, runID string) (string, error)
}

// ToolObserver 每次工具调用完成后回调，供界面层展示
type ToolObserver func(tc schema.ToolCall, success bool, output string)

//
// ============================================================
// Agent Structure
// ============================================================
//

// Agent 回合编排器。
//
// 一个回合：发送玩家行动，创建 run，轮询直到需要工具或完成，
// 依次执行工具并整批提交输出，最后解析 assistant 的叙事消息。
// Agent 不加锁，调用方必须保证同一时间只有一个回合在进行。
type Agent struct {
	service  Service
	registry *tools.Registry
	state    *game.State
	bus      *event.Bus

	log          *logger.TurnLogger
	tracer       trace.Tracer
	observer     ToolObserver
	pollInterval time.Duration
	timeout      time.Duration
	tokenLimit   int

	instructions string
	sendIntro    bool
}

// Option 配置 Agent
type Option func(*Agent)

func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithTurnLogger 每个回合写一份日志文件
func WithTurnLogger(l *logger.TurnLogger) Option {
	return func(a *Agent) { a.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Agent) { a.tracer = tp.Tracer(tracerName) }
}

// WithActionTokenLimit 超过限制的玩家行动会被截断，<= 0 表示不限制
func WithActionTokenLimit(n int) Option {
	return func(a *Agent) { a.tokenLimit = n }
}

// WithInstructions 新会话第一条行动附带的开场指令
func WithInstructions(s string) Option {
	return func(a *Agent) { a.instructions = s }
}

func WithToolObserver(fn ToolObserver) Option {
	return func(a *Agent) { a.observer = fn }
}

// NewAgent 创建回合编排器。bus 必须与 registry 中工具使用的是同一个。
func NewAgent(service Service, registry *tools.Registry, state *game.State, bus *event.Bus, opts ...Option) *Agent {
	a := &Agent{
		service:      service,
		registry:     registry,
		state:        state,
		bus:          bus,
		tracer:       otel.Tracer(tracerName),
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State 当前游戏状态
func (a *Agent) State() *game.State {
	return a.state
}

// Roster 当前角色列表
func (a *Agent) Roster() []*character.Sheet {
	return a.state.Roster()
}

// StartConversation 为 assistantID 新建线程并记录到游戏状态
func (a *Agent) StartConversation(ctx context.Context, assistantID string) error {
	threadID, err := a.service.CreateThread(ctx)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	a.state.AssistantID = assistantID
	a.state.ThreadID = threadID
	a.sendIntro = a.instructions != ""

	slog.Info("Conversation started",
		slog.String("assistant", assistantID),
		slog.String("thread", threadID),
	)
	return nil
}

// Resume 沿用已有的会话句柄，不再发送开场指令
func (a *Agent) Resume(conv game.Conversation) {
	a.state.Conversation = conv
	a.sendIntro = false
}

//
// ============================================================
// Turn
// ============================================================
//

// SendTurn 执行一个完整回合并返回解析后的叙事消息。
//
// 传输错误直接返回；协议错误、超时与调用方取消都会先尽力取消 run；
// 最终消息无法解析时返回 *GameMessageParseError。
func (a *Agent) SendTurn(ctx context.Context, action string) (msg *schema.GameMessage, err error) {
	if !a.state.HasConversation() {
		return nil, ErrNoConversation
	}
	thread := a.state.ThreadID

	ctx, span := a.tracer.Start(ctx, "agent.SendTurn",
		trace.WithAttributes(attribute.String("thread.id", thread)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.journal(func(l *logger.TurnLogger) error { return l.LogError(err) })
		}
		span.End()
	}()

	action = tokenizer.TruncateByTokens(action, a.tokenLimit)
	a.journal(func(l *logger.TurnLogger) error { return l.StartTurn(thread, action) })

	envelope := schema.PlayerAction{PlayerAction: action}
	if a.sendIntro {
		envelope.Instructions = a.instructions
	}
	content, err := envelope.Encode()
	if err != nil {
		return nil, err
	}

	if err := a.service.AppendMessage(ctx, thread, content); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	a.sendIntro = false

	run, err := a.service.CreateRun(ctx, thread, a.state.AssistantID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", run.ID))

	if err := a.poll(ctx, thread, run); err != nil {
		return nil, err
	}
	return a.complete(ctx, thread, run.ID)
}

// poll 轮询 run 直到完成；期间处理 requires_action。
//
// 回合预算作用在每一次 GetRun / SubmitToolOutputs / 工具调用上，
// 调用方取消或预算耗尽时都会先尽力取消 run。
func (a *Agent) poll(ctx context.Context, thread string, run *schema.Run) error {
	runID := run.ID
	deadline := time.Now().Add(a.timeout)
	tctx, stop := context.WithDeadline(ctx, deadline)
	defer stop()

	polls := 0
	var last schema.RunStatus

	for {
		// 状态变化或每批工具调用时记一次，避免轮询刷屏
		if run.Status != last || run.Status == schema.RunRequiresAction {
			a.journal(func(l *logger.TurnLogger) error { return l.LogRun(run) })
			last = run.Status
		}

		switch status := run.Status; {
		case status == schema.RunCompleted:
			slog.Debug("Run completed", slog.String("run", runID), slog.Int("polls", polls))
			return nil

		case status == schema.RunRequiresAction:
			outputs, err := a.resolveToolCalls(tctx, run)
			if err != nil {
				a.cancel(ctx, thread, runID)
				if ierr := a.interrupted(ctx, tctx); ierr != nil {
					return ierr
				}
				return err
			}
			if _, err := a.service.SubmitToolOutputs(tctx, thread, runID, outputs); err != nil {
				return a.abort(ctx, tctx, thread, runID, fmt.Errorf("submit tool outputs: %w", err))
			}

		case status.Failed():
			a.cancel(ctx, thread, runID)
			return &RunFailedError{Status: status, LastError: run.LastError}

		case status.Pending():

		default:
			a.cancel(ctx, thread, runID)
			return fmt.Errorf("%w: %q", ErrUnexpectedStatus, status)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			a.cancel(ctx, thread, runID)
			return a.timeoutErr()
		}

		timer := time.NewTimer(min(a.pollInterval, remaining))
		select {
		case <-tctx.Done():
			timer.Stop()
			a.cancel(ctx, thread, runID)
			return a.interrupted(ctx, tctx)
		case <-timer.C:
		}

		next, err := a.service.GetRun(tctx, thread, runID)
		if err != nil {
			return a.abort(ctx, tctx, thread, runID, fmt.Errorf("get run: %w", err))
		}
		run = next
		polls++
	}
}

// interrupted 调用方取消时返回 ctx.Err()，回合预算耗尽时返回 ErrTimeout，否则为 nil
func (a *Agent) interrupted(ctx, tctx context.Context) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case tctx.Err() != nil:
		return a.timeoutErr()
	default:
		return nil
	}
}

// abort 处理边界调用的错误：被中断时先取消 run，普通传输错误原样返回
func (a *Agent) abort(ctx, tctx context.Context, thread, runID string, err error) error {
	if ierr := a.interrupted(ctx, tctx); ierr != nil {
		a.cancel(ctx, thread, runID)
		return ierr
	}
	return err
}

func (a *Agent) timeoutErr() error {
	return fmt.Errorf("%w (%s)", ErrTimeout, a.timeout)
}

// cancel 尽力取消 run，忽略错误。调用方的 ctx 可能已经取消，这里另起一个。
func (a *Agent) cancel(ctx context.Context, thread, runID string) {
	cctx, done := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer done()

	if err := a.service.CancelRun(cctx, thread, runID); err != nil {
		slog.Warn("Cancel run failed",
			slog.String("run", runID),
			slog.String("err", err.Error()),
		)
	}
}

// complete 取回最新的 assistant 消息并合并其中的角色快照
func (a *Agent) complete(ctx context.Context, thread, runID string) (*schema.GameMessage, error) {
	raw, err := a.service.LatestMessage(ctx, thread, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	a.journal(func(l *logger.TurnLogger) error { return l.LogResponse(raw) })

	msg, err := schema.ParseGameMessage(raw)
	if err != nil {
		return nil, &GameMessageParseError{Raw: raw, Err: err}
	}
	if msg.CharacterSheet != nil {
		a.state.MergeSnapshot(msg.CharacterSheet)
	}
	return msg, nil
}

//
// ============================================================
// Tool Calls
// ============================================================
//

// resolveToolCalls 按服务端给出的顺序依次执行工具，每个调用恰好产生一条输出
func (a *Agent) resolveToolCalls(ctx context.Context, run *schema.Run) ([]schema.ToolOutput, error) {
	if len(run.ToolCalls) == 0 {
		return nil, ErrMissingRequiredAction
	}

	outputs := make([]schema.ToolOutput, 0, len(run.ToolCalls))
	for _, tc := range run.ToolCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		output, err := a.callTool(ctx, tc)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, schema.ToolOutput{ToolCallID: tc.ID, Output: output})
	}
	return outputs, nil
}

func (a *Agent) callTool(ctx context.Context, tc schema.ToolCall) (string, error) {
	ctx, span := a.tracer.Start(ctx, "agent.tool",
		trace.WithAttributes(
			attribute.String("tool.name", tc.Name),
			attribute.String("tool.call_id", tc.ID),
		),
	)
	defer span.End()

	a.journal(func(l *logger.TurnLogger) error { return l.LogToolCall(tc) })

	res, err := a.registry.Dispatch(ctx, tc, a.state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	output := res.Output()
	if !res.Success {
		slog.Warn("Tool call failed",
			slog.String("tool", tc.Name),
			slog.String("err", res.Error),
		)
	}
	if problems := a.applyPending(); problems != "" {
		output += "\n" + problems
	}
	span.SetAttributes(attribute.Bool("tool.success", res.Success))

	a.journal(func(l *logger.TurnLogger) error { return l.LogToolResult(tc, res.Success, output) })
	if a.observer != nil {
		a.observer(tc, res.Success, output)
	}
	return output, nil
}

// applyPending 把工具产生的事件应用到游戏状态。
// 返回需要告知 assistant 的更新错误，没有错误时为空。
func (a *Agent) applyPending() string {
	pending := a.bus.Drain()
	if pending.Empty() {
		return ""
	}

	for _, added := range pending.Characters {
		if added.Fallback {
			slog.Warn("Character sheet could not be parsed, using fallback",
				slog.String("name", added.Sheet.Name),
			)
		}
		a.state.AddCharacter(added.Sheet)
	}

	var problems []error
	for _, req := range pending.Updates {
		err := a.state.ApplyUpdates(req.Character, req.Updates)
		a.journal(func(l *logger.TurnLogger) error { return l.LogUpdate(req.Character, req.Updates, err) })
		if err != nil {
			slog.Warn("Update rejected",
				slog.String("tool", req.Tool),
				slog.String("character", req.Character),
				slog.String("err", err.Error()),
			)
			problems = append(problems, err)
		}
	}

	if len(problems) == 0 {
		return ""
	}
	return "Error applying update: " + errors.Join(problems...).Error()
}

// journal 写回合日志；日志失败不影响回合
func (a *Agent) journal(write func(*logger.TurnLogger) error) {
	if a.log == nil {
		return
	}
	if err := write(a.log); err != nil {
		slog.Warn("Turn log write failed", slog.String("err", err.Error()))
	}
}
