package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sharad-cli/internal/character"
	"sharad-cli/internal/event"
	"sharad-cli/internal/game"
	"sharad-cli/internal/logger"
	"sharad-cli/internal/schema"
	"sharad-cli/internal/tools"
)

// ---- fakes ----

// fakeService 按脚本依次返回 run 状态，脚本用完后重复最后一个
type fakeService struct {
	runs    []*schema.Run
	next    int
	message string

	appended  []string
	submitted [][]schema.ToolOutput
	gets      int
	cancels   int

	// getDelay 让 GetRun 挂起，直到超时或 ctx 结束
	getDelay time.Duration
	// cancelCtxErr CancelRun 收到的 ctx 当时的状态
	cancelCtxErr error
}

func (f *fakeService) CreateThread(ctx context.Context) (string, error) { return "th_1", nil }

func (f *fakeService) AppendMessage(ctx context.Context, threadID, content string) error {
	f.appended = append(f.appended, content)
	return nil
}

func (f *fakeService) CreateRun(ctx context.Context, threadID, assistantID string) (*schema.Run, error) {
	return f.advance(), nil
}

func (f *fakeService) GetRun(ctx context.Context, threadID, runID string) (*schema.Run, error) {
	f.gets++
	if f.getDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.getDelay):
		}
	}
	return f.advance(), nil
}

func (f *fakeService) CancelRun(ctx context.Context, threadID, runID string) error {
	f.cancels++
	f.cancelCtxErr = ctx.Err()
	return nil
}

func (f *fakeService) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []schema.ToolOutput) (*schema.Run, error) {
	f.submitted = append(f.submitted, outputs)
	return &schema.Run{ID: runID, Status: schema.RunQueued}, nil
}

func (f *fakeService) LatestMessage(ctx context.Context, threadID, runID string) (string, error) {
	return f.message, nil
}

func (f *fakeService) advance() *schema.Run {
	run := f.runs[min(f.next, len(f.runs)-1)]
	f.next++
	return run
}

type constFace int

func (c constFace) Face() int { return int(c) }

type noImages struct{}

func (noImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("no images in tests")
}

const narration = `{"reasoning": "quiet scene", "narration": "Rain hammers the neon."}`

func run(status schema.RunStatus, calls ...schema.ToolCall) *schema.Run {
	return &schema.Run{ID: "run_1", Status: status, ToolCalls: calls}
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Name: name, Arguments: args}
}

func newTestAgent(t *testing.T, svc *fakeService, opts ...Option) *Agent {
	t.Helper()

	bus := event.NewBus(8)
	reg, _ := tools.NewGameRegistry(bus, constFace(3), noImages{})

	st := game.New("test")
	kestrel := character.Dummy()
	kestrel.Name = "Kestrel"
	st.AddCharacter(kestrel)

	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	a := NewAgent(svc, reg, st, bus, opts...)
	a.Resume(game.Conversation{AssistantID: "asst_1", ThreadID: "th_1"})
	return a
}

// ---- happy path ----

func TestSendTurn_ResolvesToolBatch(t *testing.T) {
	svc := &fakeService{
		runs: []*schema.Run{
			run(schema.RunQueued),
			run(schema.RunRequiresAction,
				call("call_a", "update_basic_attributes", `{"character_name": "Kestrel", "updates": {"agility": 5}}`),
				call("call_b", "perform_dice_roll", `{"character_name": "Kestrel", "attribute": "agility", "skill": "Pistols", "limit_type": "physical"}`),
				call("call_c", "update_inventory", `{"character_name": "Kestrel", "operation": "Add", "items": {"name": "Medkit"}}`),
			),
			run(schema.RunInProgress),
			run(schema.RunCompleted),
		},
		message: narration,
	}
	a := newTestAgent(t, svc)

	msg, err := a.SendTurn(context.Background(), "I draw my pistol.")
	require.NoError(t, err)
	require.Equal(t, "Rain hammers the neon.", msg.Narration)

	require.Len(t, svc.submitted, 1, "one batch per requires_action")
	batch := svc.submitted[0]
	require.Len(t, batch, 3)
	for i, id := range []string{"call_a", "call_b", "call_c"} {
		require.Equal(t, id, batch[i].ToolCallID)
	}

	// 同一批次中后面的调用能看到前面的更新
	require.Equal(t, int64(6), gjson.Get(batch[1].Output, "pool").Int())

	sheet, _ := a.State().FindCharacter("Kestrel")
	require.Equal(t, uint8(5), sheet.Attributes.Agility)
	require.Contains(t, sheet.Inventory, "Medkit")

	require.Equal(t, "I draw my pistol.", gjson.Get(svc.appended[0], "player_action").String())
	require.Zero(t, svc.cancels)
}

func TestSendTurn_MergesCharacterSnapshot(t *testing.T) {
	vex := character.Dummy()
	vex.Name = "Vex"
	raw, err := json.Marshal(map[string]any{
		"reasoning":       "new face",
		"narration":       "A decker slides into the booth.",
		"character_sheet": vex,
	})
	require.NoError(t, err)

	svc := &fakeService{runs: []*schema.Run{run(schema.RunCompleted)}, message: string(raw)}
	a := newTestAgent(t, svc)

	msg, err := a.SendTurn(context.Background(), "Who's that?")
	require.NoError(t, err)
	require.NotNil(t, msg.CharacterSheet)

	require.Len(t, a.Roster(), 2)
	require.Equal(t, "Vex", a.State().MainCharacter().Name)

	_, err = a.SendTurn(context.Background(), "Again.")
	require.NoError(t, err)
	require.Len(t, a.Roster(), 2, "same name replaces, never appends twice")
}

func TestSendTurn_RejectedUpdateIsReported(t *testing.T) {
	svc := &fakeService{
		runs: []*schema.Run{
			run(schema.RunRequiresAction,
				call("call_a", "update_basic_attributes", `{"character_name": "Kestrel", "updates": {"name": "Rook"}}`),
			),
			run(schema.RunCompleted),
		},
		message: narration,
	}
	a := newTestAgent(t, svc)
	rook := character.Dummy()
	rook.Name = "Rook"
	a.State().AddCharacter(rook)

	_, err := a.SendTurn(context.Background(), "Call me Rook.")
	require.NoError(t, err)

	out := svc.submitted[0][0].Output
	require.Contains(t, out, "Basic attributes updated")
	require.Contains(t, out, "Error applying update")
	_, stillThere := a.State().FindCharacter("Kestrel")
	require.True(t, stillThere)
}

func TestSendTurn_InstructionsOnlyOnFirstTurn(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunCompleted)}, message: narration}
	a := newTestAgent(t, svc, WithInstructions("Start in Seattle."))
	require.NoError(t, a.StartConversation(context.Background(), "asst_2"))
	require.Equal(t, "asst_2", a.State().AssistantID)

	_, err := a.SendTurn(context.Background(), "one")
	require.NoError(t, err)
	_, err = a.SendTurn(context.Background(), "two")
	require.NoError(t, err)

	require.Equal(t, "Start in Seattle.", gjson.Get(svc.appended[0], "instructions").String())
	require.False(t, gjson.Get(svc.appended[1], "instructions").Exists())
}

// ---- failures ----

func TestSendTurn_TimeoutCancelsOnce(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunInProgress)}}
	a := newTestAgent(t, svc, WithTimeout(30*time.Millisecond))

	_, err := a.SendTurn(context.Background(), "wait")
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 1, svc.cancels)
	require.Positive(t, svc.gets)
}

func TestSendTurn_FailedStatus(t *testing.T) {
	for _, status := range []schema.RunStatus{
		schema.RunFailed, schema.RunIncomplete, schema.RunCancelling, schema.RunCancelled, schema.RunExpired,
	} {
		t.Run(string(status), func(t *testing.T) {
			failed := run(status)
			failed.LastError = "rate_limit_exceeded"
			svc := &fakeService{runs: []*schema.Run{run(schema.RunQueued), failed}}
			a := newTestAgent(t, svc)

			_, err := a.SendTurn(context.Background(), "go")
			var runErr *RunFailedError
			require.ErrorAs(t, err, &runErr)
			require.Equal(t, status, runErr.Status)
			require.Equal(t, 1, svc.cancels)
		})
	}
}

func TestSendTurn_ProtocolErrorsCancel(t *testing.T) {
	cases := map[string]struct {
		run  *schema.Run
		want error
	}{
		"unknown tool":     {run(schema.RunRequiresAction, call("c", "hack_the_gibson", `{}`)), tools.ErrUnknownTool},
		"no tool calls":    {run(schema.RunRequiresAction), ErrMissingRequiredAction},
		"unexpected state": {run(schema.RunStatus("paused")), ErrUnexpectedStatus},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{runs: []*schema.Run{tc.run}}
			a := newTestAgent(t, svc)

			_, err := a.SendTurn(context.Background(), "go")
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, 1, svc.cancels)
			require.Empty(t, svc.submitted)
		})
	}
}

func TestSendTurn_ContextCancelled(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunInProgress)}}
	a := newTestAgent(t, svc, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.SendTurn(ctx, "wait")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, svc.cancels)
}

func TestSendTurn_CancelledDuringGetRun(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunInProgress)}, getDelay: time.Hour}
	a := newTestAgent(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.SendTurn(ctx, "wait")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, svc.gets)
	require.Equal(t, 1, svc.cancels)
	require.NoError(t, svc.cancelCtxErr, "cancel must run on a live context")
}

func TestSendTurn_TimeoutBoundsSlowGetRun(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunInProgress)}, getDelay: 300 * time.Millisecond}
	a := newTestAgent(t, svc, WithTimeout(50*time.Millisecond))

	started := time.Now()
	_, err := a.SendTurn(context.Background(), "wait")
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(started), 250*time.Millisecond)
	require.Equal(t, 1, svc.cancels)
	require.NoError(t, svc.cancelCtxErr)
}

func TestSendTurn_CancelledMidToolBatch(t *testing.T) {
	roll := `{"character_name": "Kestrel", "attribute": "agility", "skill": "Pistols", "limit_type": "physical"}`
	svc := &fakeService{runs: []*schema.Run{
		run(schema.RunRequiresAction,
			call("call_a", "perform_dice_roll", roll),
			call("call_b", "perform_dice_roll", roll),
		),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	a := newTestAgent(t, svc, WithToolObserver(func(tc schema.ToolCall, _ bool, _ string) {
		seen = append(seen, tc.ID)
		cancel()
	}))

	_, err := a.SendTurn(ctx, "shoot")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"call_a"}, seen, "no tool runs after cancellation")
	require.Empty(t, svc.submitted)
	require.Equal(t, 1, svc.cancels)
	require.NoError(t, svc.cancelCtxErr)
}

func TestSendTurn_UnparseableMessage(t *testing.T) {
	svc := &fakeService{runs: []*schema.Run{run(schema.RunCompleted)}, message: "The shadows whisper."}
	a := newTestAgent(t, svc)

	_, err := a.SendTurn(context.Background(), "listen")
	var parseErr *GameMessageParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "The shadows whisper.", parseErr.Raw)
}

func TestSendTurn_RequiresConversation(t *testing.T) {
	bus := event.NewBus(1)
	reg, _ := tools.NewGameRegistry(bus, constFace(1), noImages{})
	a := NewAgent(&fakeService{}, reg, game.New("empty"), bus)

	_, err := a.SendTurn(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoConversation)
}

// ---- observability ----

func TestSendTurn_TracesAndJournals(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	journal, err := logger.NewTurnLogger(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	var observed []string
	svc := &fakeService{
		runs: []*schema.Run{
			run(schema.RunRequiresAction,
				call("call_a", "perform_dice_roll", `{"character_name": "Kestrel", "attribute": "agility", "skill": "Pistols", "limit_type": "physical"}`),
			),
			run(schema.RunCompleted),
		},
		message: narration,
	}
	a := newTestAgent(t, svc,
		WithTracerProvider(tp),
		WithTurnLogger(journal),
		WithToolObserver(func(tc schema.ToolCall, success bool, output string) {
			observed = append(observed, tc.Name)
		}),
	)

	_, err = a.SendTurn(context.Background(), "shoot")
	require.NoError(t, err)
	require.Equal(t, []string{"perform_dice_roll"}, observed)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	require.ElementsMatch(t, []string{"agent.tool", "agent.SendTurn"}, names)

	data, err := os.ReadFile(journal.Path())
	require.NoError(t, err)
	require.Contains(t, string(data), "TOOL_CALL")
	require.Contains(t, string(data), "RESPONSE")
}
