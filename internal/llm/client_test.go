package llm

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sharad-cli/internal/retry"
	"sharad-cli/internal/schema"
	"sharad-cli/internal/tools"
)

const requiresActionRun = `{
	"id": "run_1", "object": "thread.run", "thread_id": "th_1", "status": "requires_action",
	"required_action": {"type": "submit_tool_outputs", "submit_tool_outputs": {"tool_calls": [
		{"id": "call_a", "type": "function", "function": {"name": "perform_dice_roll", "arguments": "{\"skill\":\"Pistols\"}"}},
		{"id": "call_b", "type": "function", "function": {"name": "update_inventory", "arguments": "{}"}}
	]}}
}`

const assistantMessages = `{
	"object": "list", "has_more": false,
	"data": [{"id": "msg_2", "object": "thread.message", "role": "assistant", "run_id": "run_1", "thread_id": "th_1",
		"content": [{"type": "text", "text": {"value": "{\"reasoning\":\"r\",\"narration\":\"Rain.\"}", "annotations": []}}]}]
}`

const historyMessages = `{
	"object": "list", "has_more": false,
	"data": [
		{"id": "msg_1", "object": "thread.message", "role": "user", "thread_id": "th_1",
			"content": [{"type": "text", "text": {"value": "{\"player_action\":\"look around\"}", "annotations": []}}]},
		{"id": "msg_2", "object": "thread.message", "role": "assistant", "thread_id": "th_1",
			"content": [{"type": "text", "text": {"value": "{\"narration\":\"Rain.\"}", "annotations": []}}]}
	]
}`

// fakeAPI 模拟 OpenAI 接口，记录收到的请求体
type fakeAPI struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (a *fakeAPI) body(pattern string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[pattern]
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{bodies: map[string]string{}}

	mux := http.NewServeMux()
	reply := func(pattern, body string) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			api.mu.Lock()
			api.bodies[pattern] = string(raw)
			api.mu.Unlock()

			out := body
			if pattern == "GET /v1/threads/{thread}/messages" && r.URL.Query().Get("run_id") == "" {
				out = historyMessages
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, out)
		})
	}
	reply("POST /v1/assistants", `{"id": "asst_1", "object": "assistant"}`)
	reply("POST /v1/threads", `{"id": "th_1", "object": "thread"}`)
	reply("POST /v1/threads/{thread}/messages", `{"id": "msg_1", "object": "thread.message", "role": "user"}`)
	reply("POST /v1/threads/{thread}/runs", `{"id": "run_1", "object": "thread.run", "status": "queued"}`)
	reply("GET /v1/threads/{thread}/runs/{run}", requiresActionRun)
	reply("POST /v1/threads/{thread}/runs/{run}/submit_tool_outputs", `{"id": "run_1", "object": "thread.run", "status": "queued"}`)
	reply("POST /v1/threads/{thread}/runs/{run}/cancel", `{"id": "run_1", "object": "thread.run", "status": "cancelling"}`)
	reply("GET /v1/threads/{thread}/messages", assistantMessages)
	reply("POST /v1/images/generations", `{"created": 1, "data": [{"b64_json": "`+base64.StdEncoding.EncodeToString([]byte("png-bytes"))+`"}]}`)
	reply("POST /v1/chat/completions", `{"id": "c1", "object": "chat.completion", "choices": [
		{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Previously..."}}]}`)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", srv.URL+"/v1", "gpt-4o",
		WithRetryConfig(&retry.Config{Enabled: true, MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}),
		WithImages("", t.TempDir()),
	)
	return c, api
}

func TestRunLifecycle(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx)
	require.NoError(t, err)
	require.Equal(t, "th_1", thread)

	require.NoError(t, c.AppendMessage(ctx, thread, `{"player_action":"look"}`))
	require.Equal(t, "user", gjson.Get(api.body("POST /v1/threads/{thread}/messages"), "role").String())

	run, err := c.CreateRun(ctx, thread, "asst_1")
	require.NoError(t, err)
	require.Equal(t, schema.RunQueued, run.Status)
	require.Equal(t, "asst_1", gjson.Get(api.body("POST /v1/threads/{thread}/runs"), "assistant_id").String())

	run, err = c.GetRun(ctx, thread, run.ID)
	require.NoError(t, err)
	require.Equal(t, schema.RunRequiresAction, run.Status)
	require.Equal(t, []schema.ToolCall{
		{ID: "call_a", Name: "perform_dice_roll", Arguments: `{"skill":"Pistols"}`},
		{ID: "call_b", Name: "update_inventory", Arguments: `{}`},
	}, run.ToolCalls)

	_, err = c.SubmitToolOutputs(ctx, thread, run.ID, []schema.ToolOutput{
		{ToolCallID: "call_a", Output: "a"},
		{ToolCallID: "call_b", Output: "b"},
	})
	require.NoError(t, err)
	body := api.body("POST /v1/threads/{thread}/runs/{run}/submit_tool_outputs")
	require.Equal(t, int64(2), gjson.Get(body, "tool_outputs.#").Int())
	require.Equal(t, "call_b", gjson.Get(body, "tool_outputs.1.tool_call_id").String())

	require.NoError(t, c.CancelRun(ctx, thread, run.ID))

	text, err := c.LatestMessage(ctx, thread, run.ID)
	require.NoError(t, err)
	require.Equal(t, "Rain.", gjson.Get(text, "narration").String())
}

func TestHistory(t *testing.T) {
	c, _ := newTestClient(t)

	entries, err := c.History(context.Background(), "th_1")
	require.NoError(t, err)
	require.Equal(t, []schema.HistoryEntry{
		{Kind: schema.HistoryUser, Content: "look around"},
		{Kind: schema.HistoryGame, Content: "Rain."},
	}, entries)
}

func TestCreateAssistant_SendsToolsAndJSONFormat(t *testing.T) {
	c, api := newTestClient(t)

	reg := tools.NewRegistry(tools.NewDiceRollTool(nil))
	id, err := c.CreateAssistant(context.Background(), "Sharad", "You are the game master.", reg.List())
	require.NoError(t, err)
	require.Equal(t, "asst_1", id)

	body := api.body("POST /v1/assistants")
	require.Equal(t, "json_object", gjson.Get(body, "response_format.type").String())
	require.Equal(t, "perform_dice_roll", gjson.Get(body, "tools.0.function.name").String())
	require.Equal(t, 0.7, gjson.Get(body, "temperature").Float())
}

func TestGenerateImage_SavesFile(t *testing.T) {
	c, api := newTestClient(t)

	path, err := c.GenerateImage(context.Background(), "a troll bouncer")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	body := api.body("POST /v1/images/generations")
	require.Equal(t, "1024x1792", gjson.Get(body, "size").String())
	require.Equal(t, StylePrompt("a troll bouncer"), gjson.Get(body, "prompt").String())
}

func TestGenerate(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.Generate(context.Background(), []schema.Message{
		{Role: "system", Content: "Summarize."},
		{Role: "user", Content: "stuff"},
	})
	require.NoError(t, err)
	require.Equal(t, "Previously...", resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
}

func TestClassify_ClientErrorsArePermanent(t *testing.T) {
	mux := http.NewServeMux()
	var calls atomic.Int32
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient("bad", srv.URL+"/v1", "gpt-4o",
		WithRetryConfig(&retry.Config{Enabled: true, MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}))

	_, err := c.Generate(context.Background(), []schema.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}
