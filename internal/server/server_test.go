package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/snapshot"
	"github.com/DomeenoH/dual/internal/step"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type funcTransport func(ctx context.Context, call ai.Call, onDelta func(ai.Delta)) (*ai.Result, error)

func (f funcTransport) Generate(ctx context.Context, call ai.Call, onDelta func(ai.Delta)) (*ai.Result, error) {
	return f(ctx, call, onDelta)
}

type profiles map[string]ai.ModelProfile

func (p profiles) Profile(name string) (ai.ModelProfile, error) {
	if profile, ok := p[name]; ok {
		return profile, nil
	}
	return ai.ModelProfile{}, errors.New("unknown model profile " + name)
}

type fixture struct {
	server    *Server
	hub       *Hub
	snapshots *snapshot.FileSystemStore
	http      *httptest.Server
}

func newFixture(t *testing.T, transport ai.Transport) *fixture {
	t.Helper()
	hub := NewHub()
	store, err := snapshot.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	registry := ai.NewRegistry()
	registry.Register(ai.ProviderGemini, transport)
	executor := step.NewExecutor(registry, hub,
		step.WithNotifier(hub),
		step.WithFailureSink(store),
		step.WithRetryPolicy(step.RetryPolicy{MaxRetries: 1}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ctx, executor, hub, store, profiles{
		"fast": {Name: "fast", Provider: ai.ProviderGemini, Model: "gemini-2.5-flash"},
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		cancel()
		ts.Close()
		srv.Wait()
	})
	return &fixture{server: srv, hub: hub, snapshots: store, http: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func replyWith(text string) funcTransport {
	return func(_ context.Context, _ ai.Call, onDelta func(ai.Delta)) (*ai.Result, error) {
		onDelta(ai.Delta{Text: text})
		return &ai.Result{Text: text}, nil
	}
}

func TestParseEndpoint(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, body := f.do(t, http.MethodPost, "/api/parse", parseRequest{
		Text: "Hello\n```json\n{\"notepad_modifications\":[{\"action\":\"append\",\"content\":\"X\"}],\"discussion_complete\":true}\n```",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got parsedView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Hello", got.SpokenText)
	assert.True(t, got.EndSignal)
	require.Len(t, got.Directives, 1)
	assert.Equal(t, "X", got.Directives[0].Content)
}

func TestApplyEndpoint(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, body := f.do(t, http.MethodPost, "/api/notepad/apply", map[string]any{
		"document": "## A\nold\n## B\nkeep",
		"directives": []map[string]any{
			{"action": "replace_section", "section": "A", "content": "new"},
			{"action": "explode"},
			{"action": "append_to_section", "section": "Nowhere", "content": "x"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got applyResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "## A\nnew\n## B\nkeep", got.Document)
	assert.Len(t, got.Errors, 1)
	assert.Len(t, got.Rejected, 1)
}

func TestApplyEndpoint_BadDirectives(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, _ := f.do(t, http.MethodPost, "/api/notepad/apply", map[string]any{"document": "x", "directives": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchemaEndpoint(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, body := f.do(t, http.MethodGet, "/api/schema", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "notepad_modifications")
}

func TestRunStep_Wait(t *testing.T) {
	f := newFixture(t, replyWith("Sounds good.\n```json\n{\"discussion_complete\":true}\n```"))

	resp, body := f.do(t, http.MethodPost, "/api/steps?wait=true", runStepRequest{
		StepID: "s1", Prompt: "go", Profile: "fast", Role: "critic", Purpose: "discussion",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got stepView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, stepCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.Parsed)
	assert.Equal(t, "Sounds good.", got.Parsed.SpokenText)
	assert.True(t, got.Parsed.EndSignal)

	messages := f.hub.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, got.MessageID, messages[0].ID)
}

func TestRunStep_UnknownProfile(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, _ := f.do(t, http.MethodPost, "/api/steps", runStepRequest{Prompt: "go", Profile: "slow"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunStep_FailureThenResume(t *testing.T) {
	var healthy atomic.Bool
	f := newFixture(t, funcTransport(func(_ context.Context, _ ai.Call, onDelta func(ai.Delta)) (*ai.Result, error) {
		if !healthy.Load() {
			return nil, errors.New("provider down")
		}
		onDelta(ai.Delta{Text: "recovered"})
		return &ai.Result{Text: "recovered"}, nil
	}))

	resp, body := f.do(t, http.MethodPost, "/api/steps?wait=true", runStepRequest{
		StepID: "s2", Prompt: "go", Profile: "fast",
		Resume: &step.ResumeContext{TurnIndex: 5},
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))

	var failed stepView
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Equal(t, stepFailed, failed.Status)
	assert.Equal(t, 2, failed.Attempts)

	_, body = f.do(t, http.MethodGet, "/api/snapshots", nil)
	var list []step.FailureSnapshot
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Request.Resume.TurnIndex)

	healthy.Store(true)
	resp, body = f.do(t, http.MethodPost, "/api/snapshots/s2/resume?wait=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	snap, err := f.snapshots.Get("s2")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestResume_Missing(t *testing.T) {
	f := newFixture(t, replyWith("unused"))

	resp, _ := f.do(t, http.MethodPost, "/api/snapshots/none/resume", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelStep(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, funcTransport(func(ctx context.Context, _ ai.Call, onDelta func(ai.Delta)) (*ai.Result, error) {
		onDelta(ai.Delta{Text: "thinking about"})
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	events, unsubscribe := f.hub.Subscribe()
	defer unsubscribe()

	resp, _ := f.do(t, http.MethodPost, "/api/steps", runStepRequest{StepID: "s3", Prompt: "go", Profile: "fast"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-started

	resp, _ = f.do(t, http.MethodDelete, "/api/steps/s3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	finished := waitFor(t, events, EventStepFinished)
	assert.Equal(t, stepCancelled, finished.Step.Status)

	resp, _ = f.do(t, http.MethodDelete, "/api/steps/s3", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	list, err := f.snapshots.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func waitFor(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestWebSocketStreamsMessageEvents(t *testing.T) {
	f := newFixture(t, replyWith("streamed"))

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade, give the handler a moment
	require.Eventually(t, func() bool {
		f.hub.mu.RLock()
		defer f.hub.mu.RUnlock()
		return len(f.hub.subscribers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := f.do(t, http.MethodPost, "/api/steps?wait=true", runStepRequest{StepID: "s4", Prompt: "go", Profile: "fast"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []EventType
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for len(types) == 0 || types[len(types)-1] != EventStepFinished {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		types = append(types, e.Type)
		if e.Type == EventMessageUpdated && e.Message.Status == step.StatusDone {
			assert.Equal(t, "streamed", e.Message.Text)
		}
	}
	assert.Equal(t, []EventType{EventMessageCreated, EventMessageUpdated, EventMessageUpdated, EventStepFinished}, types)
}

func TestHub_NoticesAndUnsubscribe(t *testing.T) {
	hub := NewHub()
	events, unsubscribe := hub.Subscribe()

	hub.Notify(step.Notice{Kind: step.NoticeRetry, StepID: "s", Attempt: 1, Err: errors.New("boom")})
	e := <-events
	assert.Equal(t, EventNotice, e.Type)
	assert.Equal(t, "boom", e.Notice.Error)

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)
	hub.Publish(Event{Type: EventNotice})
}
