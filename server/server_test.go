package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/agent"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/observability"
	"github.com/stancld/rossum-agents-sub001/runner"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/tool"
	"github.com/stancld/rossum-agents-sub001/tool/builtin"
)

func newTestServer(t *testing.T, m model.Model) (*Server, *runner.Runner) {
	t.Helper()

	reg := tool.NewRegistry()
	reg.MustRegister(builtin.TaskTools()...)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	a := agent.New(m, reg, func(o *agent.Options) { o.EnableStreaming = false })
	r := runner.New(a, nil, func(o *runner.Options) {
		o.OutputRoot = t.TempDir()
		o.WatchInterval = 10 * time.Millisecond
		o.KeepaliveInterval = 0
		o.Metrics = metrics
	})

	return New(r, func(o *Options) { o.Gatherer = registry }), r
}

func blockingModel() *model.MockModel {
	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(ctx context.Context, _ model.Request) (model.Response, error) {
		<-ctx.Done()
		return model.Response{}, ctx.Err()
	})
	return m
}

func postMessage(t *testing.T, h http.Handler, id, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+id+"/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestMessage_StreamsRun(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(
		model.ToolCallResponse("Planning.", core.ToolCall{ID: "c1", Name: builtin.CreateTaskName, Arguments: map[string]any{"subject": "1. Inspect queues"}}),
		model.TextResponse("All done."),
	)

	s, _ := newTestServer(t, m)

	rec := postMessage(t, s.Handler(), "conv", `{"prompt":"inspect"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()

	assert.Contains(t, body, "event: tool_start")

	// Side events are written by the tool itself, so they only order
	// against steps emitted after the tool returned.
	order := []string{
		"event: task_snapshot",
		"event: tool_result",
		"event: final_answer",
		"event: done",
	}
	last := -1
	for _, marker := range order {
		idx := strings.Index(body, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %s", marker)
		assert.Greater(t, idx, last, "%s out of order", marker)
		last = idx
	}

	assert.Contains(t, body, `"outcome":"completed"`)
	assert.Contains(t, body, "1. Inspect queues")
}

func TestMessage_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, blockingModel())

	rec := postMessage(t, s.Handler(), "conv", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMessage(t, s.Handler(), "conv", `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_ConflictWhileActive(t *testing.T) {
	s, r := newTestServer(t, blockingModel())

	run, err := r.StartRun(context.Background(), "conv", "hello")
	require.NoError(t, err)

	rec := postMessage(t, s.Handler(), "conv", `{"prompt":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "event:")

	require.True(t, r.CancelRun("conv"))
	for range run.Events() {
	}
	assert.ErrorIs(t, run.Wait(), context.Canceled)
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, *memory.AgentMemory, session.Metadata) error {
	return nil
}

func (failingStore) Load(context.Context, string) (*memory.AgentMemory, session.Metadata, error) {
	return nil, session.Metadata{}, errors.New("disk unavailable")
}

func (failingStore) Delete(context.Context, string) error { return nil }

func TestMessage_StartFailureIsNotStreamed(t *testing.T) {
	a := agent.New(blockingModel(), tool.NewRegistry(), func(o *agent.Options) { o.EnableStreaming = false })
	r := runner.New(a, failingStore{}, func(o *runner.Options) {
		o.OutputRoot = t.TempDir()
		o.KeepaliveInterval = 0
	})
	s := New(r)

	rec := postMessage(t, s.Handler(), "conv", `{"prompt":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "disk unavailable")
	assert.False(t, r.Active("conv"))
}

func TestCancel_EndsStream(t *testing.T) {
	s, r := newTestServer(t, blockingModel())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/v1/conversations/conv/messages", "application/json", strings.NewReader(`{"prompt":"hello"}`))
		if err != nil {
			bodyCh <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		bodyCh <- string(b)
	}()

	require.Eventually(t, func() bool { return r.Active("conv") }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/v1/conversations/conv/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["cancelled"])

	select {
	case body := <-bodyCh:
		assert.Contains(t, body, "event: done")
		assert.Contains(t, body, `"outcome":"cancelled"`)
		assert.NotContains(t, body, "event: error")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}

	resp2, err := http.Post(ts.URL+"/api/v1/conversations/conv/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&out))
	assert.False(t, out["cancelled"])
}

func TestDisconnect_CancelsRun(t *testing.T) {
	s, r := newTestServer(t, blockingModel())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/conversations/conv/messages", bytes.NewBufferString(`{"prompt":"hello"}`))
	require.NoError(t, err)

	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()

	require.Eventually(t, func() bool { return r.Active("conv") }, 2*time.Second, 5*time.Millisecond)

	cancel()

	assert.Eventually(t, func() bool { return !r.Active("conv") }, 2*time.Second, 10*time.Millisecond)
}

func TestConversation_GetAndDelete(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("hi"))

	s, _ := newTestServer(t, m)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/conv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, postMessage(t, h, "conv", `{"prompt":"hello there"}`).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/conv", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ID       string `json:"id"`
		Metadata struct {
			Title string `json:"title"`
			Turns int    `json:"turns"`
		} `json:"metadata"`
		Active bool `json:"active"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "conv", got.ID)
	assert.Equal(t, "hello there", got.Metadata.Title)
	assert.Equal(t, 1, got.Metadata.Turns)
	assert.False(t, got.Active)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/conv", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/conv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("hi"))

	s, _ := newTestServer(t, m)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.Equal(t, http.StatusOK, postMessage(t, h, "conv", `{"prompt":"hello"}`).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rossum_agent_runs_total{outcome="completed"} 1`)
}

func TestCredentialsFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Nil(t, credentialsFrom(req, MessageRequest{}))

	req.Header.Set("Authorization", "Bearer tok-1")
	assert.Equal(t, &core.Credentials{APIToken: "tok-1", BaseURL: "https://x"}, credentialsFrom(req, MessageRequest{BaseURL: "https://x"}))
}
