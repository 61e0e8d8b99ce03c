package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/pkg/adapters/scripted"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/observability"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reply = process.Func("reply", func(ctx context.Context, rt *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
	memory, _, err := process.Do(ctx, rt, memory, cognitive.ExternalDialog("answer"))
	if err != nil {
		return process.Outcome{}, err
	}
	return process.Done(memory), nil
})

type fixture struct {
	soul    *anima.Soul
	proc    *scripted.Processor
	server  *Server
	streams *StreamManager
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	proc := scripted.New()
	streams := NewStreamManager()
	soul, err := anima.New(context.Background(), domain.Blueprint{Name: "Samantha", Content: "You are Samantha."}, reply,
		anima.WithProcessor(proc),
		anima.WithActionSink(streams),
	)
	require.NoError(t, err)
	opts = append([]Option{WithStreams(streams)}, opts...)
	return fixture{soul: soul, proc: proc, server: NewServer(soul, opts...), streams: streams}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func TestPerceive(t *testing.T) {
	f := newFixture(t)
	f.proc.Enqueue(scripted.Text("Hello Ada!"))
	h := f.server.Handler()

	w := do(t, h, http.MethodPost, "/perceive", `{"text":"Hi","speaker":"Ada"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp runner.RichResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Samantha", resp.Soul)
	assert.Equal(t, "Hello Ada!", resp.Reply)
	assert.Equal(t, []string{"reply"}, resp.Path)
	require.NotNil(t, resp.Diff)
	assert.Equal(t, 1, resp.Diff.From)
	assert.Len(t, resp.Diff.Appended, 2)
	assert.Equal(t, "Ada", resp.Diff.Appended[0].Name())
}

func TestPerceive_BadRequests(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/perceive", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/perceive", `{"text":"   "}`).Code)

	t.Setenv(runner.EnvMaxInputSize, "4")
	w := do(t, h, http.MethodPost, "/perceive", `{"text":"far too long"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum allowed size")
	assert.Empty(t, f.proc.Requests())
}

func TestPerceive_ProcessorFailure(t *testing.T) {
	f := newFixture(t)
	f.proc.Enqueue(scripted.Fail("model offline"))

	w := do(t, f.server.Handler(), http.MethodPost, "/perceive", `{"text":"Hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "model offline")
	assert.Equal(t, 1, f.soul.Memory().Len())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ReentrancyError{Soul: "s"}, http.StatusConflict},
		{fmt.Errorf("x: %w", &domain.ValidationError{Step: "d"}), http.StatusBadGateway},
		{&domain.ProcessorError{Step: "d", Cause: errors.New("boom")}, http.StatusBadGateway},
		{&domain.ProcessorError{Step: "d", Cause: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMemoryRoutes(t *testing.T) {
	f := newFixture(t)
	f.proc.Enqueue(scripted.Text("Hello!"))
	h := f.server.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/perceive", `{"text":"Hi"}`).Code)

	w := do(t, h, http.MethodGet, "/memory", "")
	require.Equal(t, http.StatusOK, w.Code)
	var memory domain.WorkingMemory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &memory))
	assert.Equal(t, 3, memory.Len())

	w = do(t, h, http.MethodGet, "/memory?recent=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Total   int                  `json:"total"`
		Entries []domain.MemoryEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Equal(t, 3, recent.Total)
	require.Len(t, recent.Entries, 1)
	assert.Equal(t, domain.RoleAssistant, recent.Entries[0].Role())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/memory?recent=-1", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/memory", "").Code)
	assert.Equal(t, 1, f.soul.Memory().Len())
}

func TestFactRoutes(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/facts/userName", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/facts/userName", `"Ada"`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/facts/userName", `{`).Code)

	w := do(t, h, http.MethodGet, "/facts/userName", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"userName","value":"Ada"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/facts", "")
	assert.JSONEq(t, `{"userName":"Ada"}`, w.Body.String())

	name, _ := f.soul.Facts().GetString("userName")
	assert.Equal(t, "Ada", name)
}

func TestPutFact_RefusedWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := process.Func("slow", func(_ context.Context, _ *process.Runtime, memory domain.WorkingMemory, _ process.Params) (process.Outcome, error) {
		close(entered)
		<-release
		return process.Done(memory), nil
	})
	soul, err := anima.New(context.Background(), domain.Blueprint{Name: "Samantha", Content: "persona"}, slow,
		anima.WithProcessor(scripted.New()))
	require.NoError(t, err)
	h := NewServer(soul).Handler()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = soul.Perceive(context.Background(), anima.Perception{Text: "hi"})
	}()
	<-entered

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPut, "/facts/userName", `"Ada"`).Code)
	_, ok := soul.Facts().Get("userName")
	assert.False(t, ok, "refused write must not reach the store")

	close(release)
	<-done
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/facts/userName", `"Ada"`).Code)
}

func TestInfoAndHealth(t *testing.T) {
	h := newFixture(t).server.Handler()

	assert.JSONEq(t, `{"status":"ok"}`, do(t, h, http.MethodGet, "/health", "").Body.String())

	var info map[string]string
	require.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/info", "").Body.Bytes(), &info))
	assert.Equal(t, "Samantha", info["soul"])
	assert.Equal(t, strings.TrimSpace(anima.Version), info["version"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodOptions, "/perceive", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code, "metrics are opt-in")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	proc := scripted.New(scripted.Text("Hello!"))
	soul, err := anima.New(context.Background(), domain.Blueprint{Name: "Samantha", Content: "persona"}, reply,
		anima.WithProcessor(proc),
		anima.WithLifecycleHooks(metrics.Hooks()),
	)
	require.NoError(t, err)
	h := NewServer(soul, WithMetrics(reg)).Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/perceive", `{"text":"Hi"}`).Code)

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anima_perceptions_total")
	assert.Contains(t, w.Body.String(), "anima_step_duration_seconds")
}

func TestSubscribeEvents(t *testing.T) {
	f := newFixture(t)
	f.proc.Enqueue(scripted.Stream("Hel", "lo"))
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?watch=action,diff", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.Eventually(t, func() bool { return f.streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	post, err := srv.Client().Post(srv.URL+"/perceive", "application/json", bytes.NewBufferString(`{"text":"Hi"}`))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	var events []string
	for lines.Scan() {
		line := lines.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == EventDiff {
				break
			}
		}
	}
	assert.Equal(t, []string{EventAction, EventAction, EventDiff}, events)
}
