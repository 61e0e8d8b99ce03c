package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/ollama"
	"github.com/aretw0/anima/pkg/cognitive"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newServer(t *testing.T, handle func(w http.ResponseWriter, req ollama.ChatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollama.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handle(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Resolved(t *testing.T) {
	var got ollama.ChatRequest
	srv := newServer(t, func(w http.ResponseWriter, req ollama.ChatRequest) {
		got = req
		_ = json.NewEncoder(w).Encode(ollama.ChatResponse{Message: ollama.Message{Role: "assistant", Content: "hello"}, Done: true})
	})

	client := ollama.New(srv.URL, ollama.WithModel(domain.ModelQuality, "llama3.1:70b"))
	resp, err := client.Process(context.Background(), ports.Request{
		Step:     "reply",
		Messages: []domain.MemoryEntry{domain.System("persona"), domain.User("hi", domain.WithName("Ada"))},
		Model:    domain.ModelQuality,
	})
	require.NoError(t, err)
	assert.False(t, resp.IsStream())
	assert.Equal(t, "hello", resp.Text)

	assert.Equal(t, "llama3.1:70b", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, []ollama.Message{{Role: "system", Content: "persona"}, {Role: "user", Content: "Ada: hi"}}, got.Messages)
}

func TestClient_StructuredPassesFormat(t *testing.T) {
	var got ollama.ChatRequest
	srv := newServer(t, func(w http.ResponseWriter, req ollama.ChatRequest) {
		got = req
		_ = json.NewEncoder(w).Encode(ollama.ChatResponse{Message: ollama.Message{Content: `{"decision":"learning"}`}, Done: true})
	})

	client := ollama.New(srv.URL)
	exec := cognitive.NewExecutor(client)
	step, err := cognitive.Decision("what next", []string{"learning", "teaching"})
	require.NoError(t, err)

	memory := domain.NewWorkingMemory("Samantha", domain.System("persona"))
	_, label, err := cognitive.Run(context.Background(), exec, memory, step)
	require.NoError(t, err)
	assert.Equal(t, "learning", label)

	format, ok := got.Format.(map[string]any)
	require.True(t, ok, "schema descriptor is sent as format")
	assert.Equal(t, "object", format["type"])
	assert.Equal(t, ollama.DefaultModel, got.Model)
}

func TestClient_Streaming(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, req ollama.ChatRequest) {
		if !req.Stream {
			http.Error(w, "expected stream", http.StatusBadRequest)
			return
		}
		for _, frag := range []string{"Hi ", "there"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", frag)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})

	var spoken []string
	sink := domain.ActionSinkFunc(func(_ context.Context, a domain.Action) error {
		spoken = append(spoken, a.Text)
		return nil
	})
	exec := cognitive.NewExecutor(ollama.New(srv.URL), cognitive.WithActionSink(sink))

	memory := domain.NewWorkingMemory("Samantha", domain.System("persona"))
	_, said, err := cognitive.Run(context.Background(), exec, memory, cognitive.ExternalDialog("greet"))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", said)
	assert.Equal(t, []string{"Hi ", "there"}, spoken)
}

func TestClient_StreamErrorChunk(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ ollama.ChatRequest) {
		fmt.Fprintln(w, `{"message":{"content":"Hi"},"done":false}`)
		fmt.Fprintln(w, `{"error":"model crashed"}`)
	})

	resp, err := ollama.New(srv.URL).Process(context.Background(), ports.Request{Stream: true})
	require.NoError(t, err)
	defer resp.Stream.Close()

	frag, err := resp.Stream.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi", frag)

	_, err = resp.Stream.Recv(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestClient_HTTPError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ ollama.ChatRequest) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := ollama.New(srv.URL).Process(context.Background(), ports.Request{})
	assert.ErrorContains(t, err, "500")
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3.1"},{"name":" "},{"name":"qwen2"}]}`)
	}))
	defer srv.Close()

	client := ollama.New(srv.URL)
	require.NoError(t, client.Ping(context.Background()))

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 2)
	assert.Contains(t, models, "qwen2")
}
