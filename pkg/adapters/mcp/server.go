// Package mcp exposes a soul as a Model Context Protocol server: a perceive
// tool plus the working memory, the facts and the blueprint as resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/runner"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// Resource URIs.
const (
	MemoryURI    = "soul://memory"
	FactsURI     = "soul://facts"
	BlueprintURI = "soul://blueprint"
)

// Soul is the part of anima.Soul the MCP server drives.
type Soul interface {
	runner.Perceiver
	Reset(ctx context.Context) error
	Facts() *soulmemory.Store
	Blueprint() domain.Blueprint
}

// PerceiveArgs are the arguments of the perceive tool.
type PerceiveArgs struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// FactArgs are the arguments of the fact tools.
type FactArgs struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// Server wraps a soul and exposes it as an MCP Server.
type Server struct {
	soul      Soul
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option defines a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(soul Soul, opts ...Option) *Server {
	s := &Server{soul: soul}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.mcpServer = server.NewMCPServer("anima-mcp", strings.TrimSpace(anima.Version),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(fmt.Sprintf("Talk to %s with the perceive tool. Its memory and facts are readable as resources.", soul.Name())),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	perceiveTool := mcp.NewTool("perceive",
		mcp.WithDescription(fmt.Sprintf("Say something to %s and get the reply.", s.soul.Name())),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the user says")),
		mcp.WithString("speaker", mcp.Description("The user's name (optional)")),
		mcp.WithOutputSchema[runner.RichResponse](),
	)
	s.mcpServer.AddTool(perceiveTool, mcp.NewStructuredToolHandler(s.handlePerceive))

	s.mcpServer.AddTool(mcp.NewTool("reset_memory",
		mcp.WithDescription("Forget the conversation. Facts are kept."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.soul.Reset(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
		}
		return mcp.NewToolResultText("conversation reset"), nil
	})

	getFact := mcp.NewTool("get_fact",
		mcp.WithDescription("Read one durable fact of the soul."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Fact key")),
	)
	s.mcpServer.AddTool(getFact, mcp.NewStructuredToolHandler(s.handleGetFact))
}

func (s *Server) handlePerceive(ctx context.Context, request mcp.CallToolRequest, args PerceiveArgs) (runner.RichResponse, error) {
	clean, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("mcp perceive: input rejected", "err", err, "size", len(args.Text))
		return runner.RichResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	if strings.TrimSpace(clean) == "" {
		return runner.RichResponse{}, errors.New("text is required")
	}

	resp, err := runner.PerceiveAndRender(ctx, s.soul, anima.Perception{Text: clean, Speaker: args.Speaker})
	if err != nil {
		s.logger.Warn("mcp perceive failed", "soul", s.soul.Name(), "err", err)
		return runner.RichResponse{}, fmt.Errorf("perceive failed: %w", err)
	}
	return *resp, nil
}

func (s *Server) handleGetFact(ctx context.Context, request mcp.CallToolRequest, args FactArgs) (FactArgs, error) {
	value, ok := s.soul.Facts().Get(args.Key)
	if !ok {
		return FactArgs{}, fmt.Errorf("%w: %s", domain.ErrFactNotFound, args.Key)
	}
	return FactArgs{Key: args.Key, Value: value}, nil
}

func (s *Server) registerResources() {
	s.addJSONResource(MemoryURI, "Working memory", func() any { return s.soul.Memory() })
	s.addJSONResource(FactsURI, "Soul facts", func() any { return s.soul.Facts().Snapshot() })

	s.mcpServer.AddResource(mcp.NewResource(BlueprintURI, "Blueprint",
		mcp.WithMIMEType("text/markdown"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      BlueprintURI,
				MIMEType: "text/markdown",
				Text:     s.soul.Blueprint().Content,
			},
		}, nil
	})
}

func (s *Server) addJSONResource(uri, name string, read func() any) {
	s.mcpServer.AddResource(mcp.NewResource(uri, name,
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(read())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
