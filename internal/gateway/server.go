// Package gateway exposes the operation registry over MCP. The advertised
// tool set follows the registry's enabled groups: a background goroutine
// consumes the registry change signal and re-syncs the tools, which lets
// connected clients pick up tools/list_changed notifications.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"govgate/internal/config"
	"govgate/internal/dispatch"
	"govgate/internal/registry"
	"govgate/pkg/logging"
)

// Config controls how the gateway serves.
type Config struct {
	Name      string
	Version   string
	Transport string // config.TransportStdio or config.TransportSSE
	Host      string
	Port      int
}

// Server is the MCP-facing gateway process. One gateway process serves one
// agent session; the session id is minted at construction.
type Server struct {
	config     Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	sessionID  string

	server    *server.MCPServer
	sseServer *server.SSEServer

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex

	// updates receives one token per registry change; buffered so the
	// registry callback never blocks a mutation.
	updates chan struct{}

	// activeTools tracks what is currently advertised so syncs only
	// add and delete the difference.
	activeTools map[string]struct{}
}

// New creates a gateway server over the given registry and dispatcher.
func New(cfg Config, reg *registry.Registry, dispatcher *dispatch.Dispatcher) *Server {
	if cfg.Name == "" {
		cfg.Name = "govgate"
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}

	return &Server{
		config:      cfg,
		registry:    reg,
		dispatcher:  dispatcher,
		sessionID:   uuid.New().String(),
		updates:     make(chan struct{}, 1),
		activeTools: make(map[string]struct{}),
	}
}

// SessionID returns the session this gateway process records under.
func (s *Server) SessionID() string {
	return s.sessionID
}

// Start brings up the MCP server on the configured transport and begins
// following registry changes.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("gateway server already started")
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	s.server = server.NewMCPServer(
		s.config.Name,
		s.config.Version,
		server.WithToolCapabilities(true),
	)

	s.registry.SetOnChange(s.notifyChange)

	s.wg.Add(1)
	go s.monitorRegistryUpdates()

	s.mu.Unlock()

	s.syncTools()

	switch s.config.Transport {
	case config.TransportStdio:
		logging.Info("Gateway", "Serving MCP over stdio (session %s)", s.sessionID)
		mcpServer := s.server
		go func() {
			if err := server.ServeStdio(mcpServer); err != nil {
				logging.Error("Gateway", err, "Stdio server error")
			}
		}()
	case config.TransportSSE:
		addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
		baseURL := fmt.Sprintf("http://%s", addr)

		s.mu.Lock()
		s.sseServer = server.NewSSEServer(
			s.server,
			server.WithBaseURL(baseURL),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		s.mu.Unlock()

		logging.Info("Gateway", "Serving MCP over SSE on %s (session %s)", addr, s.sessionID)
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Gateway", err, "SSE server error")
			}
		}()
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.Transport)
	}

	return nil
}

// Stop shuts the gateway down and waits for background routines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		return fmt.Errorf("gateway server not started")
	}

	logging.Info("Gateway", "Stopping gateway server")

	cancelFunc := s.cancelFunc
	sseServer := s.sseServer
	s.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}

	if sseServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Gateway", err, "Error shutting down SSE server")
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	s.server = nil
	s.sseServer = nil
	s.mu.Unlock()

	return nil
}

// Endpoint returns the SSE endpoint URL. Only meaningful for the SSE
// transport.
func (s *Server) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/sse", s.config.Host, s.config.Port)
}

// notifyChange is the registry change callback. Non-blocking: a pending
// token already covers any number of coalesced changes.
func (s *Server) notifyChange() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Server) monitorRegistryUpdates() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.updates:
			s.syncTools()
		}
	}
}

// syncTools reconciles the advertised tool set with the registry's enabled
// descriptors, adding and deleting only the difference so clients get a
// single list-changed notification per direction.
func (s *Server) syncTools() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return
	}

	desired := s.registry.EnabledDescriptors()
	desiredNames := make(map[string]struct{}, len(desired))

	var toAdd []server.ServerTool
	for _, descriptor := range desired {
		name := descriptor.Name()
		desiredNames[name] = struct{}{}
		if _, active := s.activeTools[name]; !active {
			toAdd = append(toAdd, server.ServerTool{
				Tool:    descriptor.Tool,
				Handler: s.makeToolHandler(name),
			})
		}
	}

	var toRemove []string
	for name := range s.activeTools {
		if _, wanted := desiredNames[name]; !wanted {
			toRemove = append(toRemove, name)
		}
	}

	if len(toRemove) > 0 {
		s.server.DeleteTools(toRemove...)
		for _, name := range toRemove {
			delete(s.activeTools, name)
		}
	}
	if len(toAdd) > 0 {
		s.server.AddTools(toAdd...)
		for _, tool := range toAdd {
			s.activeTools[tool.Tool.Name] = struct{}{}
		}
	}

	logging.Debug("Gateway", "Advertised tool set synced: %d tools (+%d, -%d)",
		len(desiredNames), len(toAdd), len(toRemove))
}

// makeToolHandler adapts one operation to the MCP tool handler signature.
// All outcomes flow through the dispatcher, so gating and telemetry apply
// uniformly.
func (s *Server) makeToolHandler(opName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]interface{})
		if req.Params.Arguments != nil {
			if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
				args = argsMap
			}
		}

		envelope := s.dispatcher.Dispatch(ctx, s.sessionID, opName, args)
		if !envelope.Success {
			return mcp.NewToolResultError(envelope.Message), nil
		}
		return mcp.NewToolResultText(renderEnvelope(envelope)), nil
	}
}

// renderEnvelope turns a success envelope into the tool result text: the
// message first, then the structured payload as JSON when present.
func renderEnvelope(envelope dispatch.Envelope) string {
	text := envelope.Message
	if envelope.Payload == nil {
		return text
	}

	encoded, err := json.MarshalIndent(envelope.Payload, "", "  ")
	if err != nil {
		return text
	}
	if text == "" {
		return string(encoded)
	}
	return text + "\n\n" + string(encoded)
}
