package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/chunkstore/internal/config"
	"github.com/nickcecere/chunkstore/internal/embeddings"
	"github.com/nickcecere/chunkstore/internal/indexer"
	"github.com/nickcecere/chunkstore/internal/search"
	"github.com/nickcecere/chunkstore/internal/store"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	ServerName    = "chunkstore"
	ServerVersion = "1.0.0"
)

// Server answers MCP requests, one JSON object per line.
type Server struct {
	store    store.Store
	searcher *search.Searcher
	indexer  *indexer.Indexer
	cfg      *config.Config
	tools    []tool

	reader *bufio.Reader
	writer io.Writer

	initialized bool
}

// NewServer creates a server reading stdin and writing stdout.
func NewServer(st store.Store, emb embeddings.Service, cfg *config.Config) *Server {
	s := &Server{
		store:    st,
		searcher: search.New(st, emb),
		indexer:  indexer.New(st, emb, cfg),
		cfg:      cfg,
		reader:   bufio.NewReader(os.Stdin),
		writer:   os.Stdout,
	}
	s.tools = s.buildTools()
	return s
}

// Indexer returns the indexer behind the index tool, so a background watcher can share its
// run lock.
func (s *Server) Indexer() *indexer.Indexer {
	return s.indexer
}

// Run processes requests until stdin closes or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for ctx.Err() == nil {
		line, readErr := s.reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			s.dispatch(ctx, line)
		}

		switch {
		case errors.Is(readErr, io.EOF):
			log.Info("MCP server received EOF, shutting down")
			return nil
		case readErr != nil:
			return fmt.Errorf("failed to read request: %w", readErr)
		}
	}
	return ctx.Err()
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.reply(errorResponse(nil, ErrorCodeParse, "Parse error", err.Error()))
		return
	}
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	if resp, ok := s.handle(ctx, req); ok {
		s.reply(resp)
	}
}

// handle returns the response to req, or false for notifications.
func (s *Server) handle(ctx context.Context, req Request) (Response, bool) {
	switch req.Method {
	case "initialize":
		var p InitializeParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return errorResponse(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error()), true
		}
		return resultResponse(req.ID, s.initialize(p)), true

	case "initialized", "notifications/initialized":
		s.initialized = true
		log.Info("MCP server initialized")
		return Response{}, false

	case "ping":
		return resultResponse(req.ID, map[string]any{}), true

	case "tools/list":
		defs := make([]Tool, len(s.tools))
		for i, t := range s.tools {
			defs[i] = t.Tool
		}
		return resultResponse(req.ID, &ListToolsResult{Tools: defs}), true

	case "tools/call":
		var p CallToolParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return errorResponse(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error()), true
		}
		return resultResponse(req.ID, s.callTool(ctx, p)), true
	}

	if req.ID == nil {
		return Response{}, false
	}
	return errorResponse(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method), true
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (s *Server) initialize(p InitializeParams) *InitializeResult {
	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)
	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: ServerName, Version: ServerVersion},
	}
}

// callTool runs a tool. Tool failures are reported in the result, not as RPC errors.
func (s *Server) callTool(ctx context.Context, p CallToolParams) *CallToolResult {
	log.Debug("Calling tool", "name", p.Name)

	for _, t := range s.tools {
		if t.Name != p.Name {
			continue
		}
		text, err := t.call(ctx, p.Arguments)
		if err != nil {
			return textResult("Error: "+err.Error(), true)
		}
		return textResult(text, false)
	}
	return textResult(fmt.Sprintf("Unknown tool: %s", p.Name), true)
}

// reply writes resp as one line.
func (s *Server) reply(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}
