// Package mcp exposes larder's admin surface as a Model Context Protocol
// server over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/pario-ai/larder/pkg/dispatcher"
	"github.com/pario-ai/larder/pkg/models"
)

// Dispatcher is the part of the dispatcher the admin tools drive.
type Dispatcher interface {
	Status(ctx context.Context) (dispatcher.Status, error)
	Replay(ctx context.Context) (dispatcher.ReplayResult, error)
	HandleMessage(ctx context.Context, msg models.Message) (any, error)
}

// CacheStatter provides cache statistics without coupling to a concrete store.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// QueueLister lists queued writes.
type QueueLister interface {
	List(ctx context.Context) ([]models.QueuedWrite, error)
}

// AttemptQuerier searches the sync attempt log.
type AttemptQuerier interface {
	Query(ctx context.Context, opts models.SyncLogQueryOpts) ([]models.SyncAttempt, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	dispatcher Dispatcher
	cache      CacheStatter
	queue      QueueLister
	attempts   AttemptQuerier
	version    string
}

// New creates a Server. cache, queue and attempts may be nil; the matching
// tools then report that the component is not configured.
func New(d Dispatcher, cache CacheStatter, queue QueueLister, attempts AttemptQuerier, version string) *Server {
	return &Server{
		dispatcher: d,
		cache:      cache,
		queue:      queue,
		attempts:   attempts,
		version:    version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.reply(req, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      Implementation{Name: "larder", Version: s.version},
			Capabilities:    ServerCapabilities{Tools: &struct{}{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return s.reply(req, map[string]any{})
	case "tools/list":
		return s.reply(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) reply(req *Request, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return s.reply(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return s.reply(req, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("mcp: marshal error: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		log.Printf("mcp: write error: %v", err)
	}
}
