package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/logging"
)

// JSON-RPC 2.0 types

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// server is the Consoom MCP server. Tools act on behalf of a single user.
type server struct {
	engine *consoom.Engine
	userID string
	poller *poller // non-nil when -poll is set
	now    func() time.Time
}

func newServer(engine *consoom.Engine, userID string) *server {
	return &server{engine: engine, userID: userID, now: time.Now}
}

// run serves newline-delimited JSON-RPC from in, writing responses to out.
func (s *server) run(in io.Reader, out io.Writer) error {
	logging.Info().Str("user_id", s.userID).Msg("consoom-mcp starting")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			logging.Warn().Err(err).Msg("invalid json-rpc")
			continue
		}

		// Notifications have no ID and get no response.
		if req.ID == nil || string(req.ID) == "null" {
			logging.Debug().Str("method", req.Method).Msg("notification")
			continue
		}

		resp := s.handleRequest(req)
		respBytes, err := json.Marshal(resp)
		if err != nil {
			logging.Error().Err(err).Msg("marshal response")
			continue
		}
		fmt.Fprintf(out, "%s\n", respBytes)
	}

	return scanner.Err()
}

func (s *server) handleRequest(req jsonRPCRequest) jsonRPCResponse {
	resp := jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "consoom",
				"version": "0.1.0",
			},
		}
	case "tools/list":
		resp.Result = s.handleToolsList()
	case "tools/call":
		resp.Result = s.handleToolsCall(req.Params)
	case "ping":
		resp.Result = map[string]any{}
	default:
		resp.Error = &rpcError{
			Code:    -32601,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}

	return resp
}

func yearProperty() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Calendar year (default: the current year)",
	}
}

func (s *server) handleToolsList() any {
	return map[string]any{
		"tools": []map[string]any{
			{
				"name":        "sync_now",
				"description": "Pull the latest Letterboxd and Goodreads activity now. Returns per-account results with the number of new log entries.",
				"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
			},
			{
				"name":        "accounts_list",
				"description": "List the linked Letterboxd and Goodreads accounts and when each was last synced.",
				"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
			},
			{
				"name":        "year_progress",
				"description": "Movies watched and books read in a year compared with the yearly goals.",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{"year": yearProperty()},
				},
			},
			{
				"name":        "media_for_year",
				"description": "Every film and book logged in a year, newest first.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"year": yearProperty(),
						"type": map[string]any{
							"type":        "string",
							"enum":        []string{"movie", "book"},
							"description": "Only return this media type (default: both)",
						},
					},
				},
			},
			{
				"name":        "media_recent",
				"description": "The most recently logged films and books across all years.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum entries to return (default 10)",
						},
					},
				},
			},
		},
	}
}

func (s *server) handleToolsCall(params json.RawMessage) any {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(params, &call); err != nil {
		return mcpError("invalid tool call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch call.Name {
	case "sync_now":
		return s.handleSyncNow(ctx)
	case "accounts_list":
		return s.handleAccountsList(ctx)
	case "year_progress":
		return s.handleYearProgress(ctx, call.Arguments)
	case "media_for_year":
		return s.handleMediaForYear(ctx, call.Arguments)
	case "media_recent":
		return s.handleMediaRecent(ctx, call.Arguments)
	default:
		return mcpError("unknown tool: %s", call.Name)
	}
}

// handleSyncNow runs the shared poll cycle when the poller is enabled, and
// a sync of this user's accounts otherwise.
func (s *server) handleSyncNow(ctx context.Context) any {
	var (
		report *consoom.SyncReport
		err    error
	)
	if s.poller != nil {
		report, err = s.poller.poll(ctx)
	} else {
		report, err = s.engine.SyncUser(ctx, s.userID)
	}
	if err != nil {
		return mcpError("sync failed: %v", err)
	}
	logging.Info().Int("total", report.Total).Int("success", report.Success).Int("failed", report.Failed).
		Msg("sync_now")
	return mcpJSON(report)
}

func (s *server) handleAccountsList(ctx context.Context) any {
	accounts, err := s.engine.GetLinkedAccounts(ctx, s.userID)
	if err != nil {
		return mcpError("list accounts: %v", err)
	}
	if len(accounts) == 0 {
		return mcpText("No linked accounts.")
	}
	return mcpJSON(accounts)
}

func (s *server) yearArg(year *int) int {
	if year == nil || *year == 0 {
		return s.now().Year()
	}
	return *year
}

func (s *server) handleYearProgress(ctx context.Context, args json.RawMessage) any {
	var params yearInput
	if err := unmarshalArgs(args, &params); err != nil {
		return mcpError("%v", err)
	}
	progress, err := s.engine.GetYearProgress(ctx, s.userID, s.yearArg(params.Year))
	if err != nil {
		return mcpError("year progress: %v", err)
	}
	return mcpJSON(progress)
}

func (s *server) handleMediaForYear(ctx context.Context, args json.RawMessage) any {
	var params mediaForYearInput
	if err := unmarshalArgs(args, &params); err != nil {
		return mcpError("%v", err)
	}
	var mediaType consoom.MediaType
	if params.Type != nil {
		mediaType = consoom.MediaType(*params.Type)
	}
	entries, err := s.engine.GetMediaForYear(ctx, s.userID, s.yearArg(params.Year), mediaType)
	if err != nil {
		return mcpError("media for year: %v", err)
	}
	return mcpJSON(entries)
}

func (s *server) handleMediaRecent(ctx context.Context, args json.RawMessage) any {
	var params mediaRecentInput
	if err := unmarshalArgs(args, &params); err != nil {
		return mcpError("%v", err)
	}
	limit := 0
	if params.Limit != nil {
		limit = *params.Limit
	}
	entries, err := s.engine.GetRecentMedia(ctx, s.userID, limit)
	if err != nil {
		return mcpError("recent media: %v", err)
	}
	return mcpJSON(entries)
}

// --- MCP response helpers ---

func mcpText(format string, args ...any) any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": fmt.Sprintf(format, args...)},
		},
	}
}

func mcpJSON(data any) any {
	b, err := json.Marshal(data)
	if err != nil {
		return mcpError("marshal response: %v", err)
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(b)},
		},
	}
}

func mcpError(format string, args ...any) any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": fmt.Sprintf("Error: "+format, args...)},
		},
		"isError": true,
	}
}
