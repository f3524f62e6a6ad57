package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/larder/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"larder_status":      handleStatus,
	"larder_cache_stats": handleCacheStats,
	"larder_queue_list":  handleQueueList,
	"larder_replay":      handleReplay,
	"larder_sync_log":    handleSyncLog,
	"larder_cached_data": handleCachedData,
}

func noArgs() Schema {
	return Schema{Type: "object", Properties: map[string]Property{}}
}

var allTools = []Tool{
	{
		Name:        "larder_status",
		Description: "Show the dispatcher lifecycle state, cache version, queued write count and connected clients.",
		InputSchema: noArgs(),
	},
	{
		Name:        "larder_cache_stats",
		Description: "Show entry counts per cache partition and hit/miss counters.",
		InputSchema: noArgs(),
	},
	{
		Name:        "larder_queue_list",
		Description: "List writes waiting to be replayed, oldest first.",
		InputSchema: noArgs(),
	},
	{
		Name:        "larder_replay",
		Description: "Replay every queued write now and report how many were delivered.",
		InputSchema: noArgs(),
	},
	{
		Name:        "larder_sync_log",
		Description: "Search the log of replay attempts.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"outcome": {
					Type:        "string",
					Description: "Filter by outcome (optional)",
					Enum:        []string{models.OutcomeSucceeded, models.OutcomeFailed},
				},
				"since": {Type: "string", Description: "Start date in YYYY-MM-DD format (optional)"},
				"limit": {Type: "integer", Description: "Maximum rows to return (default 50)"},
			},
		},
	},
	{
		Name:        "larder_cached_data",
		Description: "Read the JSON document stored under a food-data key.",
		InputSchema: Schema{
			Type:       "object",
			Properties: map[string]Property{"key": {Type: "string", Description: "Key under /api/food-data/, e.g. cached"}},
			Required:   []string{"key"},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []TextContent{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []TextContent{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleStatus(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	st, err := s.dispatcher.Status(ctx)
	if err != nil {
		return errorResult("Error fetching status: " + err.Error())
	}
	return textResult(formatStatus(st))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleQueueList(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.queue == nil {
		return textResult("Write queue is not configured.")
	}
	writes, err := s.queue.List(ctx)
	if err != nil {
		return errorResult("Error listing queue: " + err.Error())
	}
	return textResult(formatQueue(writes))
}

func handleReplay(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	res, err := s.dispatcher.Replay(ctx)
	if err != nil {
		return errorResult("Error replaying queue: " + err.Error())
	}
	return textResult(formatReplay(res))
}

type syncLogArgs struct {
	Outcome string `json:"outcome"`
	Since   string `json:"since"`
	Limit   int    `json:"limit"`
}

func handleSyncLog(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.attempts == nil {
		return textResult("Sync logging is not configured.")
	}
	var args syncLogArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.SyncLogQueryOpts{Outcome: args.Outcome, Limit: args.Limit}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	attempts, err := s.attempts.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching sync log: " + err.Error())
	}
	return textResult(formatAttempts(attempts))
}

type cachedDataArgs struct {
	Key string `json:"key"`
}

func handleCachedData(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args cachedDataArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Key == "" {
		return errorResult("key is required")
	}

	payload, _ := json.Marshal(args.Key)
	data, err := s.dispatcher.HandleMessage(ctx, models.Message{
		Type:    models.MessageGetCachedData,
		Payload: payload,
	})
	if err != nil {
		return errorResult("Error reading cached data: " + err.Error())
	}
	if data == nil {
		return textResult("No cached data for " + args.Key + ".")
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errorResult("Error encoding cached data: " + err.Error())
	}
	return textResult(string(out))
}
