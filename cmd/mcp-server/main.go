package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openattribution/internal/analytics"
	"github.com/patrickwarner/openattribution/internal/logic"
	"github.com/patrickwarner/openattribution/internal/models"
	"github.com/patrickwarner/openattribution/internal/observability"
	"github.com/patrickwarner/openattribution/internal/storage"
)

// EvaluateVisitInput describes a page load to run through the campaign
// change rules without touching any stored state.
type EvaluateVisitInput struct {
	URL                      string            `json:"url"`
	Referrer                 string            `json:"referrer,omitempty"`
	Previous                 map[string]string `json:"previous,omitempty"`
	NewSession               bool              `json:"new_session,omitempty"`
	ExcludeReferrers         []string          `json:"exclude_referrers,omitempty"`
	ExcludeInternalReferrers string            `json:"exclude_internal_referrers,omitempty"` // "", "always" or "ifEmptyCampaign"
	ResetSession             bool              `json:"reset_session_on_new_campaign,omitempty"`
}

type EvaluateVisitOutput struct {
	Campaign     map[string]string        `json:"campaign"`
	NewCampaign  bool                     `json:"new_campaign"`
	ResetSession bool                     `json:"reset_session"`
	Mutation     *models.CampaignMutation `json:"mutation,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

type DecodeCookieInput struct {
	Value string `json:"value"`
}

type DecodeCookieOutput struct {
	JSON string `json:"json"`
}

type IdentifyEventsInput struct {
	DeviceID string `json:"device_id"`
}

// IdentifyEventSummary is an identify_events row with a formatted timestamp.
type IdentifyEventSummary struct {
	Timestamp string            `json:"timestamp"`
	SessionID int64             `json:"session_id"`
	Set       map[string]string `json:"set"`
	SetOnce   map[string]string `json:"set_once"`
	Unset     []string          `json:"unset"`
}

type IdentifyEventsOutput struct {
	Events []IdentifyEventSummary `json:"events"`
}

// AttributionTools holds the dependencies of the MCP tools.
type AttributionTools struct {
	analytics *analytics.Analytics
	logger    *zap.Logger
}

// EvaluateVisit parses the visit's campaign and reports whether it would
// be attributed as a new campaign against the given previous campaign.
func (s *AttributionTools) EvaluateVisit(ctx context.Context, req *mcp.CallToolRequest, input EvaluateVisitInput) (*mcp.CallToolResult, EvaluateVisitOutput, error) {
	if input.URL == "" {
		return nil, EvaluateVisitOutput{}, fmt.Errorf("url is required")
	}
	raw := models.RawAttributionOptions{
		ExcludeReferrers:          input.ExcludeReferrers,
		ResetSessionOnNewCampaign: input.ResetSession,
	}
	if input.ExcludeInternalReferrers != "" {
		raw.ExcludeInternalReferrers = input.ExcludeInternalReferrers
	}
	opts := raw.Build()

	current, err := logic.NewURLCampaignSource(input.URL, input.Referrer).Parse(ctx)
	if err != nil {
		return nil, EvaluateVisitOutput{}, fmt.Errorf("parse url: %w", err)
	}

	var previous models.Campaign
	if input.Previous != nil {
		previous = models.Campaign(input.Previous).KnownKeys()
	}
	isNew := logic.IsNewCampaign(current, previous, opts, input.NewSession, logic.PageHostname(input.URL))

	out := EvaluateVisitOutput{
		Campaign:     current,
		NewCampaign:  isNew,
		ResetSession: isNew && opts.ResetSessionOnNewCampaign,
		Warnings:     opts.Warnings,
	}
	if isNew {
		mutation := logic.CreateCampaignMutation(current, opts)
		out.Mutation = &mutation
	}
	s.logger.Info("evaluated visit",
		zap.String("url", input.URL),
		zap.Bool("new_campaign", isNew))
	return nil, out, nil
}

// DecodeCookie returns the JSON text stored in an attribution cookie.
func (s *AttributionTools) DecodeCookie(ctx context.Context, req *mcp.CallToolRequest, input DecodeCookieInput) (*mcp.CallToolResult, DecodeCookieOutput, error) {
	decoded, err := storage.DecodeValue(input.Value)
	if err != nil {
		return nil, DecodeCookieOutput{}, err
	}
	return nil, DecodeCookieOutput{JSON: decoded}, nil
}

// IdentifyEvents lists recorded identify events for a device.
func (s *AttributionTools) IdentifyEvents(ctx context.Context, req *mcp.CallToolRequest, input IdentifyEventsInput) (*mcp.CallToolResult, IdentifyEventsOutput, error) {
	if input.DeviceID == "" {
		return nil, IdentifyEventsOutput{}, fmt.Errorf("device_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	events, err := s.analytics.IdentifyEventsByDevice(ctx, input.DeviceID)
	if err != nil {
		return nil, IdentifyEventsOutput{}, err
	}
	out := IdentifyEventsOutput{Events: make([]IdentifyEventSummary, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, IdentifyEventSummary{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			SessionID: e.SessionID,
			Set:       e.Set,
			SetOnce:   e.SetOnce,
			Unset:     e.Unset,
		})
	}
	return nil, out, nil
}

func newServer(tools *AttributionTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "openattribution",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_visit",
		Description: "Parse a page load's campaign and decide whether it starts a new campaign",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Page URL including its query string",
				},
				"referrer": map[string]interface{}{
					"type":        "string",
					"description": "Document referrer",
				},
				"previous": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "string"},
					"description":          "Previously stored campaign (omit when none)",
				},
				"new_session": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the visit starts a new session",
				},
				"exclude_referrers": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Referring domains to ignore; /regex/ entries are patterns",
				},
				"exclude_internal_referrers": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"", "always", "ifEmptyCampaign"},
					"description": "Internal referrer policy",
				},
				"reset_session_on_new_campaign": map[string]interface{}{
					"type": "boolean",
				},
			},
			"required": []string{"url"},
		},
	}, tools.EvaluateVisit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decode_cookie",
		Description: "Decode an attribution cookie value into its JSON payload",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"value": map[string]interface{}{
					"type":        "string",
					"description": "Raw cookie value",
				},
			},
			"required": []string{"value"},
		},
	}, tools.DecodeCookie)

	if tools.analytics != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "identify_events",
			Description: "List campaign identify events recorded for a device",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"device_id": map[string]interface{}{
						"type": "string",
					},
				},
				"required": []string{"device_id"},
			},
		}, tools.IdentifyEvents)
	}
	return server
}

func main() {
	// stdout carries the MCP protocol, so logs go to stderr.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("openattribution-mcp").With(zap.String("service", "openattribution-mcp"))

	tools := &AttributionTools{logger: logger}

	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a, err := analytics.InitClickHouse(ctx, dsn, observability.NewNoOpRegistry())
		cancel()
		if err != nil {
			logger.Warn("ClickHouse unavailable, identify_events disabled", zap.Error(err))
		} else {
			defer a.Close()
			tools.analytics = a
		}
	}

	server := newServer(tools)

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio")
	if err := server.Run(context.Background(), transport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
