package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const quickFilterModel = "claude-3-5-haiku-latest"

// Client wraps the Anthropic API client
type Client struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new AI client. The token falls back to
// ANTHROPIC_API_KEY.
func NewClient(model string, apiToken string, timeoutSeconds int) (*Client, error) {
	token := apiToken
	if token == "" {
		token = os.Getenv("ANTHROPIC_API_KEY")
	}
	if token == "" {
		return nil, errors.New("no API token provided: set ai.ai_token or ANTHROPIC_API_KEY")
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(token)),
		model:   mapModelName(model),
		timeout: timeout,
	}, nil
}

// mapModelName converts friendly model names to model IDs
func mapModelName(name string) string {
	switch strings.ToLower(name) {
	case "haiku":
		return quickFilterModel
	case "opus":
		return "claude-opus-4-20250514"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// complete sends one system+user exchange and returns the text reply and
// the tokens consumed
func (c *Client) complete(ctx context.Context, model, system, user string, maxTokens int64, timeout time.Duration) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(maxTokens),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		}),
	})
	if err != nil {
		return "", 0, fmt.Errorf("API request failed: %w", err)
	}

	text := extractTextContent(message)
	if text == "" {
		return "", 0, errors.New("empty response from API")
	}
	return text, int(message.Usage.InputTokens + message.Usage.OutputTokens), nil
}

// Triage sends a finding for deep analysis
func (c *Client) Triage(ctx context.Context, req *TriageRequest, lang string) (*TriageResponse, error) {
	text, tokens, err := c.complete(ctx, c.model, TriageSystemPrompt, BuildTriagePrompt(req, lang), 1024, c.timeout)
	if err != nil {
		return nil, err
	}

	response, err := parseTriageResponse(text, req.FindingID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	response.TokensUsed = tokens
	return response, nil
}

// QuickFilter asks Haiku whether a finding deserves deep analysis
func (c *Client) QuickFilter(ctx context.Context, req *TriageRequest) (*QuickFilterResult, error) {
	text, tokens, err := c.complete(ctx, quickFilterModel, QuickFilterSystemPrompt, BuildQuickFilterPrompt(req), 256, c.timeout/2)
	if err != nil {
		return nil, err
	}

	result, err := parseQuickFilterResult(text, req.FindingID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	result.TokensUsed = tokens
	return result, nil
}

// extractTextContent extracts text from the message response
func extractTextContent(message *anthropic.Message) string {
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// parseTriageResponse parses the JSON reply into a TriageResponse
func parseTriageResponse(text string, findingID string) (*TriageResponse, error) {
	var raw struct {
		Verdict     string   `json:"verdict"`
		Confidence  int      `json:"confidence"`
		Explanation string   `json:"explanation"`
		Remediation string   `json:"remediation"`
		Indicators  []string `json:"indicators"`
		RiskLevel   string   `json:"risk_level"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return nil, err
	}

	verdict := Verdict(raw.Verdict)
	switch verdict {
	case VerdictMalicious, VerdictSuspicious, VerdictFalsePositive, VerdictBenign:
	default:
		verdict = VerdictUnknown
	}

	return &TriageResponse{
		FindingID:   findingID,
		Verdict:     verdict,
		Confidence:  raw.Confidence,
		Explanation: raw.Explanation,
		Remediation: raw.Remediation,
		Indicators:  raw.Indicators,
		RiskLevel:   raw.RiskLevel,
	}, nil
}

// parseQuickFilterResult parses the JSON reply into a QuickFilterResult
func parseQuickFilterResult(text string, findingID string) (*QuickFilterResult, error) {
	var raw struct {
		NeedsAnalysis bool   `json:"needs_analysis"`
		Reason        string `json:"reason"`
		Confidence    int    `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return nil, err
	}

	return &QuickFilterResult{
		FindingID:     findingID,
		NeedsAnalysis: raw.NeedsAnalysis,
		Reason:        raw.Reason,
		Confidence:    raw.Confidence,
	}, nil
}

// extractJSON returns the outermost JSON object of text, unwrapping a
// markdown code fence when present
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```"); start != -1 {
		if nl := strings.Index(text[start:], "\n"); nl != -1 {
			body := text[start+nl+1:]
			if end := strings.LastIndex(body, "```"); end != -1 {
				text = body[:end]
			}
		}
	}

	text = strings.TrimSpace(text)
	open := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if open != -1 && end > open {
		text = text[open : end+1]
	}
	return strings.TrimSpace(text)
}

// Model returns the model ID used for deep analysis
func (c *Client) Model() string {
	return c.model
}
