// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/openreviewscope/internal/httputil"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// Client is a minimal Claude Messages API client shared by the screening,
// adjudication and charting backends.
type Client struct {
	APIKey    string
	Model     string
	MaxTokens int
	HTTP      *http.Client

	// HTTPRetries bounds retries of rate-limited responses; 0 uses the
	// httputil default.
	HTTPRetries int
}

// NewClient builds a Client from the shared AI configuration.
func NewClient(cfg types.AIConfig) *Client {
	return &Client{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		HTTP:      &http.Client{Timeout: cfg.Timeout},
	}
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// complete sends one user prompt and returns the concatenated text blocks
// of the reply. model overrides c.Model when set.
func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.Model
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.HTTPRetries)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	var sb strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text content in Claude API response", ErrMalformedResponse)
	}
	return sb.String(), nil
}

// ask renders tmpl, sends it and decodes the JSON object in the reply into out.
func (c *Client) ask(ctx context.Context, model string, tmpl *template.Template, data promptData, out any) error {
	if c == nil {
		return fmt.Errorf("no Claude client configured")
	}
	prompt, err := render(tmpl, data)
	if err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}
	text, err := c.complete(ctx, model, prompt)
	if err != nil {
		return err
	}
	return decodeObject(text, out)
}

// decodeObject parses the outermost JSON object in text. Models sometimes
// wrap the object in prose or a code fence.
func decodeObject(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func normalizeDecision(d types.Decision) types.Decision {
	return types.Decision(strings.ToLower(strings.TrimSpace(string(d))))
}

// ClaudeScreener is one screening reviewer backed by Claude. Instructions
// differentiates reviewers that share a model.
type ClaudeScreener struct {
	Client       *Client
	Model        string
	Instructions string
}

// Screen asks Claude for one reviewer's vote on one record.
func (s *ClaudeScreener) Screen(ctx context.Context, req ScreeningRequest) (ScreeningResponse, error) {
	var resp ScreeningResponse
	err := s.Client.ask(ctx, s.Model, screeningPromptTmpl, promptData{
		StageLabel:   stageLabel(req.Stage),
		Criteria:     req.Criteria,
		Record:       req.Record,
		FullText:     req.FullText,
		Instructions: s.Instructions,
	}, &resp)
	if err != nil {
		return ScreeningResponse{}, err
	}
	resp.Decision = normalizeDecision(resp.Decision)
	return resp, nil
}

// ClaudeAdjudicator settles escalated records with Claude.
type ClaudeAdjudicator struct {
	Client       *Client
	Model        string
	Instructions string
}

// Adjudicate asks Claude for a final decision on an escalated record.
func (a *ClaudeAdjudicator) Adjudicate(ctx context.Context, req AdjudicationRequest) (AdjudicationResponse, error) {
	var resp AdjudicationResponse
	err := a.Client.ask(ctx, a.Model, adjudicationPromptTmpl, promptData{
		StageLabel:   stageLabel(req.Stage),
		Criteria:     req.Criteria,
		Record:       req.Record,
		FullText:     req.FullText,
		Instructions: a.Instructions,
		Votes:        req.Votes,
	}, &resp)
	if err != nil {
		return AdjudicationResponse{}, err
	}
	resp.Decision = normalizeDecision(resp.Decision)
	resp.Rationale = strings.TrimSpace(resp.Rationale)
	return resp, nil
}

// ClaudeCharter charts included studies with Claude. Fields defaults to
// DefaultChartFields.
type ClaudeCharter struct {
	Client *Client
	Model  string
	Fields []string
}

// Chart asks Claude for the charting items of one included record.
func (c *ClaudeCharter) Chart(ctx context.Context, req ChartingRequest) (ChartingResponse, error) {
	fields := c.Fields
	if len(fields) == 0 {
		fields = DefaultChartFields
	}
	var resp ChartingResponse
	err := c.Client.ask(ctx, c.Model, chartingPromptTmpl, promptData{
		StageLabel: stageLabel(types.StageExtraction),
		Criteria:   req.Criteria,
		Record:     req.Record,
		FullText:   req.FullText,
		Fields:     fields,
	}, &resp)
	if err != nil {
		return ChartingResponse{}, err
	}
	if len(resp.Findings) == 0 {
		return ChartingResponse{}, fmt.Errorf("%w: no findings", ErrMalformedResponse)
	}
	return resp, nil
}
