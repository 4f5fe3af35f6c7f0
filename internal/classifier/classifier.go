// Package classifier wraps the generative vision engine that turns raw
// evidence media into a structured risk analysis.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	modelName      = "gemini-3-flash-preview"

	// One bounded attempt per call: transport and parse failures are
	// terminal, never retried here.
	defaultTimeout = 60 * time.Second

	// FallbackAdvice is returned by Recommend when the engine is
	// unreachable or produces nothing useful.
	FallbackAdvice = "Dispatch rapid assessment unit."
)

// requiredFields must all be present in a classification response; absence
// of any of them is a contract violation.
var requiredFields = []string{
	"hazardType", "riskLevel", "confidenceScore", "impactSeverity",
	"impactRadius", "urgencyLevel", "safetyRecommendation",
	"humanReadableExplanation", "riskFactors",
}

// Client calls the evidence engine. Classification is a pure function of
// its inputs; the only side effect is the network call itself.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the engine endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTimeout bounds each engine call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Client for the given API key.
func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- wire types ---

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Classify sends the media payload to the engine and returns its validated
// risk analysis. A transport failure or an out-of-contract response is a
// single terminal failure surfaced to the caller.
func (c *Client) Classify(ctx context.Context, media []byte, mimeType string) (*model.AIRiskAnalysis, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(media),
			}},
			{Text: classifyPrompt(mimeType)},
		}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   json.RawMessage(analysisSchema),
		},
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, &cgerr.ClassifierContractError{Reason: "engine produced no telemetry"}
	}
	return parseAnalysis(text)
}

// Recommend asks the engine for a tactical response strategy for the given
// incident summary. Any failure yields the fixed fallback advice; errors
// never propagate to the caller.
func (c *Client) Recommend(ctx context.Context, caseSummary string) string {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: recommendPrompt(caseSummary)}}}},
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		c.logger.Warn("recommendation call failed, using fallback", "error", err)
		return FallbackAdvice
	}
	if text == "" {
		return FallbackAdvice
	}
	return text
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal engine request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &cgerr.TransportError{Op: "call evidence engine", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &cgerr.TransportError{
			Op:  "call evidence engine",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet),
		}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &cgerr.ClassifierContractError{Reason: "malformed engine response: " + err.Error()}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}

// parseAnalysis decodes the engine's JSON text and enforces the
// required-field contract.
func parseAnalysis(text string) (*model.AIRiskAnalysis, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &cgerr.ClassifierContractError{Reason: "response is not a JSON object: " + err.Error()}
	}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return nil, &cgerr.ClassifierContractError{Reason: "missing required field " + field}
		}
	}

	var analysis model.AIRiskAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, &cgerr.ClassifierContractError{Reason: "response does not match schema: " + err.Error()}
	}
	if !analysis.RiskLevel.Valid() {
		return nil, &cgerr.ClassifierContractError{Reason: fmt.Sprintf("riskLevel %q is not in the allowed set", analysis.RiskLevel)}
	}
	if !analysis.UrgencyLevel.Valid() {
		return nil, &cgerr.ClassifierContractError{Reason: fmt.Sprintf("urgencyLevel %q is not in the allowed set", analysis.UrgencyLevel)}
	}
	return &analysis, nil
}
