package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// engineReply wraps text in the candidates envelope the engine returns.
func engineReply(text string) string {
	reply := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

const validAnalysisJSON = `{
	"hazardType": "Flood",
	"riskLevel": "HIGH",
	"confidenceScore": 0.92,
	"impactSeverity": 7,
	"impactRadius": "2km",
	"urgencyLevel": "HIGH",
	"safetyRecommendation": ["Move to higher ground"],
	"humanReadableExplanation": "Rising water near the shoreline.",
	"riskFactors": ["storm surge"]
}`

func TestClassify(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("unexpected request shape: %+v", req)
		}
		if req.Contents[0].Parts[0].InlineData == nil ||
			req.Contents[0].Parts[0].InlineData.MimeType != "image/jpeg" {
			t.Errorf("missing inline media part: %+v", req.Contents[0].Parts[0])
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("missing JSON generation config: %+v", req.GenerationConfig)
		}

		io.WriteString(w, engineReply(validAnalysisJSON))
	}))
	defer srv.Close()

	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL))
	got, err := c.Classify(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if gotPath != "/models/gemini-3-flash-preview:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}

	want := &model.AIRiskAnalysis{
		HazardType:               "Flood",
		RiskLevel:                model.RiskHigh,
		ConfidenceScore:          0.92,
		ImpactSeverity:           7,
		ImpactRadius:             "2km",
		UrgencyLevel:             model.UrgencyHigh,
		SafetyRecommendation:     []string{"Move to higher ground"},
		HumanReadableExplanation: "Rising water near the shoreline.",
		RiskFactors:              []string{"storm surge"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing required field",
			body: engineReply(`{
				"hazardType": "Flood",
				"confidenceScore": 0.9,
				"impactSeverity": 7,
				"impactRadius": "2km",
				"urgencyLevel": "HIGH",
				"safetyRecommendation": [],
				"humanReadableExplanation": "x",
				"riskFactors": []
			}`),
		},
		{
			name: "risk level outside the set",
			body: engineReply(strings.Replace(validAnalysisJSON, `"HIGH"`, `"APOCALYPTIC"`, 1)),
		},
		{
			name: "not a JSON object",
			body: engineReply("cannot assess this media"),
		},
		{
			name: "empty candidates",
			body: `{"candidates": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient("k", testLogger(), WithBaseURL(srv.URL))
			_, err := c.Classify(context.Background(), []byte{1}, "image/jpeg")
			var contractErr *cgerr.ClassifierContractError
			if !errors.As(err, &contractErr) {
				t.Fatalf("Classify = %v, want ClassifierContractError", err)
			}
		})
	}
}

func TestClassifyTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", testLogger(), WithBaseURL(srv.URL))
	_, err := c.Classify(context.Background(), []byte{1}, "image/jpeg")
	var transportErr *cgerr.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Classify = %v, want TransportError", err)
	}
}

func TestRecommend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, engineReply("Deploy two rescue boats to the shoreline."))
	}))
	defer srv.Close()

	c := NewClient("k", testLogger(), WithBaseURL(srv.URL))
	got := c.Recommend(context.Background(), "Flood in Visakhapatnam")
	if got != "Deploy two rescue boats to the shoreline." {
		t.Errorf("Recommend = %q", got)
	}
}

func TestRecommendFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "empty candidates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, `{"candidates": []}`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient("k", testLogger(), WithBaseURL(srv.URL))
			if got := c.Recommend(context.Background(), "summary"); got != FallbackAdvice {
				t.Errorf("Recommend = %q, want fallback", got)
			}
		})
	}
}

func TestRecommendUnreachableEngine(t *testing.T) {
	// A closed server forces a dial failure.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient("k", testLogger(), WithBaseURL(url))
	if got := c.Recommend(context.Background(), "summary"); got != FallbackAdvice {
		t.Errorf("Recommend = %q, want fallback", got)
	}
}
