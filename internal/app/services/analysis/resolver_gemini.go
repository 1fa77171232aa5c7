package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com/v1beta"

// Resolver produces a result document for an analysis request.
type Resolver interface {
	Resolve(ctx context.Context, req analysis.Request) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, req analysis.Request) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, req analysis.Request) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, req)
}

// GeminiResolver resolves requests against the Gemini generateContent API.
type GeminiResolver struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
	log     *logger.Logger
}

// NewGeminiResolver constructs a Gemini-backed resolver.
func NewGeminiResolver(client *http.Client, apiKey, model string, log *logger.Logger) (*GeminiResolver, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("gemini-resolver")
	}
	return &GeminiResolver{
		client:  client,
		baseURL: defaultGeminiBase,
		model:   model,
		apiKey:  apiKey,
		log:     log,
	}, nil
}

// WithBaseURL overrides the API host, used for testing.
func (r *GeminiResolver) WithBaseURL(base string) {
	r.baseURL = strings.TrimRight(base, "/")
}

func (r *GeminiResolver) Resolve(ctx context.Context, req analysis.Request) (string, error) {
	prompt := buildPrompt(req)

	text, err := r.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	doc, err := extractJSON(text)
	if err != nil {
		return "", fmt.Errorf("model returned no usable JSON: %w", err)
	}
	if err := validateResult(req.Kind, doc); err != nil {
		return "", err
	}
	return doc, nil
}

func (r *GeminiResolver) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature": 0.2,
		},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", r.baseURL, r.model, r.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

func buildPrompt(req analysis.Request) string {
	var b strings.Builder

	switch req.Kind {
	case analysis.KindTrafficPrediction:
		b.WriteString("Predict election-day traffic congestion near a Jamaican polling station. ")
		b.WriteString("Respond with only a JSON object with keys: severity (light|moderate|heavy|severe), ")
		b.WriteString("confidence (0..1), peak_hours (array of strings), recommendation (string).\n")
	case analysis.KindECJSummary:
		b.WriteString("Summarize the following Electoral Commission of Jamaica material for field observers. ")
		b.WriteString("Respond with only a JSON object with keys: summary (string), key_points (array of strings).\n")
	case analysis.KindIncidentTriage:
		b.WriteString("Triage the following polling-station incident report. ")
		b.WriteString("Respond with only a JSON object with keys: priority (low|medium|high), category (string), next_steps (array of strings).\n")
	}

	if req.Subject != "" {
		b.WriteString("Subject: ")
		b.WriteString(req.Subject)
		b.WriteString("\n")
	}
	if req.StationID != "" {
		b.WriteString("Station: ")
		b.WriteString(req.StationID)
		b.WriteString("\n")
	}
	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, req.Context[k])
		}
	}
	return b.String()
}

// extractJSON returns the first balanced JSON object in text. Models often
// wrap the document in prose or markdown fences.
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return "", fmt.Errorf("extracted object is not valid JSON")
				}
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object")
}

func validateResult(kind analysis.Kind, doc string) error {
	if kind != analysis.KindTrafficPrediction {
		return nil
	}

	var pred analysis.TrafficPrediction
	if err := json.Unmarshal([]byte(doc), &pred); err != nil {
		return fmt.Errorf("decode traffic prediction: %w", err)
	}
	if !traffic.ValidSeverity(traffic.Severity(pred.Severity)) {
		return fmt.Errorf("traffic prediction has invalid severity %q", pred.Severity)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		return fmt.Errorf("traffic prediction confidence %v out of range", pred.Confidence)
	}
	return nil
}
