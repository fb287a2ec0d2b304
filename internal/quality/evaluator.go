// Package quality scores recorded chat answers against their expectations
// with an LLM judge.
package quality

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/technica-vn/aiknow-probe/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Score is the judge's verdict on one answer. Criteria are 0 to 10.
type Score struct {
	Relevance    float64  `json:"relevance"`
	Accuracy     float64  `json:"accuracy"`
	Completeness float64  `json:"completeness"`
	Coherence    float64  `json:"coherence"`
	Similarity   float64  `json:"similarity"`
	Overall      float64  `json:"overall"`
	Feedback     string   `json:"feedback"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

const rubric = `You are a strict QA judge for a chat assistant.
Given a user prompt, the expected answer, and the actual answer, score the
actual answer on these criteria, each from 0 to 10:
- relevance: does it address the prompt
- accuracy: is it factually consistent with the expected answer
- completeness: does it cover everything the expected answer covers
- coherence: is it well structured and readable
- similarity: semantic closeness to the expected answer
Also compute "overall" as the mean of the five scores.
Respond with a single JSON object with keys relevance, accuracy,
completeness, coherence, similarity, overall, feedback (one short paragraph)
and suggestions (array of short strings). No markdown, no code fences.`

// Evaluator talks to the Gemini API.
type Evaluator struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

func NewEvaluator(ctx context.Context, cfg config.EvaluatorConfig, logger *zap.Logger) (*Evaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("evaluator API key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &Evaluator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Evaluate asks the judge model to score one answer.
func (e *Evaluator) Evaluate(ctx context.Context, prompt, expected, answer string) (*Score, error) {
	user := fmt.Sprintf("Prompt:\n%s\n\nExpected answer:\n%s\n\nActual answer:\n%s",
		prompt, expected, answer)

	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(e.temperature),
		SystemInstruction: genai.NewContentFromText(rubric, genai.RoleUser),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("quality evaluation failed: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, fmt.Errorf("no response generated from judge model %s", e.model)
	}

	score, err := parseScore(text)
	if err != nil {
		e.logger.Debug("unparseable judge response", zap.String("text", text))
		return nil, err
	}
	return score, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// parseScore tolerates judges that wrap their JSON in code fences despite
// being told not to.
func parseScore(text string) (*Score, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}

	var score Score
	if err := json.UnmarshalFromString(text, &score); err != nil {
		return nil, fmt.Errorf("judge returned malformed JSON: %w", err)
	}
	if score.Overall == 0 {
		score.Overall = (score.Relevance + score.Accuracy + score.Completeness +
			score.Coherence + score.Similarity) / 5
	}
	return &score, nil
}
