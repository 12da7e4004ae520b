package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/quizlab/adaptive-backend/internal/config"
	"github.com/quizlab/adaptive-backend/internal/irt"
	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/models"
)

// SeedJitter is the half-width of the random spread applied around a
// label's nominal difficulty when seeding generated items.
const SeedJitter = 0.5

// LLMClient is the interface every generator backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// Request describes one generation call for a skill unit.
type Request struct {
	SkillUnit  string
	Outcome    string
	Difficulty models.DifficultyLabel
	Count      int
}

// Generator wraps an LLMClient and turns its output into seeded items.
type Generator struct {
	llm   LLMClient
	model string
	log   *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(cfg config.GeneratorConfig, log *logger.Logger) *Generator {
	var llm LLMClient
	model := "mock"

	switch {
	case cfg.Mock:
		llm = NewMockClient()
		log.Info("generator using mock data")
	case cfg.CLIPath != "":
		model = "cli"
		llm = NewCLIClient(cfg.CLIPath, log)
		log.Info("generator using local CLI", "path", cfg.CLIPath)
	default:
		model = cfg.Model
		llm = NewAPIClient(cfg.APIKey, model, log)
		log.Info("generator using Anthropic API", "model", model)
	}

	return NewGeneratorWithClient(llm, model, log)
}

// NewGeneratorWithClient builds a Generator around an existing client.
func NewGeneratorWithClient(llm LLMClient, model string, log *logger.Logger) *Generator {
	return &Generator{
		llm:   llm,
		model: model,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) ModelName() string {
	return g.model
}

// GenerateItems asks the model for req.Count items and returns them ready to
// insert: difficulty seeded from the label, source marked as generated.
// The model may return more than requested; extras are dropped.
func (g *Generator) GenerateItems(ctx context.Context, req Request) ([]models.Item, *LLMResponse, error) {
	if req.Count <= 0 {
		return nil, nil, fmt.Errorf("count must be positive, got %d", req.Count)
	}
	if !models.ValidDifficultyLabels[req.Difficulty] {
		return nil, nil, fmt.Errorf("invalid difficulty label %q", req.Difficulty)
	}

	resp, err := g.llm.Generate(ctx, ItemSystemPrompt(), BuildItemUserPrompt(req))
	if err != nil {
		return nil, nil, fmt.Errorf("generate items: %w", err)
	}

	batch, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, resp, fmt.Errorf("parse item response: %w", err)
	}

	for _, pair := range SimilarPairs(batch.Items, 0.6) {
		g.log.Warn("generated items look alike",
			"skill_unit", req.SkillUnit, "first", pair[0]+1, "second", pair[1]+1)
	}

	generated := batch.Items
	if len(generated) > req.Count {
		generated = generated[:req.Count]
	}

	items := make([]models.Item, 0, len(generated))
	for _, gi := range generated {
		label := gi.Difficulty
		if label == "" {
			label = req.Difficulty
		}
		b := g.SeedDifficulty(label)
		items = append(items, models.Item{
			Prompt:          strings.TrimSpace(gi.Prompt),
			Choices:         gi.Choices,
			CorrectAnswer:   strings.TrimSpace(gi.CorrectAnswer),
			Explanation:     gi.Explanation,
			Difficulty:      b,
			DifficultyLabel: label,
			Source:          models.SourceGenerated,
		})
	}

	return items, resp, nil
}

// SeedDifficulty returns a starting IRT difficulty for a label: the label's
// nominal value plus uniform jitter in [-SeedJitter, SeedJitter), clamped to
// the ability scale.
func (g *Generator) SeedDifficulty(label models.DifficultyLabel) float64 {
	g.mu.Lock()
	j := (g.rng.Float64()*2 - 1) * SeedJitter
	g.mu.Unlock()
	return irt.ClampTheta(models.LabelDifficulty(label) + j)
}

// ── APIClient — Anthropic SDK (Production) ─────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
	log    *logger.Logger
}

func NewAPIClient(apiKey, model string, log *logger.Logger) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &APIClient{client: &client, model: model, log: log}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   4096,
		Temperature: param.NewOpt(0.7),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if responseText == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			sleepDuration := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn("retrying Anthropic API call", "delay", sleepDuration, "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		c.log.Error("Anthropic API attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── MockClient — Local Development ─────────────────────────

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	return &LLMResponse{
		Content:      buildMockJSON(userPrompt),
		PromptTokens: 600,
		OutputTokens: 1200,
	}, nil
}

// buildMockJSON emits six well-formed items. The difficulty label is read
// back out of the user prompt so mock batches honour the request.
func buildMockJSON(userPrompt string) string {
	label := models.DifficultyMedium
	for l := range models.ValidDifficultyLabels {
		if strings.Contains(userPrompt, "Difficulty: "+string(l)) {
			label = l
		}
	}

	topics := []string{"definitions", "worked example", "common mistake", "edge case", "comparison", "application"}
	batch := GeneratedBatch{Items: make([]GeneratedItem, 0, len(topics))}
	for i, topic := range topics {
		choices := []string{
			fmt.Sprintf("[Mock] option A about %s", topic),
			fmt.Sprintf("[Mock] option B about %s", topic),
			fmt.Sprintf("[Mock] option C about %s", topic),
			fmt.Sprintf("[Mock] option D about %s", topic),
		}
		batch.Items = append(batch.Items, GeneratedItem{
			Prompt:        fmt.Sprintf("[Mock] Question %d on the %s of this outcome?", i+1, topic),
			Choices:       choices,
			CorrectAnswer: choices[i%len(choices)],
			Explanation:   fmt.Sprintf("[Mock] Option %c is correct for the %s case.", 'A'+rune(i%len(choices)), topic),
			Difficulty:    label,
		})
	}

	body, _ := json.Marshal(batch)
	return string(body)
}
