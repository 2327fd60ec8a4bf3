package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/time/rate"

	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/pkg/models"
)

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	// Model is the model name (e.g. "claude-sonnet-4-5-20250929").
	Model string
	// APIKey overrides the ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// RequestsPerMinute rate-limits backend calls; 0 disables limiting.
	RequestsPerMinute int
}

// AnthropicProvider implements Provider on the Anthropic SDK, with optional
// Bedrock routing and client-side rate limiting.
type AnthropicProvider struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *TokenTracker
	limiter *rate.Limiter
}

// NewAnthropic creates the provider.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &AnthropicProvider{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		tracker: NewTokenTracker(),
		limiter: limiter,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profile format: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Tracker returns the token tracker.
func (p *AnthropicProvider) Tracker() *TokenTracker { return p.tracker }

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*models.ModelResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	system := req.System
	if len(req.Tools) > 0 {
		system += "\n\n" + ToolGuidance(req.Tools)
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  formatTurns(req.Turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = formatTools(req.Tools)
	}

	start := time.Now()
	resp, err := p.inner.Messages.New(ctx, params)
	metrics.BackendLatency.WithLabelValues("anthropic").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendCalls.WithLabelValues("anthropic", "error").Inc()
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}
	metrics.BackendCalls.WithLabelValues("anthropic", "success").Inc()

	p.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	metrics.TokensUsed.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.TokensUsed.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))

	return parseResponse(resp)
}

// formatTools converts canonical tool defs to the SDK's union params.
// Guidance is prompt-side only; name, description, and schema go on the wire.
func formatTools(tools []models.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.Parameters["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		if req, ok := t.Parameters["required"].([]string); ok {
			schema.Required = req
		} else if raw, ok := t.Parameters["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func formatTurns(turns []Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == "assistant" {
			var blocks []anthropic.ContentBlockParamUnion
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
			for _, call := range turn.ToolCalls {
				input, err := json.Marshal(call.Args)
				if err != nil {
					input = []byte("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
			continue
		}

		if len(turn.ToolResults) > 0 {
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.ToolResults))
			for _, res := range turn.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, res.Content, res.IsError))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
	}
	return out
}

func parseResponse(resp *anthropic.Message) (*models.ModelResponse, error) {
	result := &models.ModelResponse{
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Raw: json.RawMessage(resp.RawJSON()),
	}

	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if result.Text != "" {
				result.Text += "\n"
			}
			result.Text += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
		result.ContentBlocks = append(result.ContentBlocks, json.RawMessage(block.RawJSON()))
	}
	return result, nil
}
