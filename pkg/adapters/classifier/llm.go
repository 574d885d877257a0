package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/mitchellh/mapstructure"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLM asks a language model for a JSON intent record.
type LLM struct {
	model    llms.Model
	fallback ports.IntentClassifier
	timeout  time.Duration
	logger   *slog.Logger
}

// LLMOption configures the LLM classifier.
type LLMOption func(*LLM)

// WithFallback classifies with c when the model call fails.
func WithFallback(c ports.IntentClassifier) LLMOption {
	return func(l *LLM) {
		l.fallback = c
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) LLMOption {
	return func(l *LLM) {
		l.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(l *LLM) {
		l.logger = logger
	}
}

// NewLLM wraps a langchaingo model.
func NewLLM(model llms.Model, opts ...LLMOption) *LLM {
	l := &LLM{model: model, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenAI builds an OpenAI compatible model. baseURL may be empty.
func OpenAI(token, model, baseURL string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(token)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai model: %w", err)
	}
	return m, nil
}

// Classify implements ports.IntentClassifier. The model output is trusted for
// shape only: unknown actions are dropped and the confidence is clamped.
func (l *LLM) Classify(ctx context.Context, text string, hints map[string]any) (*domain.Intent, error) {
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(systemPrompt())}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(userPrompt(text, hints))}},
	}
	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	resp, err := l.model.GenerateContent(callCtx, messages, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		if l.fallback != nil {
			l.logger.Warn("llm classifier failed, using fallback", "err", err)
			return l.fallback.Classify(ctx, text, hints)
		}
		return nil, fmt.Errorf("llm classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm classification returned no choices")
	}

	intent, err := Decode(resp.Choices[0].Content)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("intent classified by model", "action", intent.Action, "confidence", intent.Confidence)
	return intent, nil
}

// Decode parses a model reply into an intent. Numbers sent as strings and
// code fences around the JSON are tolerated.
func Decode(reply string) (*domain.Intent, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var raw map[string]any
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classifier output: %w", err)
	}

	var intent domain.Intent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &intent,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode classifier output: %w", err)
	}

	if _, ok := domain.LookupAction(intent.Action); !ok && intent.Action != "" {
		intent.Suggestions = append([]string{intent.Action}, intent.Suggestions...)
		intent.Action = ""
		intent.NeedsClarification = true
	}
	var known []string
	for _, s := range intent.Suggestions {
		if _, ok := domain.LookupAction(s); ok {
			known = append(known, s)
		}
	}
	intent.Suggestions = known
	intent.Confidence = min(max(intent.Confidence, 0), 1)
	return &intent, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify requests from transport operators. Reply with one JSON object and nothing else.\n")
	b.WriteString("Fields: action, target_label, target_time (HH:MM), target_id, parameters (object), ")
	b.WriteString("confidence (0 to 1), needs_clarification, suggestions (action names), rationale.\n")
	b.WriteString("Only use ids the user gave. Put sub-resources in parameters, e.g. {\"vehicle\": \"Bus 7\"}.\n")
	b.WriteString("Actions:\n")
	for _, spec := range domain.Actions() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
	}
	return b.String()
}

func userPrompt(text string, hints map[string]any) string {
	if len(hints) == 0 {
		return text
	}
	data, err := json.Marshal(hints)
	if err != nil {
		return text
	}
	return fmt.Sprintf("%s\n\nContext: %s", text, data)
}
