package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// normalizeParams fills zero-valued fields with the runtime defaults. A
// Seed of zero is treated as unset.
func normalizeParams(p types.GenerationParams) types.GenerationParams {
	d := types.DefaultGenerationParams()
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.MaxTokens
	}
	if p.Temperature <= 0 {
		p.Temperature = d.Temperature
	}
	if p.TopP <= 0 {
		p.TopP = d.TopP
	}
	if p.TopK <= 0 {
		p.TopK = d.TopK
	}
	if p.RepeatPenalty <= 0 {
		p.RepeatPenalty = d.RepeatPenalty
	}
	if p.RepeatLastN < 0 {
		p.RepeatLastN = d.RepeatLastN
	}
	if p.Seed == 0 {
		p.Seed = d.Seed
	}
	return p
}

// Generate runs one synchronous completion against a loaded model and
// returns the generated text. The model handle and execution context are
// released on every path, success or not.
func (m *Manager) Generate(ctx context.Context, model, prompt string, params types.GenerationParams) (string, error) {
	start := time.Now()
	params = normalizeParams(params)

	lease, err := m.acquireModel(model)
	if err != nil {
		return "", err
	}
	defer lease.Release()

	entry, err := lease.lm.pool.acquire()
	if err != nil {
		return "", err
	}
	defer lease.lm.pool.release(entry)

	text, generated, err := runGeneration(ctx, lease.lm, entry, prompt, params, nil)
	if err != nil {
		return "", err
	}
	m.metrics.record(generated, time.Since(start))
	return text, nil
}

// ChatCompletion formats a role-tagged transcript into a single prompt and
// delegates to Generate.
func (m *Manager) ChatCompletion(ctx context.Context, model string, messages []types.ChatMessage, params types.GenerationParams) (string, error) {
	return m.Generate(ctx, model, formatChatPrompt(messages), params)
}

func formatChatPrompt(messages []types.ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			fmt.Fprintf(&sb, "System: %s\n", msg.Content)
		case "assistant":
			fmt.Fprintf(&sb, "Assistant: %s\n", msg.Content)
		default:
			fmt.Fprintf(&sb, "User: %s\n", msg.Content)
		}
	}
	sb.WriteString("Assistant: ")
	return sb.String()
}

// GetEmbeddings tokenizes text, runs it through a context, and returns the
// embedding vector. The model must have been loaded with embeddings enabled;
// the engine reports the violation.
func (m *Manager) GetEmbeddings(ctx context.Context, model, text string) ([]float32, error) {
	lease, err := m.acquireModel(model)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	entry, err := lease.lm.pool.acquire()
	if err != nil {
		return nil, err
	}
	defer lease.lm.pool.release(entry)

	return embedText(ctx, lease.lm, entry, text)
}

func embedText(ctx context.Context, lm *loadedModel, entry *poolEntry, text string) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vec = nil
			err = ErrDecode(lm.name, fmt.Errorf("engine fault: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := lm.model.Tokenize(text)
	if err != nil {
		return nil, ErrTokenize(lm.name, err)
	}
	if err := entry.ctx.Decode(ids); err != nil {
		return nil, ErrDecode(lm.name, err)
	}
	out, err := entry.ctx.Embeddings()
	if err != nil {
		return nil, ErrDecode(lm.name, err)
	}
	return out, nil
}

// runGeneration is the token loop shared by the synchronous and streaming
// paths: tokenize the prompt, decode it, then sample one token at a time,
// feeding each accepted token back in. emit, when non-nil, sees every
// sampled token before it lands in the output; returning false stops the
// loop. Engine faults surface as decode failures, never as panics.
func runGeneration(ctx context.Context, lm *loadedModel, entry *poolEntry, prompt string, params types.GenerationParams, emit func(engine.Token) bool) (text string, generated int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = ErrDecode(lm.name, fmt.Errorf("engine fault: %v", r))
		}
	}()

	ids, err := lm.model.Tokenize(prompt)
	if err != nil {
		return "", 0, ErrTokenize(lm.name, err)
	}
	if err := entry.ctx.Decode(ids); err != nil {
		return "", 0, ErrDecode(lm.name, err)
	}

	var sb strings.Builder
	for generated < params.MaxTokens {
		if err := ctx.Err(); err != nil {
			return "", generated, err
		}
		tok, err := entry.sampler.Sample(entry.ctx)
		if err != nil {
			return "", generated, ErrDecode(lm.name, err)
		}
		if tok.EOG {
			break
		}
		entry.sampler.Accept(tok.ID)
		generated++
		if emit != nil && !emit(tok) {
			return sb.String(), generated, nil
		}
		sb.WriteString(tok.Piece)
		if len(params.Stop) > 0 {
			if cut, hit := truncateAtStop(sb.String(), params.Stop); hit {
				return cut, generated, nil
			}
		}
		if err := entry.ctx.Decode([]int{tok.ID}); err != nil {
			return "", generated, ErrDecode(lm.name, err)
		}
	}
	return sb.String(), generated, nil
}

// truncateAtStop cuts text at the first occurrence of any stop sequence.
func truncateAtStop(text string, stops []string) (string, bool) {
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 {
			return text[:i], true
		}
	}
	return text, false
}
