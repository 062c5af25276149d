package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/prvlabs/prva/internal/knowledge"
)

// SystemPrompt is the generation system instruction for the assistant.
const SystemPrompt = "You are a specialist engineer for industrial pressure relief valves (PRV). " +
	"You analyze requirements (process fluid, set pressure, temperature, flow rate, code/standard like ASME/API), " +
	"materials, and certifications. Use only provided context documents and your domain knowledge to recommend " +
	"options, trade-offs, sizing approaches, and standards compliance. Return clear, actionable guidance with " +
	"assumptions, and cite sources when relevant."

// Source describes one chunk that grounded an answer.
type Source struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	Distance float32 `json:"distance"`
	Snippet  string  `json:"snippet"`
}

// Answer is the query pipeline's result. SourceIDs lists exactly the
// chunks whose text made it into the generation context, in inclusion
// order.
type Answer struct {
	Text      string   `json:"answer"`
	SourceIDs []string `json:"source_ids"`
	Sources   []Source `json:"sources,omitempty"`
}

// QueryOption configures a single Ask call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	topK       int
	valveModel string
}

// WithTopK overrides the configured number of chunks to retrieve.
func WithTopK(k int) QueryOption {
	return func(c *queryConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithValveModel restricts retrieval to chunks for the given valve model.
func WithValveModel(model string) QueryOption {
	return func(c *queryConfig) {
		c.valveModel = model
	}
}

// Ask answers a question: embed it, retrieve the nearest chunks, pack
// the context, generate. All-or-nothing; there is no partial answer. An
// empty store (or a filter excluding every row) degrades to ungrounded
// generation with empty SourceIDs.
func (s *System) Ask(ctx context.Context, question string, opts ...QueryOption) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question must not be empty")
	}

	cfg := queryConfig{topK: s.cfg.TopK}
	for _, opt := range opts {
		opt(&cfg)
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) == 0 {
		return Answer{}, fmt.Errorf("embedder returned no vector for question")
	}

	var searchOpts []knowledge.SearchOption
	if cfg.valveModel != "" {
		searchOpts = append(searchOpts, knowledge.WithValveModel(cfg.valveModel))
	}
	results, err := s.store.Search(ctx, vectors[0], cfg.topK, searchOpts...)
	if err != nil {
		return Answer{}, fmt.Errorf("searching store: %w", err)
	}

	included := packContext(results, s.cfg.MaxContextChars)
	prompt := buildPrompt(question, included)

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	answer := Answer{Text: text, SourceIDs: make([]string, 0, len(included))}
	for _, r := range included {
		answer.SourceIDs = append(answer.SourceIDs, r.Chunk.ID)
		answer.Sources = append(answer.Sources, Source{
			ID:       r.Chunk.ID,
			SourceID: r.Chunk.SourceID,
			Distance: r.Distance,
			Snippet:  snippet(r.Chunk.TextContent, 400),
		})
	}
	return answer, nil
}

// packContext keeps retrieved chunks, in retrieval order, until the next
// chunk would exceed the budget. Chunks past that point are dropped
// whole, never truncated.
func packContext(results []knowledge.Result, maxChars int) []knowledge.Result {
	var included []knowledge.Result
	used := 0
	for _, r := range results {
		n := len([]rune(r.Chunk.TextContent))
		if used+n > maxChars {
			break
		}
		used += n
		included = append(included, r)
	}
	return included
}

// buildPrompt assembles the generation prompt. With no context it falls
// back to a question-only prompt so generation still runs ungrounded.
func buildPrompt(question string, included []knowledge.Result) string {
	if len(included) == 0 {
		var b strings.Builder
		b.WriteString("QUESTION:\n")
		b.WriteString(question)
		b.WriteString("\n\nNo reference documents were retrieved. Answer from general ")
		b.WriteString("pressure-relief-valve knowledge and state clearly when you are unsure.")
		return b.String()
	}

	var contexts []string
	var sources []string
	seen := make(map[string]struct{})
	for _, r := range included {
		contexts = append(contexts, r.Chunk.TextContent)
		if _, ok := seen[r.Chunk.SourceID]; !ok {
			seen[r.Chunk.SourceID] = struct{}{}
			sources = append(sources, "- "+r.Chunk.SourceID)
		}
	}

	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))
	b.WriteString("\n\nSOURCES:\n")
	b.WriteString(strings.Join(sources, "\n"))
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer the user question using only the CONTEXT. ")
	b.WriteString("If the answer is not in the context, say you do not have sufficient information. ")
	b.WriteString("Include a short bullet list of recommended next steps.")
	return b.String()
}

func snippet(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}

// Stats reports the store's chunk count for CLI and API status surfaces.
func (s *System) Stats(ctx context.Context) (int, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
