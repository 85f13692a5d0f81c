package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/utils"
)

/*
Citation points an answer back at a memory that was actually placed in the
generation context. Snippets are capped so a citation list stays readable.
*/
type Citation struct {
	MemoryID   string  `json:"memory_id"`
	Snippet    string  `json:"snippet"`
	FinalScore float64 `json:"final_score"`
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id,omitempty"`
}

/*
Answer is a grounded response: generated text plus the citations it may
refer to, and the token budget it consumed.
*/
type Answer struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	TokensUsed int        `json:"tokens_used"`
}

// snippetRunes caps each citation snippet.
const snippetRunes = 200

// noInfoAnswer is returned verbatim when retrieval comes back empty; no
// generation backend is consulted, so nothing can be hallucinated.
const noInfoAnswer = "I couldn't find relevant information in the knowledge base."

const systemPrompt = `You answer questions using ONLY the numbered context entries provided.
Cite the entries you used with bracket references like [1] or [2].
If the context does not contain the answer, say so plainly instead of guessing.`

/*
Engine composes the retrieval pipeline with a generation backend.
*/
type Engine struct {
	pipeline  *Pipeline
	generator memory.Generator
	params    memory.GenerationParams
}

type EngineOption func(*Engine)

/*
NewEngine creates an engine over a pipeline. Without WithGenerator, Query
still retrieves but returns ErrGenerationUnavailable when asked to answer.
*/
func NewEngine(pipeline *Pipeline, options ...EngineOption) *Engine {
	engine := &Engine{
		pipeline: pipeline,
		params: memory.GenerationParams{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

func WithGenerator(generator memory.Generator) EngineOption {
	return func(engine *Engine) {
		engine.generator = generator
	}
}

func WithGenerationParams(params memory.GenerationParams) EngineOption {
	return func(engine *Engine) {
		engine.params = params
	}
}

/*
Retrieve exposes the underlying pipeline for callers that want scored
results without generation.
*/
func (engine *Engine) Retrieve(
	ctx context.Context, query string, opts RetrieveOptions,
) ([]Result, error) {
	return engine.pipeline.Retrieve(ctx, query, opts)
}

/*
Query retrieves context for the question and generates a grounded answer.
Empty retrieval short-circuits to a fixed no-information answer with no
citations and no backend call.
*/
func (engine *Engine) Query(
	ctx context.Context, question string, opts RetrieveOptions,
) (*Answer, error) {
	results, err := engine.pipeline.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &Answer{Answer: noInfoAnswer, Citations: []Citation{}}, nil
	}

	if engine.generator == nil {
		return nil, errors.ErrGenerationUnavailable
	}

	completion, err := engine.generator.Complete(
		ctx, systemPrompt, buildUserPrompt(question, results), engine.params,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.ErrUpstreamTimeout.WithCause(err)
		}
		return nil, errors.ErrGenerationUnavailable.WithCause(err)
	}

	return &Answer{
		Answer:     completion.Text,
		Citations:  buildCitations(results),
		TokensUsed: completion.TokensUsed,
	}, nil
}

func buildUserPrompt(question string, results []Result) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	for i, result := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, result.Memory.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return b.String()
}

/*
buildCitations derives citations strictly from the memories placed in the
context block, in the same order as their bracket numbers.
*/
func buildCitations(results []Result) []Citation {
	citations := make([]Citation, 0, len(results))

	for _, result := range results {
		citations = append(citations, Citation{
			MemoryID:   result.Memory.ID,
			Snippet:    utils.TruncateRunes(result.Memory.Content, snippetRunes),
			FinalScore: result.FinalScore,
			SourceType: result.Memory.SourceType,
			SourceID:   result.Memory.SourceID,
		})
	}

	return citations
}
