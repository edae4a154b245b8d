package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

// User-facing messages for answers that could not be generated.
const (
	MsgNotReady             = "Please upload and process a document first."
	MsgGeneratorUnavailable = "LLM service (Ollama) is not available. Please ensure Ollama is running."
	MsgEmbedderUnavailable  = "Embedding service is not available. Please check the embedding backend."
	MsgNoResults            = "No relevant information found in the document."
	MsgTimedOut             = "The answer took too long to generate and was stopped."
	MsgCanceled             = "The request was canceled before the answer was complete."
)

type answerOptions struct {
	k          int
	onFragment func(string)
}

// AnswerOption configures a single Answer call.
type AnswerOption func(*answerOptions)

// WithK overrides the number of chunks retrieved for this question.
func WithK(k int) AnswerOption {
	return func(a *answerOptions) {
		if k > 0 {
			a.k = k
		}
	}
}

// WithFragmentHandler receives every generated fragment as it arrives.
func WithFragmentHandler(fn func(string)) AnswerOption {
	return func(a *answerOptions) {
		a.onFragment = fn
	}
}

// Answer retrieves the chunks closest to question and streams a grounded answer.
//
// The steps run in a fixed order and stop at the first failure: readiness,
// generator liveness, question embedding, retrieval, prompt, generation, sources.
// Failures are reported in the result, never returned as errors.
func (o *Orchestrator) Answer(ctx context.Context, question string, opts ...AnswerOption) (result entities.AnswerResult) {
	defer o.recoverPanic("answer", func(err error) {
		result = answerFailure(entities.OutcomeFailed, "Error generating answer: "+err.Error(), err)
	})

	cfg := answerOptions{k: o.topK}
	for _, opt := range opts {
		opt(&cfg)
	}

	if o.Readiness() != Ready {
		return answerFailure(entities.OutcomeNotReady, MsgNotReady, entities.ErrNotReady)
	}

	if !o.generator.IsAvailable(ctx) {
		o.logger.Warn("generator unavailable", "model", o.generator.ModelName())
		return answerFailure(entities.OutcomeGeneratorUnavailable, MsgGeneratorUnavailable,
			fmt.Errorf("generator: %w", entities.ErrBackendUnavailable))
	}

	queryVec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		o.logger.Error("embedding question", "error", err)
		if errors.Is(err, entities.ErrBackendUnavailable) {
			return answerFailure(entities.OutcomeEmbedderUnavailable, MsgEmbedderUnavailable, err)
		}
		return answerFailure(entities.OutcomeFailed, "Error generating answer: "+err.Error(), err)
	}
	if err := checkVectors([][]float32{queryVec}, 1, o.embedder.Dimensions()); err != nil {
		o.logger.Error("embedding question", "error", err)
		return answerFailure(entities.OutcomeEmbedderUnavailable, MsgEmbedderUnavailable, err)
	}

	results, err := o.retrieve(ctx, queryVec, cfg.k)
	switch {
	case errors.Is(err, entities.ErrNotReady):
		return answerFailure(entities.OutcomeNotReady, MsgNotReady, err)
	case err != nil:
		o.logger.Error("searching index", "error", err)
		return answerFailure(entities.OutcomeFailed, "Error generating answer: "+err.Error(), err)
	case len(results) == 0:
		return answerFailure(entities.OutcomeNoResults, MsgNoResults, entities.ErrEmptyRetrieval)
	}
	o.logger.Debug("retrieved context", "results", len(results), "k", cfg.k)

	prompt := BuildPrompt(question, results)

	genCtx, cancel := context.WithTimeout(ctx, o.answerTimeout)
	defer cancel()

	tokens, err := o.generator.Generate(genCtx, prompt)
	if err != nil {
		if genCtx.Err() != nil {
			return timedOut(genCtx.Err(), "")
		}
		o.logger.Error("starting generation", "error", err)
		return answerFailure(entities.OutcomeFailed, "Error generating answer: "+err.Error(), err)
	}

	text, streamErr := collect(genCtx, tokens, cfg.onFragment)
	if streamErr != nil && genCtx.Err() != nil {
		o.logger.Warn("generation stopped", "error", genCtx.Err(), "partial_chars", len(text))
		return timedOut(genCtx.Err(), text)
	}

	sources := make([]entities.Source, len(results))
	for i, r := range results {
		sources[i] = entities.NewSource(r)
	}

	if streamErr != nil {
		o.logger.Warn("generation interrupted", "error", streamErr, "partial_chars", len(text))
		return entities.AnswerResult{
			Success: true,
			Answer:  text + "\n\n[generation interrupted: " + streamErr.Error() + "]",
			Sources: sources,
			Outcome: entities.OutcomePartialAnswer,
			Err:     streamErr,
		}
	}

	return entities.AnswerResult{
		Success: true,
		Answer:  text,
		Sources: sources,
		Outcome: entities.OutcomeAnswered,
	}
}

// retrieve searches under the shared lock and re-checks readiness there, since an
// ingestion may have failed between the first check and now.
func (o *Orchestrator) retrieve(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.state != Ready {
		return nil, entities.ErrNotReady
	}
	return o.index.Search(ctx, query, k)
}

// collect drains the stream, forwarding fragments. It returns the text received
// so far together with the error that ended the stream, if any.
func collect(ctx context.Context, tokens <-chan ports.StreamToken, onFragment func(string)) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				return sb.String(), nil
			}
			if tok.Content != "" {
				sb.WriteString(tok.Content)
				if onFragment != nil {
					onFragment(tok.Content)
				}
			}
			if tok.Err != nil {
				return sb.String(), tok.Err
			}
			if tok.Done {
				return sb.String(), nil
			}
		}
	}
}

func timedOut(cause error, partial string) entities.AnswerResult {
	msg := MsgTimedOut
	if errors.Is(cause, context.Canceled) {
		msg = MsgCanceled
	}
	res := answerFailure(entities.OutcomeTimedOut, msg, fmt.Errorf("%w: %w", entities.ErrTimeout, cause))
	res.PartialAnswer = partial
	return res
}

func answerFailure(outcome entities.Outcome, msg string, err error) entities.AnswerResult {
	return entities.AnswerResult{
		Success: false,
		Answer:  msg,
		Sources: []entities.Source{},
		Outcome: outcome,
		Err:     err,
	}
}
