// internal/services/narrator_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
	"github.com/Corphon/SoloRealmMCP/internal/llm"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// narratorSystemPrompt frames the JSON contract for the narrator backend.
const narratorSystemPrompt = `You are the narrator for a solo tabletop campaign. ` +
	`You receive a JSON batch of creative requests. Answer with a single JSON object: ` +
	`{"responses": [{"id": "...", "type": "...", "content": "...", "state_changes": [...]}]}. ` +
	`Every request id must appear exactly once. Each state change is ` +
	`{"type": "...", "payload": {...}} using only the declared change types. ` +
	`Respect every constraint attached to a request. Invent nothing the ` +
	`constraints forbid. Output the JSON object and nothing else.`

// NarratorService drives an optional LLM backend for the creative queue.
// When no provider is configured, batches are answered by hand instead.
type NarratorService struct {
	provider llm.Provider
	logger   *utils.Logger
	metrics  *utils.GameMetrics
}

// NewNarratorService creates the narrator service. provider may be nil.
func NewNarratorService(provider llm.Provider) *NarratorService {
	return &NarratorService{
		provider: provider,
		logger:   utils.GetLogger(),
		metrics:  utils.NewGameMetrics(),
	}
}

// Configured reports whether an LLM backend is attached.
func (s *NarratorService) Configured() bool {
	return s.provider != nil
}

// SetProvider swaps the backend at runtime.
func (s *NarratorService) SetProvider(p llm.Provider) {
	s.provider = p
}

// AnswerBatch sends a flushed request batch to the backend and returns the
// raw response text for submission.
func (s *NarratorService) AnswerBatch(ctx context.Context, batch *RequestBatch) (string, error) {
	if s.provider == nil {
		return "", apperrors.NewValidationError("no narrator backend configured", nil)
	}
	if batch == nil || len(batch.Requests) == 0 {
		return "", apperrors.NewValidationError("empty request batch", nil)
	}

	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", apperrors.NewProcessingError("failed to serialize request batch", err)
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: narratorSystemPrompt,
		Prompt:       string(payload),
		Temperature:  0.8,
	})
	if err != nil {
		s.metrics.RecordError("narrator_call", "llm")
		return "", apperrors.NewNarratorError("narrator backend call failed", err)
	}
	s.metrics.RecordNarratorCall(resp.ProviderName, resp.ModelName, resp.TokensUsed, time.Since(start))

	s.logger.Infof("narrator answered batch %s via %s (%d tokens)",
		batch.BatchID, resp.ProviderName, resp.TokensUsed)
	return resp.Text, nil
}

// RunBatch answers a batch and submits it to the session in one step.
func (s *NarratorService) RunBatch(ctx context.Context, session *SessionService, batch *RequestBatch) ([]AppliedChange, error) {
	raw, err := s.AnswerBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	applied, err := session.SubmitResponse(raw)
	if err != nil && apperrors.IsNarratorError(err) {
		// One retry with the parse failure surfaced to the backend.
		retryPrompt := fmt.Sprintf("Your previous answer was not valid JSON (%v). "+
			"Answer the same batch again with only the JSON object.", err)
		resp, rerr := s.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: narratorSystemPrompt,
			Prompt:       retryPrompt,
		})
		if rerr != nil {
			return nil, apperrors.NewNarratorError("narrator retry failed", rerr)
		}
		return session.SubmitResponse(resp.Text)
	}
	return applied, err
}
