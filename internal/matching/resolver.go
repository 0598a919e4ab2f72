package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"formless/pkg/formless"
)

// Match is one field's resolution outcome.
type Match struct {
	// Item is the matched memory item. Meaningful only when Found is true.
	Item formless.MemoryItem
	// Found reports whether the oracle matched this field to an intent.
	Found bool
}

// MatchResult maps each requested field name to its resolution outcome.
//
// A result is scoped to the one batch request that produced it; nothing about
// it is cached or shared across requests.
type MatchResult map[string]Match

// Resolver answers "which memory intent belongs in this field" with one
// batched oracle classification call.
type Resolver struct {
	provider formless.LLMProvider
	params   OracleParams
}

// NewResolver builds one intent resolver bound to a provider and model.
func NewResolver(provider formless.LLMProvider, params OracleParams) (*Resolver, error) {
	if provider == nil {
		return nil, fmt.Errorf("new resolver: nil provider")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new resolver: %w", err)
	}

	return &Resolver{provider: provider, params: params}, nil
}

type resolveReply struct {
	Matches map[string]*string `json:"matches"`
}

// ResolveBatch classifies every field against the candidate set in one call.
//
// The candidate vocabulary is closed: an oracle answer naming an intent
// outside the candidate set is treated as no match, never surfaced. Any
// transport or parse failure fails the whole batch with ErrResolveFailed.
func (r *Resolver) ResolveBatch(
	ctx context.Context,
	fieldNames []string,
	candidates []formless.MemoryItem,
) (MatchResult, error) {
	if len(fieldNames) == 0 {
		return nil, fmt.Errorf("resolve batch: empty field names")
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("resolve batch: %w", formless.ErrNoCandidates)
	}

	byIntent := make(map[string]formless.MemoryItem, len(candidates))
	payload := resolvePayload{
		Fields:       fieldNames,
		ValidIntents: make([]string, 0, len(candidates)),
		Candidates:   make([]candidatePayload, 0, len(candidates)),
	}
	for index, candidate := range candidates {
		intent := strings.TrimSpace(candidate.Intent)
		if intent == "" {
			return nil, fmt.Errorf("resolve batch candidates[%d]: missing intent", index)
		}
		if _, exists := byIntent[intent]; exists {
			return nil, fmt.Errorf("resolve batch candidates[%d]: duplicate intent %q", index, intent)
		}
		byIntent[intent] = candidate
		payload.ValidIntents = append(payload.ValidIntents, intent)
		payload.Candidates = append(payload.Candidates, candidatePayload{
			Intent: intent,
			Value:  candidate.Value,
			Kind:   string(candidate.Kind),
		})
	}

	userPrompt, err := buildResolveUserPrompt(payload)
	if err != nil {
		return nil, fmt.Errorf("resolve batch: %w: %w", formless.ErrResolveFailed, err)
	}

	req := formless.LLMGenerateRequest{
		Model: r.params.Model,
		Messages: []formless.LLMMessage{
			{Role: formless.LLMMessageRoleSystem, Content: resolveSystemPrompt},
			{Role: formless.LLMMessageRoleUser, Content: userPrompt},
		},
		Temperature:     r.params.Temperature,
		MaxOutputTokens: r.params.MaxOutputTokens,
		Metadata: map[string]string{
			// Both knobs travel together; each provider consumes its own namespace.
			"openai.response_format":    "json_object",
			"gemini.response_mime_type": "application/json",
		},
	}

	raw, err := collectText(ctx, r.provider, req, r.params.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("resolve batch: %w: %w", formless.ErrResolveFailed, err)
	}

	reply, err := parseResolveReply(raw)
	if err != nil {
		return nil, fmt.Errorf("resolve batch: %w: %w", formless.ErrResolveFailed, err)
	}

	result := make(MatchResult, len(fieldNames))
	for _, field := range fieldNames {
		answer, answered := reply.Matches[field]
		if !answered || answer == nil {
			result[field] = Match{}
			continue
		}
		item, known := byIntent[strings.TrimSpace(*answer)]
		if !known {
			// Out-of-vocabulary answer: force to no match.
			result[field] = Match{}
			continue
		}
		result[field] = Match{Item: item, Found: true}
	}

	return result, nil
}

// ResolveOne classifies a single field. It is the batch call with one entry.
func (r *Resolver) ResolveOne(
	ctx context.Context,
	fieldName string,
	candidates []formless.MemoryItem,
) (Match, error) {
	result, err := r.ResolveBatch(ctx, []string{fieldName}, candidates)
	if err != nil {
		return Match{}, err
	}

	return result[fieldName], nil
}

func parseResolveReply(raw string) (resolveReply, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return resolveReply{}, fmt.Errorf("parse resolve reply: empty oracle reply")
	}

	var reply resolveReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return resolveReply{}, fmt.Errorf("parse resolve reply: %w", err)
	}
	if reply.Matches == nil {
		return resolveReply{}, fmt.Errorf("parse resolve reply: missing matches object")
	}

	return reply, nil
}
