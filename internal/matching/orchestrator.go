package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"formless/pkg/formless"

	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrency = 8

// OrchestratorConfig wires one batch orchestrator.
type OrchestratorConfig struct {
	// Store supplies the candidate memory items.
	Store formless.MemoryStore
	// Resolver answers the batched classification call.
	Resolver *Resolver
	// Composer produces each field's final text.
	Composer *Composer
	// Logger receives per-field failure records.
	Logger *slog.Logger
	// MaxConcurrency bounds parallel composition calls. Zero means 8.
	MaxConcurrency int
}

// Orchestrator runs one whole batch: snapshot candidates, resolve once,
// compose every field concurrently, aggregate.
type Orchestrator struct {
	store          formless.MemoryStore
	resolver       *Resolver
	composer       *Composer
	logger         *slog.Logger
	maxConcurrency int
}

// NewOrchestrator builds one batch orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("new orchestrator: nil store")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("new orchestrator: nil resolver")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("new orchestrator: nil composer")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("new orchestrator: nil logger")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("new orchestrator: max_concurrency must be >= 0")
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	return &Orchestrator{
		store:          cfg.Store,
		resolver:       cfg.Resolver,
		composer:       cfg.Composer,
		logger:         cfg.Logger,
		maxConcurrency: maxConcurrency,
	}, nil
}

// BatchRequest is one form's worth of fields to fill.
type BatchRequest struct {
	// FieldNames are the form field names to resolve and compose.
	FieldNames []string
	// CandidateIntents optionally narrows the candidate set. Empty means all
	// stored items.
	CandidateIntents []string
	// Context is shared free-text context applied to every field.
	Context string
	// UserOutlines are per-field explicit instructions keyed by field name.
	UserOutlines map[string]string
}

// Match runs one batch end to end and returns the per-field results.
//
// Every requested field is present in the returned map. A field whose
// composition failed maps to "" and never disturbs its siblings; only
// resolution failure or an empty candidate set fails the batch.
func (o *Orchestrator) Match(ctx context.Context, req BatchRequest) (map[string]string, error) {
	fields := dedupeFieldNames(req.FieldNames)
	if len(fields) == 0 {
		return nil, fmt.Errorf("match batch: empty field names")
	}

	candidates, err := o.listCandidates(ctx, req.CandidateIntents)
	if err != nil {
		return nil, fmt.Errorf("match batch list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("match batch: %w", formless.ErrNoCandidates)
	}

	matches, err := o.resolver.ResolveBatch(ctx, fields, candidates)
	if err != nil {
		return nil, fmt.Errorf("match batch: %w", err)
	}

	values := make([]string, len(fields))
	group := errgroup.Group{}
	group.SetLimit(o.maxConcurrency)
	for index, field := range fields {
		group.Go(func() error {
			input := ComposeInput{
				UserOutline: req.UserOutlines[field],
				Context:     req.Context,
			}
			if match := matches[field]; match.Found {
				item := match.Item
				input.Item = &item
			}

			value, composeErr := o.composer.Compose(ctx, input)
			if composeErr != nil {
				// Field-scoped failure: degrade to empty, keep siblings alive.
				o.logger.Warn("field composition failed",
					"field", field,
					"error", composeErr,
				)
				value = ""
			}
			values[index] = value

			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = group.Wait()

	result := make(map[string]string, len(fields))
	for index, field := range fields {
		result[field] = values[index]
	}

	return result, nil
}

func (o *Orchestrator) listCandidates(ctx context.Context, intents []string) ([]formless.MemoryItem, error) {
	trimmed := make([]string, 0, len(intents))
	for _, intent := range intents {
		if t := strings.TrimSpace(intent); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) == 0 {
		return o.store.ListAll(ctx)
	}

	return o.store.ListByIntents(ctx, trimmed)
}

// dedupeFieldNames trims, drops empties, and keeps the first occurrence of
// each field so the response covers each requested field exactly once.
func dedupeFieldNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	deduped := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		deduped = append(deduped, trimmed)
	}

	return deduped
}
