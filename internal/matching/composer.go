package matching

import (
	"context"
	"fmt"
	"strings"

	"formless/pkg/formless"
)

// Composer turns one field's resolution outcome into the final field text.
type Composer struct {
	provider formless.LLMProvider
	params   OracleParams
}

// NewComposer builds one value composer bound to a provider and model.
func NewComposer(provider formless.LLMProvider, params OracleParams) (*Composer, error) {
	if provider == nil {
		return nil, fmt.Errorf("new composer: nil provider")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("new composer: %w", err)
	}

	return &Composer{provider: provider, params: params}, nil
}

// ComposeInput carries one field's composition inputs.
//
// Priority runs UserOutline over Context over the matched item's value.
type ComposeInput struct {
	// Item is the matched memory item, nil when the field resolved to no match.
	Item *formless.MemoryItem
	// UserOutline is this field's explicit per-field instruction, if any.
	UserOutline string
	// Context is the request-wide shared context, if any.
	Context string
}

// Compose produces the final text for one field.
//
// With no outline and no match it returns "" without an oracle call. A
// matched literal with no outline passes through byte for byte. Everything
// else is one generation call. An item kind outside the data model is a hard
// error regardless of the other inputs.
func (c *Composer) Compose(ctx context.Context, input ComposeInput) (string, error) {
	if input.Item != nil {
		if err := input.Item.Kind.Validate(); err != nil {
			return "", fmt.Errorf("compose: %w", err)
		}
	}

	outline := strings.TrimSpace(input.UserOutline)
	contextText := strings.TrimSpace(input.Context)

	if outline == "" {
		if input.Item == nil {
			return "", nil
		}
		if input.Item.Kind == formless.MemoryKindLiteral {
			return input.Item.Value, nil
		}

		// Template without an outline: the template drives generation.
		return c.generate(ctx, composeSections{
			context:       contextText,
			reference:     input.Item.Value,
			referenceRole: referenceRoleTemplate,
		})
	}

	// An outline always wins; any matched value degrades to supporting material.
	sections := composeSections{
		outline: outline,
		context: contextText,
	}
	if input.Item != nil {
		sections.reference = input.Item.Value
		sections.referenceRole = referenceRoleValue
		if input.Item.Kind == formless.MemoryKindTemplate {
			sections.referenceRole = referenceRoleTemplate
		}
	}

	return c.generate(ctx, sections)
}

func (c *Composer) generate(ctx context.Context, sections composeSections) (string, error) {
	req := formless.LLMGenerateRequest{
		Model: c.params.Model,
		Messages: []formless.LLMMessage{
			{Role: formless.LLMMessageRoleSystem, Content: composeSystemPrompt},
			{Role: formless.LLMMessageRoleUser, Content: buildComposeUserPrompt(sections)},
		},
		Temperature:     c.params.Temperature,
		MaxOutputTokens: c.params.MaxOutputTokens,
	}

	text, err := collectText(ctx, c.provider, req, c.params.RequestTimeout)
	if err != nil {
		return "", fmt.Errorf("compose: %w: %w", formless.ErrComposeFailed, err)
	}

	return strings.TrimSpace(text), nil
}
