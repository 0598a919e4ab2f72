package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"formless/pkg/formless"
)

func TestNewComposerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewComposer(nil, testOracleParams()); err == nil || !strings.Contains(err.Error(), "nil provider") {
		t.Fatalf("NewComposer(nil) error = %v, want nil provider", err)
	}

	_, err := NewComposer(&scriptedProvider{}, OracleParams{RequestTimeout: testOracleParams().RequestTimeout})
	if err == nil || !strings.Contains(err.Error(), "missing model") {
		t.Fatalf("NewComposer without model error = %v, want missing model", err)
	}
}

func TestComposeNoMatchNoOutlineReturnsEmptyWithoutOracle(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{}
	composer, err := NewComposer(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	value, err := composer.Compose(context.Background(), ComposeInput{
		Context: "a job application form",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if value != "" {
		t.Fatalf("value = %q, want empty", value)
	}
	if provider.callCount() != 0 {
		t.Fatalf("oracle call count = %d, want 0", provider.callCount())
	}
}

func TestComposeLiteralPassthroughIsVerbatim(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{}
	composer, err := NewComposer(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	// Surrounding whitespace is part of the stored value and must survive.
	stored := "  Ada Lovelace \n"
	value, err := composer.Compose(context.Background(), ComposeInput{
		Item: &formless.MemoryItem{
			ID:     "id-1",
			Intent: "full_name",
			Value:  stored,
			Kind:   formless.MemoryKindLiteral,
		},
		Context: "ignored for literals",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if value != stored {
		t.Fatalf("value = %q, want verbatim %q", value, stored)
	}
	if provider.callCount() != 0 {
		t.Fatalf("oracle call count = %d, want 0", provider.callCount())
	}
}

func TestComposeTemplateGeneratesFromTemplate(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return "  I build form tooling for fun.  ", nil
		},
	}
	composer, err := NewComposer(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	value, err := composer.Compose(context.Background(), ComposeInput{
		Item: &formless.MemoryItem{
			ID:     "id-3",
			Intent: "bio",
			Value:  "Write a one-sentence bio.",
			Kind:   formless.MemoryKindTemplate,
		},
		Context: "a developer community signup",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if value != "I build form tooling for fun." {
		t.Fatalf("value = %q, want trimmed generation output", value)
	}

	if provider.callCount() != 1 {
		t.Fatalf("oracle call count = %d, want 1", provider.callCount())
	}
	prompt := provider.call(0).Messages[1].Content
	if !strings.Contains(prompt, "Write a one-sentence bio.") {
		t.Fatalf("prompt missing template body:\n%s", prompt)
	}
	if !strings.Contains(prompt, "a developer community signup") {
		t.Fatalf("prompt missing context section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Follow the supplementary template") {
		t.Fatalf("prompt missing template directive:\n%s", prompt)
	}
	if strings.Contains(prompt, "Primary instructions") {
		t.Fatalf("prompt has outline section without an outline:\n%s", prompt)
	}
}

func TestComposeOutlineWinsOverMatchedItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		item     *formless.MemoryItem
		wantRole string
	}{
		{
			name: "literal degrades to reference",
			item: &formless.MemoryItem{
				ID:     "id-1",
				Intent: "bio",
				Value:  "Stored bio text.",
				Kind:   formless.MemoryKindLiteral,
			},
			wantRole: referenceRoleValue,
		},
		{
			name: "template degrades to reference",
			item: &formless.MemoryItem{
				ID:     "id-3",
				Intent: "bio",
				Value:  "Write a short bio.",
				Kind:   formless.MemoryKindTemplate,
			},
			wantRole: referenceRoleTemplate,
		},
		{
			name: "no match at all",
			item: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			provider := &scriptedProvider{
				respond: func(_ formless.LLMGenerateRequest) (string, error) {
					return "Composed from the outline.", nil
				},
			}
			composer, err := NewComposer(provider, testOracleParams())
			if err != nil {
				t.Fatalf("NewComposer failed: %v", err)
			}

			value, err := composer.Compose(context.Background(), ComposeInput{
				Item:        test.item,
				UserOutline: "Mention the typewriter collection.",
				Context:     "a hobby forum profile",
			})
			if err != nil {
				t.Fatalf("Compose failed: %v", err)
			}
			if value != "Composed from the outline." {
				t.Fatalf("value = %q, want generation output", value)
			}

			if provider.callCount() != 1 {
				t.Fatalf("oracle call count = %d, want 1", provider.callCount())
			}
			prompt := provider.call(0).Messages[1].Content
			if !strings.Contains(prompt, "Mention the typewriter collection.") {
				t.Fatalf("prompt missing outline:\n%s", prompt)
			}
			if !strings.Contains(prompt, "Follow the primary instructions") {
				t.Fatalf("prompt missing outline directive:\n%s", prompt)
			}
			if test.item == nil {
				if strings.Contains(prompt, "Supplementary reference") {
					t.Fatalf("prompt has reference section without a match:\n%s", prompt)
				}
				return
			}
			if !strings.Contains(prompt, test.item.Value) {
				t.Fatalf("prompt missing matched value:\n%s", prompt)
			}
			if !strings.Contains(prompt, test.wantRole) {
				t.Fatalf("prompt missing reference role %q:\n%s", test.wantRole, prompt)
			}
		})
	}
}

func TestComposeUnknownKindIsHardError(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return "never used", nil
		},
	}
	composer, err := NewComposer(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	_, err = composer.Compose(context.Background(), ComposeInput{
		Item: &formless.MemoryItem{
			ID:     "id-9",
			Intent: "first_name",
			Value:  "Ada",
			Kind:   formless.MemoryKind("prompt"),
		},
		UserOutline: "even an outline does not rescue a bad kind",
	})
	if !errors.Is(err, formless.ErrUnknownMemoryKind) {
		t.Fatalf("Compose error = %v, want ErrUnknownMemoryKind", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("oracle call count = %d, want 0", provider.callCount())
	}
}

func TestComposeGenerationFailure(t *testing.T) {
	t.Parallel()

	composer, err := NewComposer(&scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return "", fmt.Errorf("rate limited")
		},
	}, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	_, err = composer.Compose(context.Background(), ComposeInput{
		UserOutline: "Say something nice.",
	})
	if !errors.Is(err, formless.ErrComposeFailed) {
		t.Fatalf("Compose error = %v, want ErrComposeFailed", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Compose error = %v, want underlying cause attached", err)
	}
}

func TestComposeWhitespaceOutlineTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{}
	composer, err := NewComposer(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	value, err := composer.Compose(context.Background(), ComposeInput{
		Item: &formless.MemoryItem{
			ID:     "id-1",
			Intent: "first_name",
			Value:  "Ada",
			Kind:   formless.MemoryKindLiteral,
		},
		UserOutline: "   \n\t",
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if value != "Ada" {
		t.Fatalf("value = %q, want literal passthrough", value)
	}
	if provider.callCount() != 0 {
		t.Fatalf("oracle call count = %d, want 0", provider.callCount())
	}
}
