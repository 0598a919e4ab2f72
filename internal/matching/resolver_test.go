package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"formless/pkg/formless"
)

func testOracleParams() OracleParams {
	return OracleParams{
		Model:          "gpt-test",
		RequestTimeout: 5 * time.Second,
	}
}

func testCandidates() []formless.MemoryItem {
	return []formless.MemoryItem{
		{ID: "id-1", Intent: "first_name", Value: "Ada", Kind: formless.MemoryKindLiteral},
		{ID: "id-2", Intent: "email", Value: "ada@example.com", Kind: formless.MemoryKindLiteral},
		{ID: "id-3", Intent: "bio", Value: "Write a short bio.", Kind: formless.MemoryKindTemplate},
	}
}

func TestNewResolverValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewResolver(nil, testOracleParams()); err == nil || !strings.Contains(err.Error(), "nil provider") {
		t.Fatalf("NewResolver(nil) error = %v, want nil provider", err)
	}

	_, err := NewResolver(&scriptedProvider{}, OracleParams{Model: "gpt-test"})
	if err == nil || !strings.Contains(err.Error(), "request_timeout") {
		t.Fatalf("NewResolver without timeout error = %v, want request_timeout", err)
	}
}

func TestResolveBatch(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return `{"matches":{"First Name":"first_name","Email":"email","Favorite Color":null}}`, nil
		},
	}
	resolver, err := NewResolver(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	fields := []string{"First Name", "Email", "Favorite Color"}
	result, err := resolver.ResolveBatch(context.Background(), fields, testCandidates())
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("result len = %d, want 3", len(result))
	}
	if match := result["First Name"]; !match.Found || match.Item.Intent != "first_name" {
		t.Fatalf("First Name match = %+v, want first_name", match)
	}
	if match := result["Email"]; !match.Found || match.Item.Intent != "email" {
		t.Fatalf("Email match = %+v, want email", match)
	}
	if match := result["Favorite Color"]; match.Found {
		t.Fatalf("Favorite Color match = %+v, want no match", match)
	}

	if provider.callCount() != 1 {
		t.Fatalf("oracle call count = %d, want exactly 1", provider.callCount())
	}
	call := provider.call(0)
	if call.Model != "gpt-test" {
		t.Fatalf("call model = %q, want gpt-test", call.Model)
	}
	if len(call.Messages) != 2 {
		t.Fatalf("call messages len = %d, want 2", len(call.Messages))
	}
	if call.Messages[0].Role != formless.LLMMessageRoleSystem {
		t.Fatalf("messages[0] role = %q, want system", call.Messages[0].Role)
	}
	userPrompt := call.Messages[1].Content
	for _, want := range []string{"valid_intents", "first_name", "email", "bio", "Favorite Color"} {
		if !strings.Contains(userPrompt, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, userPrompt)
		}
	}
	if call.Metadata["openai.response_format"] != "json_object" {
		t.Fatalf("metadata openai.response_format = %q, want json_object", call.Metadata["openai.response_format"])
	}
	if call.Metadata["gemini.response_mime_type"] != "application/json" {
		t.Fatalf("metadata gemini.response_mime_type = %q, want application/json", call.Metadata["gemini.response_mime_type"])
	}
}

func TestResolveBatchForcesOutOfVocabularyToNoMatch(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return `{"matches":{"First Name":"invented_intent"}}`, nil
		},
	}
	resolver, err := NewResolver(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	result, err := resolver.ResolveBatch(context.Background(), []string{"First Name"}, testCandidates())
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if match := result["First Name"]; match.Found {
		t.Fatalf("match = %+v, want out-of-vocabulary forced to no match", match)
	}
}

func TestResolveBatchMissingFieldInReplyIsNoMatch(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return `{"matches":{"Email":"email"}}`, nil
		},
	}
	resolver, err := NewResolver(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	result, err := resolver.ResolveBatch(context.Background(), []string{"Email", "Ignored Field"}, testCandidates())
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if match := result["Ignored Field"]; match.Found {
		t.Fatalf("match = %+v, want unanswered field treated as no match", match)
	}
	if match := result["Email"]; !match.Found {
		t.Fatalf("match = %+v, want email found", match)
	}
}

func TestResolveBatchFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fields      []string
		candidates  []formless.MemoryItem
		respond     func(formless.LLMGenerateRequest) (string, error)
		wantErr     error
		wantErrPart string
	}{
		{
			name:        "empty fields",
			fields:      nil,
			candidates:  testCandidates(),
			wantErrPart: "empty field names",
		},
		{
			name:       "empty candidates",
			fields:     []string{"First Name"},
			candidates: nil,
			wantErr:    formless.ErrNoCandidates,
		},
		{
			name:   "duplicate candidate intents",
			fields: []string{"First Name"},
			candidates: []formless.MemoryItem{
				{ID: "id-1", Intent: "email", Value: "a@example.com", Kind: formless.MemoryKindLiteral},
				{ID: "id-2", Intent: "email", Value: "b@example.com", Kind: formless.MemoryKindLiteral},
			},
			wantErrPart: "duplicate intent",
		},
		{
			name:       "oracle transport failure",
			fields:     []string{"First Name"},
			candidates: testCandidates(),
			respond: func(_ formless.LLMGenerateRequest) (string, error) {
				return "", fmt.Errorf("connection reset")
			},
			wantErr: formless.ErrResolveFailed,
		},
		{
			name:       "malformed reply",
			fields:     []string{"First Name"},
			candidates: testCandidates(),
			respond: func(_ formless.LLMGenerateRequest) (string, error) {
				return "Sure! Here are the matches you asked for.", nil
			},
			wantErr: formless.ErrResolveFailed,
		},
		{
			name:       "reply without matches object",
			fields:     []string{"First Name"},
			candidates: testCandidates(),
			respond: func(_ formless.LLMGenerateRequest) (string, error) {
				return `{"results":{}}`, nil
			},
			wantErr: formless.ErrResolveFailed,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			resolver, err := NewResolver(&scriptedProvider{respond: test.respond}, testOracleParams())
			if err != nil {
				t.Fatalf("NewResolver failed: %v", err)
			}

			_, err = resolver.ResolveBatch(context.Background(), test.fields, test.candidates)
			if err == nil {
				t.Fatal("ResolveBatch error = nil, want error")
			}
			if test.wantErr != nil && !errors.Is(err, test.wantErr) {
				t.Fatalf("ResolveBatch error = %v, want %v", err, test.wantErr)
			}
			if test.wantErrPart != "" && !strings.Contains(err.Error(), test.wantErrPart) {
				t.Fatalf("ResolveBatch error = %v, want substring %q", err, test.wantErrPart)
			}
		})
	}
}

func TestResolveOne(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		respond: func(_ formless.LLMGenerateRequest) (string, error) {
			return `{"matches":{"Email":"email"}}`, nil
		},
	}
	resolver, err := NewResolver(provider, testOracleParams())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	match, err := resolver.ResolveOne(context.Background(), "Email", testCandidates())
	if err != nil {
		t.Fatalf("ResolveOne failed: %v", err)
	}
	if !match.Found || match.Item.Intent != "email" {
		t.Fatalf("ResolveOne match = %+v, want email", match)
	}
}
