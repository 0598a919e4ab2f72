// Package gemini implements the formless LLM provider on the Google Gemini
// streaming API.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"

	"formless/pkg/formless"

	"google.golang.org/genai"
)

const (
	defaultAPIVersion = "v1beta"

	metadataResponseMIME = "gemini.response_mime_type"

	metadataNamespaceGemini = "gemini."

	responseMIMEText = "text/plain"
	responseMIMEJSON = "application/json"
)

// ProviderConfig configures one Gemini-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the Gemini endpoint.
	BaseURL string
	// APIVersion optionally overrides Gemini API version.
	//
	// Zero defaults to v1beta.
	APIVersion string
	// ResponseMIMEType optionally sets the default response MIME type.
	//
	// Supported values: text/plain, application/json.
	ResponseMIMEType string
}

// Provider is a formless LLM provider backed by Google Gemini streaming API.
type Provider struct {
	models              geminiModelsClient
	defaultResponseMIME string
}

type geminiModelsClient interface {
	GenerateContentStream(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

type normalizedProviderConfig struct {
	apiKey       string
	baseURL      string
	apiVersion   string
	responseMIME string
}

// New builds one Gemini API provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	normalized, err := normalizeProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new gemini provider: %w", err)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  normalized.apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    normalized.baseURL,
			APIVersion: normalized.apiVersion,
		},
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	if client == nil || client.Models == nil {
		return nil, fmt.Errorf("new gemini client: models client is nil")
	}

	return &Provider{
		models:              client.Models,
		defaultResponseMIME: normalized.responseMIME,
	}, nil
}

// GenerateStream starts one Gemini streaming request.
func (p *Provider) GenerateStream(
	ctx context.Context,
	req formless.LLMGenerateRequest,
) (formless.LLMStream, error) {
	if p == nil {
		return nil, fmt.Errorf("gemini generate stream: nil provider")
	}
	if ctx == nil {
		return nil, fmt.Errorf("gemini generate stream: nil context")
	}
	if p.models == nil {
		return nil, fmt.Errorf("gemini generate stream: models client is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini generate stream validate request: %w", err)
	}

	contents, config, err := mapGenerateRequest(req, p.defaultResponseMIME)
	if err != nil {
		return nil, fmt.Errorf("gemini generate stream map request: %w", err)
	}
	// Force SDK request timeout off for streams so caller context is the only deadline authority.
	streamTimeout := time.Duration(0)
	config.HTTPOptions = &genai.HTTPOptions{Timeout: &streamTimeout}

	stream := p.models.GenerateContentStream(ctx, strings.TrimSpace(req.Model), contents, config)
	if stream == nil {
		return nil, fmt.Errorf("gemini generate stream: stream is nil")
	}

	return newGeminiStream(stream), nil
}

func mapGenerateRequest(
	req formless.LLMGenerateRequest,
	defaultResponseMIME string,
) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	responseMIME, err := parseMetadataOverrides(req.Metadata)
	if err != nil {
		return nil, nil, err
	}
	if responseMIME == "" {
		responseMIME = defaultResponseMIME
	}

	systemParts := make([]string, 0, len(req.Messages))
	contents := make([]*genai.Content, 0, len(req.Messages))
	for index, message := range req.Messages {
		switch message.Role {
		case formless.LLMMessageRoleSystem:
			systemParts = append(systemParts, message.Content)
		case formless.LLMMessageRoleUser, formless.LLMMessageRoleAssistant:
			role, roleErr := mapMessageRole(message.Role)
			if roleErr != nil {
				return nil, nil, fmt.Errorf("messages[%d] role: %w", index, roleErr)
			}
			contents = append(contents, &genai.Content{
				Role: role,
				Parts: []*genai.Part{
					{Text: message.Content},
				},
			})
		default:
			return nil, nil, fmt.Errorf("messages[%d] role: unsupported role %q", index, message.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("missing non-system messages")
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: strings.Join(systemParts, "\n\n")},
			},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > math.MaxInt32 {
			return nil, nil, fmt.Errorf("max_output_tokens exceeds int32 range")
		}
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if responseMIME != "" {
		config.ResponseMIMEType = responseMIME
	}

	return contents, config, nil
}

func mapMessageRole(role formless.LLMMessageRole) (string, error) {
	switch role {
	case formless.LLMMessageRoleUser:
		return string(genai.RoleUser), nil
	case formless.LLMMessageRoleAssistant:
		return string(genai.RoleModel), nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

func parseMetadataOverrides(metadata map[string]string) (string, error) {
	responseMIME := ""
	for key, value := range metadata {
		normalizedKey := strings.ToLower(strings.TrimSpace(key))
		if !strings.HasPrefix(normalizedKey, metadataNamespaceGemini) {
			// Foreign provider namespaces are not this provider's concern.
			continue
		}
		switch normalizedKey {
		case metadataResponseMIME:
			mime, err := normalizeResponseMIME(value)
			if err != nil {
				return "", fmt.Errorf("%s: %w", metadataResponseMIME, err)
			}
			responseMIME = mime
		default:
			return "", fmt.Errorf("unsupported metadata key %q", key)
		}
	}

	return responseMIME, nil
}

func normalizeProviderConfig(cfg ProviderConfig) (normalizedProviderConfig, error) {
	trimmedAPIKey := strings.TrimSpace(cfg.APIKey)
	if trimmedAPIKey == "" {
		return normalizedProviderConfig{}, fmt.Errorf("missing api_key")
	}

	trimmedBaseURL := strings.TrimSpace(cfg.BaseURL)
	if trimmedBaseURL != "" {
		parsed, err := url.Parse(trimmedBaseURL)
		if err != nil {
			return normalizedProviderConfig{}, fmt.Errorf("parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return normalizedProviderConfig{}, fmt.Errorf("parse base_url: must include scheme and host")
		}
	}

	trimmedAPIVersion := strings.TrimSpace(cfg.APIVersion)
	if trimmedAPIVersion == "" {
		trimmedAPIVersion = defaultAPIVersion
	}
	if !isValidAPIVersion(trimmedAPIVersion) {
		return normalizedProviderConfig{}, fmt.Errorf("invalid api_version %q", cfg.APIVersion)
	}

	responseMIME, err := normalizeResponseMIME(cfg.ResponseMIMEType)
	if err != nil {
		return normalizedProviderConfig{}, fmt.Errorf("response_mime_type: %w", err)
	}

	return normalizedProviderConfig{
		apiKey:       trimmedAPIKey,
		baseURL:      trimmedBaseURL,
		apiVersion:   trimmedAPIVersion,
		responseMIME: responseMIME,
	}, nil
}

func normalizeResponseMIME(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return "", nil
	case responseMIMEText, responseMIMEJSON:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported value %q", raw)
	}
}

func isValidAPIVersion(raw string) bool {
	if raw == "" {
		return false
	}
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '-', '.', '_':
			continue
		default:
			return false
		}
	}
	return true
}

var _ formless.LLMProvider = (*Provider)(nil)
