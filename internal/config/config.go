// Package config loads the runtime application configuration from one strict
// JSON file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode"
)

const (
	defaultListen          = ":8000"
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 60 * time.Second
	defaultStorageBackend  = "jsonfile"
	defaultStoragePath     = "data/memories.json"
	defaultConcurrency     = 8

	providerTypeOpenAI = "openai"
	providerTypeGemini = "gemini"

	defaultGeminiAPIVersion = "v1beta"

	envOpenAIAPIKey = "OPENAI_API_KEY"
	envGeminiAPIKey = "GEMINI_API_KEY"
)

// Config is the full runtime configuration model loaded from JSON.
type Config struct {
	// LogLevel selects the slog level for the JSON handler.
	LogLevel slog.Level
	// Listen is the HTTP listen address.
	Listen string
	// AllowedOrigins are the CORS allow-list entries. "*" allows any origin.
	AllowedOrigins []string
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
	// Storage selects and locates the memory store backend.
	Storage StorageConfig
	// Providers contains provider profiles keyed by profile name.
	Providers map[string]ProviderProfile
	// Matching binds the intent resolution oracle.
	Matching OracleBinding
	// Generation binds the value composition oracle.
	Generation OracleBinding
	// MatchConcurrency bounds parallel composition calls per batch.
	MatchConcurrency int
}

// StorageConfig selects one memory store backend.
type StorageConfig struct {
	// Backend is jsonfile or sqlite.
	Backend string
	// Path locates the backing file.
	Path string
}

// ProviderProfile describes one named provider profile.
type ProviderProfile struct {
	// Type identifies provider implementation kind (openai|gemini).
	Type string
	// APIKey is the provider credential. Empty falls back to the provider
	// type's environment variable.
	APIKey string
	// BaseURL optionally overrides provider API endpoint.
	BaseURL string
	// OpenAI carries OpenAI-specific options.
	OpenAI *OpenAIOptions
	// Gemini carries Gemini-specific options.
	Gemini *GeminiOptions
}

// OpenAIOptions carries OpenAI-specific profile options.
type OpenAIOptions struct {
	// Organization optionally scopes requests to one OpenAI organization.
	Organization string
	// Project optionally scopes requests to one OpenAI project.
	Project string
	// MaxRetries optionally overrides SDK retry count.
	MaxRetries *int
}

// GeminiOptions carries Gemini-specific profile options.
type GeminiOptions struct {
	// APIVersion selects the Gemini Developer API version.
	APIVersion string
}

// OracleBinding binds one oracle role to a provider profile and model.
type OracleBinding struct {
	// Provider names the provider profile to resolve.
	Provider string
	// Model identifies which provider model to call.
	Model string
	// Temperature optionally controls output randomness.
	Temperature float64
	// MaxOutputTokens optionally bounds generated output token count.
	MaxOutputTokens int
	// RequestTimeout bounds one oracle call lifecycle.
	RequestTimeout time.Duration
}

type fileConfig struct {
	LogLevel         string                       `json:"log_level"`
	Listen           string                       `json:"listen"`
	AllowedOrigins   []string                     `json:"allowed_origins"`
	ShutdownTimeout  string                       `json:"shutdown_timeout"`
	Storage          *fileStorage                 `json:"storage"`
	Providers        map[string]fileProviderEntry `json:"providers"`
	Matching         *fileOracleBinding           `json:"matching"`
	Generation       *fileOracleBinding           `json:"generation"`
	MatchConcurrency int                          `json:"match_concurrency"`
}

type fileStorage struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

type fileProviderEntry struct {
	Type    string           `json:"type"`
	APIKey  string           `json:"api_key"`
	BaseURL string           `json:"base_url"`
	OpenAI  *fileOpenAIEntry `json:"openai"`
	Gemini  *fileGeminiEntry `json:"gemini"`
}

type fileOpenAIEntry struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	MaxRetries   *int   `json:"max_retries"`
}

type fileGeminiEntry struct {
	APIVersion string `json:"api_version"`
}

type fileOracleBinding struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	RequestTimeout  string  `json:"request_timeout"`
}

type rootRaw struct {
	Providers json.RawMessage `json:"providers"`
}

// LoadFile reads and validates the application configuration from path.
func LoadFile(path string) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("load config: empty path")
	}

	data, err := os.ReadFile(trimmedPath)
	if err != nil {
		return Config{}, fmt.Errorf("load config read %s: %w", trimmedPath, err)
	}

	if err := validateDuplicateProviderKeys(data); err != nil {
		return Config{}, fmt.Errorf("load config parse %s: %w", trimmedPath, err)
	}

	var parsed fileConfig
	if err := decodeStrictJSON(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("load config parse %s: %w", trimmedPath, err)
	}

	cfg := Config{
		LogLevel:        slog.LevelInfo,
		Listen:          defaultListen,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: defaultShutdownTimeout,
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
			Path:    defaultStoragePath,
		},
		Providers:        make(map[string]ProviderProfile, len(parsed.Providers)),
		MatchConcurrency: defaultConcurrency,
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return Config{}, fmt.Errorf("load config parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}
	if rawListen := strings.TrimSpace(parsed.Listen); rawListen != "" {
		cfg.Listen = rawListen
	}
	if parsed.AllowedOrigins != nil {
		origins := make([]string, 0, len(parsed.AllowedOrigins))
		for index, origin := range parsed.AllowedOrigins {
			trimmed := strings.TrimSpace(origin)
			if trimmed == "" {
				return Config{}, fmt.Errorf("load config allowed_origins[%d]: empty origin", index)
			}
			origins = append(origins, trimmed)
		}
		cfg.AllowedOrigins = origins
	}
	if rawTimeout := strings.TrimSpace(parsed.ShutdownTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("load config parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = timeout
	}
	if parsed.Storage != nil {
		if rawBackend := strings.TrimSpace(parsed.Storage.Backend); rawBackend != "" {
			cfg.Storage.Backend = strings.ToLower(rawBackend)
		}
		if rawPath := strings.TrimSpace(parsed.Storage.Path); rawPath != "" {
			cfg.Storage.Path = rawPath
		}
	}
	if parsed.MatchConcurrency != 0 {
		cfg.MatchConcurrency = parsed.MatchConcurrency
	}

	for key, rawProvider := range parsed.Providers {
		profileKey := strings.TrimSpace(key)
		if profileKey == "" {
			return Config{}, fmt.Errorf("load config providers: empty provider key")
		}
		profile := parseProviderProfile(rawProvider)
		if err := validateProviderProfile(profileKey, profile); err != nil {
			return Config{}, fmt.Errorf("load config providers[%s]: %w", profileKey, err)
		}
		cfg.Providers[profileKey] = profile
	}

	matching, err := parseOracleBinding(parsed.Matching)
	if err != nil {
		return Config{}, fmt.Errorf("load config matching: %w", err)
	}
	cfg.Matching = matching

	generation, err := parseOracleBinding(parsed.Generation)
	if err != nil {
		return Config{}, fmt.Errorf("load config generation: %w", err)
	}
	cfg.Generation = generation

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration coherence.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("validate config: missing listen address")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("validate config: shutdown_timeout must be > 0")
	}
	if cfg.MatchConcurrency <= 0 {
		return fmt.Errorf("validate config: match_concurrency must be > 0")
	}
	switch cfg.Storage.Backend {
	case "jsonfile", "sqlite":
	default:
		return fmt.Errorf("validate config storage: unsupported backend %q", cfg.Storage.Backend)
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("validate config storage: missing path")
	}
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("validate config: providers is required")
	}
	for key, profile := range cfg.Providers {
		if err := validateProviderProfile(key, profile); err != nil {
			return fmt.Errorf("validate config providers[%s]: %w", key, err)
		}
	}
	for role, binding := range map[string]OracleBinding{
		"matching":   cfg.Matching,
		"generation": cfg.Generation,
	} {
		if err := validateOracleBinding(binding); err != nil {
			return fmt.Errorf("validate config %s: %w", role, err)
		}
		if _, exists := cfg.Providers[binding.Provider]; !exists {
			return fmt.Errorf("validate config %s: provider %s is not configured", role, binding.Provider)
		}
	}

	return nil
}

func parseProviderProfile(raw fileProviderEntry) ProviderProfile {
	profile := ProviderProfile{
		Type:    strings.ToLower(strings.TrimSpace(raw.Type)),
		APIKey:  strings.TrimSpace(raw.APIKey),
		BaseURL: strings.TrimSpace(raw.BaseURL),
	}
	if raw.OpenAI != nil {
		profile.OpenAI = &OpenAIOptions{
			Organization: strings.TrimSpace(raw.OpenAI.Organization),
			Project:      strings.TrimSpace(raw.OpenAI.Project),
			MaxRetries:   cloneIntPointer(raw.OpenAI.MaxRetries),
		}
	}
	if raw.Gemini != nil {
		profile.Gemini = &GeminiOptions{
			APIVersion: strings.TrimSpace(raw.Gemini.APIVersion),
		}
	}

	if profile.Type == providerTypeGemini {
		if profile.Gemini == nil {
			profile.Gemini = &GeminiOptions{APIVersion: defaultGeminiAPIVersion}
		}
		if strings.TrimSpace(profile.Gemini.APIVersion) == "" {
			profile.Gemini.APIVersion = defaultGeminiAPIVersion
		}
	}

	// Credentials may live in the environment instead of the config file.
	if profile.APIKey == "" {
		switch profile.Type {
		case providerTypeOpenAI:
			profile.APIKey = strings.TrimSpace(os.Getenv(envOpenAIAPIKey))
		case providerTypeGemini:
			profile.APIKey = strings.TrimSpace(os.Getenv(envGeminiAPIKey))
		}
	}

	return profile
}

func validateProviderProfile(profileKey string, profile ProviderProfile) error {
	if strings.TrimSpace(profileKey) == "" {
		return fmt.Errorf("empty provider key")
	}

	switch profile.Type {
	case providerTypeOpenAI:
		if profile.APIKey == "" {
			return fmt.Errorf("missing api_key (set it or %s)", envOpenAIAPIKey)
		}
		if profile.Gemini != nil {
			return fmt.Errorf("gemini options are only supported for gemini providers")
		}
		if profile.OpenAI != nil && profile.OpenAI.MaxRetries != nil && *profile.OpenAI.MaxRetries < 0 {
			return fmt.Errorf("invalid openai options: max_retries must be >= 0")
		}
	case providerTypeGemini:
		if profile.APIKey == "" {
			return fmt.Errorf("missing api_key (set it or %s)", envGeminiAPIKey)
		}
		if profile.OpenAI != nil {
			return fmt.Errorf("openai options are only supported for openai providers")
		}
		if profile.Gemini != nil && !isValidAPIVersion(profile.Gemini.APIVersion) {
			return fmt.Errorf("invalid api_version %q", profile.Gemini.APIVersion)
		}
	case "":
		return fmt.Errorf("missing type")
	default:
		return fmt.Errorf("unsupported type %q", profile.Type)
	}

	if rawBaseURL := strings.TrimSpace(profile.BaseURL); rawBaseURL != "" {
		parsed, err := url.Parse(rawBaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid base_url: must include scheme and host")
		}
	}

	return nil
}

func parseOracleBinding(raw *fileOracleBinding) (OracleBinding, error) {
	if raw == nil {
		return OracleBinding{}, fmt.Errorf("missing oracle binding")
	}

	binding := OracleBinding{
		Provider:        strings.TrimSpace(raw.Provider),
		Model:           strings.TrimSpace(raw.Model),
		Temperature:     raw.Temperature,
		MaxOutputTokens: raw.MaxOutputTokens,
		RequestTimeout:  defaultRequestTimeout,
	}
	if rawTimeout := strings.TrimSpace(raw.RequestTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout)
		if err != nil {
			return OracleBinding{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		binding.RequestTimeout = timeout
	}

	return binding, nil
}

func validateOracleBinding(binding OracleBinding) error {
	if binding.Provider == "" {
		return fmt.Errorf("missing provider")
	}
	if binding.Model == "" {
		return fmt.Errorf("missing model")
	}
	if binding.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	if binding.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must be >= 0")
	}
	if binding.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported value %q", raw)
	}
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}

	return parsed, nil
}

func validateDuplicateProviderKeys(data []byte) error {
	var raw rootRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode root json: %w", err)
	}
	if len(raw.Providers) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	decoder := json.NewDecoder(bytes.NewReader(raw.Providers))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("providers: expected object")
	}

	for decoder.More() {
		rawKey, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("providers: %w", err)
		}
		key, ok := rawKey.(string)
		if !ok {
			return fmt.Errorf("providers: expected string key")
		}
		trimmedKey := strings.TrimSpace(key)
		if _, exists := seen[trimmedKey]; exists {
			return fmt.Errorf("providers: duplicate provider key %s", trimmedKey)
		}
		seen[trimmedKey] = struct{}{}

		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			return fmt.Errorf("providers[%s]: %w", trimmedKey, err)
		}
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	return nil
}

func decodeStrictJSON(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("unexpected trailing content")
		}
		return fmt.Errorf("decode trailing json: %w", err)
	}

	return nil
}

func isValidAPIVersion(raw string) bool {
	if strings.TrimSpace(raw) == "" {
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

func cloneIntPointer(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
