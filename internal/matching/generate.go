// Package matching implements the field resolution and value composition
// pipeline: one batched intent classification call, then one bounded
// concurrent generation call per field.
package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"formless/pkg/formless"
)

// OracleParams binds one oracle role to a provider model and call limits.
type OracleParams struct {
	// Model identifies which provider model to call.
	Model string
	// Temperature optionally controls output randomness.
	Temperature float64
	// MaxOutputTokens optionally bounds generated output token count.
	MaxOutputTokens int
	// RequestTimeout bounds one oracle call lifecycle.
	RequestTimeout time.Duration
}

// Validate checks one oracle binding contract.
func (p OracleParams) Validate() error {
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("validate oracle params: missing model")
	}
	if p.Temperature < 0 {
		return fmt.Errorf("validate oracle params: temperature must be >= 0")
	}
	if p.MaxOutputTokens < 0 {
		return fmt.Errorf("validate oracle params: max_output_tokens must be >= 0")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("validate oracle params: request_timeout must be > 0")
	}

	return nil
}

// collectText runs one streamed generation call to completion and joins the
// deltas into a single string. The configured timeout bounds the whole call.
func collectText(
	ctx context.Context,
	provider formless.LLMProvider,
	req formless.LLMGenerateRequest,
	timeout time.Duration,
) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := provider.GenerateStream(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("start generation: %w", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv(callCtx)
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("recv generation chunk: %w", recvErr)
		}
		builder.WriteString(chunk.Delta)
	}

	return builder.String(), nil
}
