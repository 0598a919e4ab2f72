package matching

import (
	"context"
	"fmt"
	"io"
	"sync"

	"formless/pkg/formless"
)

// scriptedProvider answers each generation request via the respond function
// and records every request it served.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   []formless.LLMGenerateRequest
	respond func(req formless.LLMGenerateRequest) (string, error)
}

func (p *scriptedProvider) GenerateStream(
	_ context.Context,
	req formless.LLMGenerateRequest,
) (formless.LLMStream, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.respond == nil {
		return nil, fmt.Errorf("scripted provider: no respond function")
	}
	text, err := p.respond(req)
	if err != nil {
		return nil, err
	}

	return &scriptedStream{deltas: splitInTwo(text)}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

func (p *scriptedProvider) call(index int) formless.LLMGenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls[index]
}

// splitInTwo delivers scripted text across two chunks so collection actually
// has deltas to join.
func splitInTwo(text string) []string {
	if len(text) < 2 {
		return []string{text}
	}
	half := len(text) / 2

	return []string{text[:half], text[half:]}
}

type scriptedStream struct {
	mu     sync.Mutex
	deltas []string
	index  int
	closed bool
}

func (s *scriptedStream) Recv(ctx context.Context) (formless.LLMGenerateChunk, error) {
	if err := ctx.Err(); err != nil {
		return formless.LLMGenerateChunk{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.index >= len(s.deltas) {
		return formless.LLMGenerateChunk{}, io.EOF
	}
	delta := s.deltas[s.index]
	s.index++

	return formless.LLMGenerateChunk{Delta: delta}, nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return nil
}
